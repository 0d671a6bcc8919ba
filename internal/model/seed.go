package model

import (
	"context"
	"retratai/internal/config"

	"github.com/sirupsen/logrus"
)

// SeedCreditAccounts 为缺少额度记录的用户补齐 credits 行。
func SeedCreditAccounts(ctx context.Context, repo Repository, cfg config.Config) error {
	if repo == nil {
		return nil
	}

	userIDs, err := repo.ListUserIDsWithoutCredits(ctx)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		if err := repo.EnsureCredits(ctx, id, cfg.SignupCredits); err != nil {
			return err
		}
	}
	if len(userIDs) > 0 {
		logrus.WithField("users", len(userIDs)).Info("seeded missing credit accounts")
	}
	return nil
}

package sql

import (
	"context"
	"errors"
	"fmt"
	"retratai/internal/entity"

	"gorm.io/gorm"
)

// ErrInsufficientCredits 表示条件扣减额度时余额不足。
var ErrInsufficientCredits = errors.New("insufficient credits")

// GetCredits returns the balance, zero when the user has no account row.
func (r *GormRepository) GetCredits(ctx context.Context, userID uint) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var credit entity.DbCredit
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return credit.Credits, nil
}

// DeductCredit subtracts one credit; the WHERE clause keeps the balance non-negative.
func (r *GormRepository) DeductCredit(ctx context.Context, userID uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbCredit{}).
		Where("user_id = ? AND credits >= ?", userID, 1).
		UpdateColumn("credits", gorm.Expr("credits - ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// RefundCredit gives one credit back after a compensating rollback.
func (r *GormRepository) RefundCredit(ctx context.Context, userID uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbCredit{}).
		Where("user_id = ?", userID).
		UpdateColumn("credits", gorm.Expr("credits + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

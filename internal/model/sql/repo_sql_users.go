package sql

import (
	"context"
	"fmt"
	"retratai/internal/entity"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateUser persists a new user together with its credit account.
func (r *GormRepository) CreateUser(ctx context.Context, user *entity.DbUser, initialCredits int) error {
	if err := r.ready(); err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if initialCredits < 0 {
		initialCredits = 0
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&entity.DbCredit{UserID: user.ID, Credits: initialCredits}).Error
	})
}

// GetUserByEmail loads a user by email.
func (r *GormRepository) GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil, fmt.Errorf("email is empty")
	}

	var user entity.DbUser
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(trimmed)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID loads a user by ID.
func (r *GormRepository) GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	var user entity.DbUser
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUserIDsWithoutCredits returns users that have no credits row yet.
func (r *GormRepository) ListUserIDsWithoutCredits(ctx context.Context) ([]uint, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&entity.DbUser{}).
		Where("id NOT IN (?)", r.db.Model(&entity.DbCredit{}).Select("user_id")).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// EnsureCredits creates the credit account when missing; existing balances are untouched.
func (r *GormRepository) EnsureCredits(ctx context.Context, userID uint, initial int) error {
	if err := r.ready(); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	if initial < 0 {
		initial = 0
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&entity.DbCredit{UserID: userID, Credits: initial}).Error
}

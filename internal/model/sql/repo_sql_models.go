package sql

import (
	"context"
	"fmt"
	"retratai/internal/entity"
	"strings"

	"gorm.io/gorm"
)

// CreateModel persists a new model row.
func (r *GormRepository) CreateModel(ctx context.Context, model *entity.DbModel) error {
	if err := r.ready(); err != nil {
		return err
	}
	if model == nil {
		return fmt.Errorf("model is nil")
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// GetModel loads a model by ID regardless of owner.
func (r *GormRepository) GetModel(ctx context.Context, id uint) (*entity.DbModel, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var model entity.DbModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, err
	}
	return &model, nil
}

// GetUserModel loads a model owned by userID.
func (r *GormRepository) GetUserModel(ctx context.Context, userID, id uint) (*entity.DbModel, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 || userID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var model entity.DbModel
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&model).Error; err != nil {
		return nil, err
	}
	return &model, nil
}

// ListModels returns the paginated models of one user, newest first.
func (r *GormRepository) ListModels(ctx context.Context, params *entity.ModelQuery) ([]entity.DbModel, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil || params.UserID == 0 {
		return nil, nil, fmt.Errorf("user id is required")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbModel{}).Where("user_id = ?", params.UserID)
	if status := strings.TrimSpace(params.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	page, pageSize := params.Normalize()
	offset := (page - 1) * pageSize

	var models []entity.DbModel
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		return nil, nil, err
	}

	return models, r.calculatePagination(total, page, pageSize), nil
}

// UpdateModel applies bookkeeping updates (training id, destination).
func (r *GormRepository) UpdateModel(ctx context.Context, id uint, updates entity.ModelUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("invalid model id")
	}
	if updates.IsEmpty() {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&entity.DbModel{}).Where("id = ?", id).Updates(updates.ToMap())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteModel removes a model together with its samples and images.
func (r *GormRepository) DeleteModel(ctx context.Context, id uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("invalid model id")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("model_id = ?", id).Delete(&entity.DbSample{}).Error; err != nil {
			return err
		}
		if err := tx.Where("model_id = ?", id).Delete(&entity.DbImage{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.DbModel{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CompleteTraining moves a processing model into a terminal status. The
// version reference is written only together with the finished status.
func (r *GormRepository) CompleteTraining(ctx context.Context, userID, id uint, status, modelRef string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if !entity.IsTerminalModelStatus(status) {
		return false, fmt.Errorf("invalid terminal status %q", status)
	}
	updates := map[string]interface{}{"status": status}
	if status == entity.ModelStatusFinished {
		if strings.TrimSpace(modelRef) == "" {
			return false, fmt.Errorf("model reference is required")
		}
		updates["model_ref"] = modelRef
	}

	result := r.db.WithContext(ctx).
		Model(&entity.DbModel{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, entity.ModelStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimGeneration flips has_generated false→true for a finished model.
func (r *GormRepository) ClaimGeneration(ctx context.Context, userID, id uint) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbModel{}).
		Where("id = ? AND user_id = ? AND status = ? AND has_generated = ?", id, userID, entity.ModelStatusFinished, false).
		UpdateColumn("has_generated", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseGeneration undoes a claim whose run produced nothing.
func (r *GormRepository) ReleaseGeneration(ctx context.Context, id uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&entity.DbModel{}).
		Where("id = ? AND has_generated = ?", id, true).
		UpdateColumn("has_generated", false).Error
}

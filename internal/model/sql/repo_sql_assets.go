package sql

import (
	"context"
	"retratai/internal/entity"
)

// CreateSamples inserts the training samples in one statement.
func (r *GormRepository) CreateSamples(ctx context.Context, samples []entity.DbSample) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&samples).Error
}

// ListSamples returns samples of a model in insertion order.
func (r *GormRepository) ListSamples(ctx context.Context, modelID uint) ([]entity.DbSample, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var samples []entity.DbSample
	err := r.db.WithContext(ctx).Where("model_id = ?", modelID).Order("id ASC").Find(&samples).Error
	return samples, err
}

// CreateImages bulk inserts generated images.
func (r *GormRepository) CreateImages(ctx context.Context, images []entity.DbImage) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(images) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&images).Error
}

// ListImages returns generated images of a model.
func (r *GormRepository) ListImages(ctx context.Context, modelID uint) ([]entity.DbImage, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var images []entity.DbImage
	err := r.db.WithContext(ctx).Where("model_id = ?", modelID).Order("id ASC").Find(&images).Error
	return images, err
}

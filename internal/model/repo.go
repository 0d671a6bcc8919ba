package model

import (
	"context"
	"retratai/internal/entity"
	"retratai/internal/model/sql"
)

// ErrInsufficientCredits 表示条件扣减额度时余额不足。
var ErrInsufficientCredits = sql.ErrInsufficientCredits

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser, initialCredits int) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUserIDsWithoutCredits(ctx context.Context) ([]uint, error)

	// 额度
	GetCredits(ctx context.Context, userID uint) (int, error)
	EnsureCredits(ctx context.Context, userID uint, initial int) error
	DeductCredit(ctx context.Context, userID uint) error
	RefundCredit(ctx context.Context, userID uint) error

	// 模型
	CreateModel(ctx context.Context, model *entity.DbModel) error
	GetModel(ctx context.Context, id uint) (*entity.DbModel, error)
	GetUserModel(ctx context.Context, userID, id uint) (*entity.DbModel, error)
	ListModels(ctx context.Context, params *entity.ModelQuery) ([]entity.DbModel, *entity.Meta, error)
	UpdateModel(ctx context.Context, id uint, updates entity.ModelUpdates) error
	DeleteModel(ctx context.Context, id uint) error
	// CompleteTraining 仅当模型仍处于 processing 时写入终态与版本引用，返回是否生效。
	CompleteTraining(ctx context.Context, userID, id uint, status, modelRef string) (bool, error)
	// ClaimGeneration 将 has_generated 从 false 置为 true，返回是否抢到。
	ClaimGeneration(ctx context.Context, userID, id uint) (bool, error)
	ReleaseGeneration(ctx context.Context, id uint) error

	// 样本与生成结果
	CreateSamples(ctx context.Context, samples []entity.DbSample) error
	ListSamples(ctx context.Context, modelID uint) ([]entity.DbSample, error)
	CreateImages(ctx context.Context, images []entity.DbImage) error
	ListImages(ctx context.Context, modelID uint) ([]entity.DbImage, error)
}

package service

import (
	"context"

	"retratai/internal/llm"
)

// Trainer 是训练服务商（Replicate）的最小接口。
type Trainer interface {
	CreateModel(ctx context.Context, name string) (string, error)
	CreateTraining(ctx context.Context, req llm.TrainingRequest) (*llm.Job, error)
	CancelTraining(ctx context.Context, trainingID string) error
}

// Predictor 提交生成任务并可轮询其状态。
type Predictor interface {
	llm.JobPoller
	CreatePrediction(ctx context.Context, req llm.PredictionRequest) (*llm.Job, error)
}

// Captioner 为训练图片生成描述。
type Captioner interface {
	Caption(ctx context.Context, data []byte, mimeType, gender string) (string, error)
}

// Notifier 投递尽力而为的邮件通知，不返回错误。
type Notifier interface {
	ModelReady(ctx context.Context, to, modelName string, modelID uint)
	ImagesReady(ctx context.Context, to, modelName string, modelID uint, count int)
}

var (
	_ Trainer   = (*llm.ReplicateClient)(nil)
	_ Predictor = (*llm.ReplicateClient)(nil)
	_ Captioner = (*llm.GeminiCaptioner)(nil)
)

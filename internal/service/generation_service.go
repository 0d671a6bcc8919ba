package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"retratai/internal/config"
	"retratai/internal/entity"
	"retratai/internal/llm"
	"retratai/internal/model"
	"retratai/internal/storage"
	"retratai/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultPrompts 是未配置 GENERATION_PROMPTS 时使用的风格提示词，%s 为性别。
var DefaultPrompts = []string{
	"profesional foto of " + llm.TriggerWord,
	"professional corporate headshot of " + llm.TriggerWord + " %s, studio lighting, neutral background",
}

// GenerationService 为训练完成的模型生成一次图片。
type GenerationService struct {
	repo      model.Repository
	storage   storage.Storage
	resolver  storage.URLResolver
	media     llm.MediaService
	predictor Predictor
	notifier  Notifier

	prompts         []string
	outputsPerBatch int
	workers         int
	timeout         time.Duration
	pollConfig      llm.PollConfig
}

func NewGenerationService(cfg config.Config, repo model.Repository, store storage.Storage, media llm.MediaService, predictor Predictor, notifier Notifier) *GenerationService {
	prompts := cfg.Prompts()
	if len(prompts) == 0 {
		prompts = DefaultPrompts
	}
	outputs := cfg.GenerationOutputsPerBatch
	if outputs <= 0 {
		outputs = 4
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &GenerationService{
		repo:            repo,
		storage:         store,
		resolver:        storage.NewURLResolver(cfg),
		media:           media,
		predictor:       predictor,
		notifier:        notifier,
		prompts:         prompts,
		outputsPerBatch: outputs,
		workers:         cfg.GenerationWorkers,
		timeout:         timeout,
		pollConfig:      llm.PredictionPollConfig,
	}
}

// Generate 检查模型状态、抢占生成标记，然后并发执行各风格批次并保存结果。
func (s *GenerationService) Generate(ctx context.Context, user *entity.DbUser, modelID uint) (*entity.GenerateImagesResponse, error) {
	if user == nil || user.ID == 0 {
		return nil, unauthorizedError(MsgUnauthorized)
	}
	if modelID == 0 {
		return nil, validationError(MsgMissingModelID)
	}

	dbModel, err := s.repo.GetUserModel(ctx, user.ID, modelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(MsgModelNotFound)
		}
		return nil, upstreamError(MsgNoImagesGenerated, fmt.Errorf("load model: %w", err))
	}
	if dbModel.HasGenerated {
		return nil, validationError(MsgAlreadyGenerated)
	}
	if dbModel.Status != entity.ModelStatusFinished {
		return nil, validationError(MsgModelNotReady)
	}

	claimed, err := s.repo.ClaimGeneration(ctx, user.ID, dbModel.ID)
	if err != nil {
		return nil, upstreamError(MsgNoImagesGenerated, fmt.Errorf("claim generation: %w", err))
	}
	if !claimed {
		return nil, validationError(MsgAlreadyGenerated)
	}

	logger := logrus.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"model_id":  dbModel.ID,
		"model_ref": dbModel.ModelRef,
	})
	logger.WithField("batches", len(s.prompts)).Info("generation_started")

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	images := s.runBatches(genCtx, dbModel, logger)
	if len(images) == 0 {
		s.release(dbModel.ID, logger)
		return nil, upstreamError(MsgNoImagesGenerated, errors.New("all batches failed"))
	}

	if err := s.repo.CreateImages(ctx, images); err != nil {
		s.release(dbModel.ID, logger)
		logger.WithError(err).Error("generation_images_insert_failed")
		return nil, upstreamError(MsgImagesSaveFailed, err)
	}

	logger.WithField("images", len(images)).Info("generation_completed")
	if s.notifier != nil {
		s.notifier.ImagesReady(ctx, user.Email, dbModel.Name, dbModel.ID, len(images))
	}
	return &entity.GenerateImagesResponse{Message: MsgImagesGenerated, Images: images}, nil
}

// runBatches 执行所有批次，失败的批次记录日志后跳过。
func (s *GenerationService) runBatches(ctx context.Context, dbModel *entity.DbModel, logger *logrus.Entry) []entity.DbImage {
	var (
		mu     sync.Mutex
		images []entity.DbImage
	)

	utils.RunInPool(s.batchPrompts(dbModel.Type), s.workers, func(idx int, prompt string) (struct{}, error) {
		batchLogger := logger.WithField("batch", idx)
		outputs, err := s.runBatch(ctx, dbModel.ModelRef, prompt)
		if err != nil {
			batchLogger.WithError(err).Warn("generation_batch_failed")
			return struct{}{}, err
		}
		batch := make([]entity.DbImage, 0, len(outputs))
		for i, out := range outputs {
			batch = append(batch, entity.DbImage{
				ModelID:     dbModel.ID,
				URI:         s.rehost(ctx, dbModel.ID, idx, i, out, batchLogger),
				OriginalURI: out,
			})
		}
		batchLogger.WithField("outputs", len(batch)).Info("generation_batch_done")

		mu.Lock()
		images = append(images, batch...)
		mu.Unlock()
		return struct{}{}, nil
	})

	return images
}

func (s *GenerationService) runBatch(ctx context.Context, modelRef, prompt string) ([]string, error) {
	job, err := s.predictor.CreatePrediction(ctx, llm.PredictionRequest{
		ModelRef:   modelRef,
		Prompt:     prompt,
		NumOutputs: s.outputsPerBatch,
	})
	if err != nil {
		return nil, err
	}
	done, err := llm.WaitForJob(ctx, s.predictor, job.ID, s.pollConfig)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", job.ID, err)
	}
	if len(done.Outputs) == 0 {
		return nil, fmt.Errorf("prediction %s: no outputs", job.ID)
	}
	return done.Outputs, nil
}

// rehost 将服务商图片转存到自有存储，失败时保留原地址。
func (s *GenerationService) rehost(ctx context.Context, modelID uint, batch, idx int, source string, logger *logrus.Entry) string {
	if s.storage == nil || s.media == nil {
		return source
	}
	media, err := s.media.Fetch(ctx, source)
	if err != nil {
		logger.WithError(err).Warn("generation_rehost_download_failed")
		return source
	}
	key, err := s.storage.Save(ctx, media.Data, storage.SaveOptions{
		Category:  storage.CategoryImages,
		BaseName:  fmt.Sprintf("model_%d_%d_%d_%d", modelID, time.Now().UnixMilli(), batch, idx),
		Extension: media.Extension,
	})
	if err != nil {
		logger.WithError(err).Warn("generation_rehost_save_failed")
		return source
	}
	if resolved := s.resolver.Resolve(key); resolved != "" {
		return resolved
	}
	return source
}

func (s *GenerationService) batchPrompts(gender string) []string {
	prompts := make([]string, 0, len(s.prompts))
	for _, p := range s.prompts {
		prompts = append(prompts, strings.ReplaceAll(p, "%s", gender))
	}
	return prompts
}

func (s *GenerationService) release(modelID uint, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.ReleaseGeneration(ctx, modelID); err != nil {
		logger.WithError(err).Error("generation_release_failed")
		return
	}
	logger.Warn("generation_released")
}

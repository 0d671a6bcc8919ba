package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"retratai/internal/archive"
	"retratai/internal/config"
	"retratai/internal/entity"
	"retratai/internal/llm"
	"retratai/internal/model"
	"retratai/internal/storage"
	"retratai/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	minTrainingImages = 4
	maxModelNameRunes = 50
	// 目标模型名中 slug 部分的长度上限，剩余长度留给 uuid
	maxSlugLength = 40
)

// TrainingService 接收训练请求：校验、打包样本、提交训练并扣减额度。
type TrainingService struct {
	repo      model.Repository
	storage   storage.Storage
	resolver  storage.URLResolver
	media     llm.MediaService
	captioner Captioner
	trainer   Trainer

	appBaseURL    string
	webhookSecret string
	monetized     bool
	fetchWorkers  int
}

func NewTrainingService(cfg config.Config, repo model.Repository, store storage.Storage, media llm.MediaService, captioner Captioner, trainer Trainer) *TrainingService {
	workers := cfg.TrainingFetchWorkers
	if workers <= 0 {
		workers = 4
	}
	return &TrainingService{
		repo:          repo,
		storage:       store,
		resolver:      storage.NewURLResolver(cfg),
		media:         media,
		captioner:     captioner,
		trainer:       trainer,
		appBaseURL:    strings.TrimRight(strings.TrimSpace(cfg.AppBaseURL), "/"),
		webhookSecret: cfg.WebhookSecret,
		monetized:     cfg.MonetizationEnabled,
		fetchWorkers:  workers,
	}
}

// trainingInput 是校验通过后的训练参数。
type trainingInput struct {
	urls   []string
	name   string
	gender string
}

// ValidateTrainRequest 校验训练请求，失败时返回 KindValidation 错误。
func ValidateTrainRequest(req entity.TrainModelRequest) error {
	_, err := validateTrainRequest(req)
	return err
}

func validateTrainRequest(req entity.TrainModelRequest) (trainingInput, error) {
	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) < minTrainingImages {
		return trainingInput{}, validationError(MsgTooFewImages)
	}

	name := strings.Join(strings.Fields(req.Name), " ")
	if name == "" {
		return trainingInput{}, validationError(MsgNameRequired)
	}
	if utf8.RuneCountInString(name) > maxModelNameRunes {
		return trainingInput{}, validationError(MsgNameTooLong)
	}
	for _, r := range name {
		if r != ' ' && !unicode.IsLetter(r) {
			return trainingInput{}, validationError(MsgNameInvalid)
		}
	}

	gender := strings.ToLower(strings.TrimSpace(req.ResolvedGender()))
	if gender != entity.ModelTypeMan && gender != entity.ModelTypeWoman {
		return trainingInput{}, validationError(MsgInvalidGender)
	}

	return trainingInput{urls: urls, name: name, gender: gender}, nil
}

// Submit 处理一次训练提交。模型行在任何外部调用前创建，之后的失败都会删除该行。
func (s *TrainingService) Submit(ctx context.Context, userID uint, req entity.TrainModelRequest) (*entity.TrainModelResponse, error) {
	if userID == 0 {
		return nil, unauthorizedError(MsgUnauthorized)
	}
	input, err := validateTrainRequest(req)
	if err != nil {
		return nil, err
	}

	if s.monetized {
		credits, err := s.repo.GetCredits(ctx, userID)
		if err != nil {
			return nil, upstreamError(MsgTrainingFailed, fmt.Errorf("read credits: %w", err))
		}
		if credits < 1 {
			return nil, &Error{Kind: KindInsufficientCredits, Message: MsgInsufficientCredits}
		}
	}

	dbModel := &entity.DbModel{
		UserID: userID,
		Name:   input.name,
		Type:   input.gender,
		Status: entity.ModelStatusProcessing,
	}
	if err := s.repo.CreateModel(ctx, dbModel); err != nil {
		return nil, upstreamError(MsgTrainingFailed, fmt.Errorf("create model: %w", err))
	}

	logger := logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"model_id": dbModel.ID,
	})

	if err := s.submit(ctx, dbModel, input, logger); err != nil {
		s.rollback(dbModel.ID, logger)
		var svcErr *Error
		if errors.As(err, &svcErr) {
			logger.WithError(err).Warn("training_submission_failed")
			return nil, svcErr
		}
		logger.WithError(err).Error("training_submission_failed")
		return nil, upstreamError(MsgTrainingFailed, err)
	}

	logger.WithFields(logrus.Fields{
		"training_id": dbModel.TrainingID,
		"destination": dbModel.Destination,
	}).Info("training_queued")
	return &entity.TrainModelResponse{Message: MsgTrainingSubmitted, Model: *dbModel}, nil
}

func (s *TrainingService) submit(ctx context.Context, dbModel *entity.DbModel, input trainingInput, logger *logrus.Entry) error {
	images, err := s.fetchAndCaption(ctx, input, logger)
	if err != nil {
		return err
	}

	zipData, err := archive.Build(archive.TrainingEntries(images))
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	key, err := s.storage.Save(ctx, zipData, storage.SaveOptions{
		Category:  storage.CategoryZip,
		BaseName:  fmt.Sprintf("model_%d_%d", dbModel.ID, time.Now().UnixMilli()),
		Extension: "zip",
	})
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	zipURL := s.resolver.Resolve(key)
	logger.WithField("zip_url", zipURL).Info("training_archive_uploaded")

	samples := make([]entity.DbSample, 0, len(input.urls))
	for _, u := range input.urls {
		samples = append(samples, entity.DbSample{ModelID: dbModel.ID, URI: u})
	}
	if err := s.repo.CreateSamples(ctx, samples); err != nil {
		logger.WithError(err).Warn("training_samples_insert_failed")
	}

	destination, err := s.trainer.CreateModel(ctx, destinationName(input.name))
	if err != nil {
		return fmt.Errorf("create destination model: %w", err)
	}

	job, err := s.trainer.CreateTraining(ctx, llm.TrainingRequest{
		Destination: destination,
		ZipURL:      zipURL,
		WebhookURL:  s.webhookURL(dbModel.UserID, dbModel.ID),
	})
	if err != nil {
		return fmt.Errorf("create training: %w", err)
	}

	if s.monetized {
		if err := s.repo.DeductCredit(ctx, dbModel.UserID); err != nil {
			s.cancelTraining(job.ID, logger)
			if errors.Is(err, model.ErrInsufficientCredits) {
				return &Error{Kind: KindInsufficientCredits, Message: MsgInsufficientCredits, Err: err}
			}
			return fmt.Errorf("deduct credit: %w", err)
		}
	}

	trainingID := job.ID
	if err := s.repo.UpdateModel(ctx, dbModel.ID, entity.ModelUpdates{
		TrainingID:  &trainingID,
		Destination: &destination,
	}); err != nil {
		if s.monetized {
			if refundErr := s.repo.RefundCredit(context.WithoutCancel(ctx), dbModel.UserID); refundErr != nil {
				logger.WithError(refundErr).Error("training_credit_refund_failed")
			}
		}
		s.cancelTraining(job.ID, logger)
		return fmt.Errorf("record training id: %w", err)
	}

	dbModel.TrainingID = trainingID
	dbModel.Destination = destination
	return nil
}

// fetchAndCaption 并发下载图片并生成描述。下载失败中止提交，描述失败降级为空。
func (s *TrainingService) fetchAndCaption(ctx context.Context, input trainingInput, logger *logrus.Entry) ([]archive.TrainingImage, error) {
	results := utils.RunInPool(input.urls, s.fetchWorkers, func(idx int, u string) (archive.TrainingImage, error) {
		media, err := s.media.Fetch(ctx, u)
		if err != nil {
			return archive.TrainingImage{}, fmt.Errorf("download image %d: %w", idx+1, err)
		}

		caption := ""
		if s.captioner != nil {
			caption, err = s.captioner.Caption(ctx, media.Data, media.MimeType, input.gender)
			if err != nil {
				logger.WithError(err).WithField("image_index", idx+1).Warn("training_caption_failed")
				caption = ""
			}
		}
		return archive.TrainingImage{Data: media.Data, Extension: media.Extension, Caption: caption}, nil
	})

	images := make([]archive.TrainingImage, len(results))
	for _, r := range results {
		if r.Error != nil {
			return nil, r.Error
		}
		images[r.Index] = r.Result
	}
	return images, nil
}

func (s *TrainingService) webhookURL(userID, modelID uint) string {
	q := url.Values{}
	q.Set("user_id", strconv.FormatUint(uint64(userID), 10))
	q.Set("model_id", strconv.FormatUint(uint64(modelID), 10))
	q.Set("webhook_secret", s.webhookSecret)
	return s.appBaseURL + "/api/webhooks/training?" + q.Encode()
}

func (s *TrainingService) cancelTraining(trainingID string, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.trainer.CancelTraining(ctx, trainingID); err != nil {
		logger.WithError(err).WithField("training_id", trainingID).Error("training_cancel_failed")
	}
}

// rollback 删除已创建的模型行，使用独立的 context，请求取消时也能完成。
func (s *TrainingService) rollback(modelID uint, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.DeleteModel(ctx, modelID); err != nil {
		logger.WithError(err).Error("training_rollback_failed")
		return
	}
	logger.Info("training_rolled_back")
}

// destinationName 生成服务商侧的模型名：<slug>-<uuid>。
func destinationName(name string) string {
	slug := utils.Slugify(name, maxSlugLength)
	if slug == "" {
		slug = "model"
	}
	return slug + "-" + uuid.NewString()
}

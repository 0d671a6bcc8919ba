package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"retratai/internal/entity"
	"retratai/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WebhookParams 是回调 URL 中携带的查询参数（原始字符串）。
type WebhookParams struct {
	UserID  string
	ModelID string
	Secret  string
}

// WebhookEvent 是鉴权通过后的训练回调。
type WebhookEvent struct {
	UserID  uint
	ModelID uint
	Payload entity.TrainingWebhookPayload
}

// AuthorizeWebhook 校验回调参数与密钥，返回解析后的用户与模型ID。
// 密钥比较忽略大小写。
func AuthorizeWebhook(params WebhookParams, expectedSecret string) (userID, modelID uint, err error) {
	userID, okUser := parseID(params.UserID)
	modelID, okModel := parseID(params.ModelID)
	if !okUser || !okModel || strings.TrimSpace(params.Secret) == "" {
		return 0, 0, validationError(MsgMalformedWebhook)
	}
	if !secretsEqual(params.Secret, expectedSecret) {
		return 0, 0, unauthorizedError(MsgUnauthorized)
	}
	return userID, modelID, nil
}

func parseID(raw string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func secretsEqual(got, expected string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return false
	}
	got = strings.ToLower(strings.TrimSpace(got))
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// WebhookService 将训练回调应用到模型上，重复回调不会产生新的副作用。
type WebhookService struct {
	repo          model.Repository
	notifier      Notifier
	webhookSecret string
}

func NewWebhookService(repo model.Repository, notifier Notifier, webhookSecret string) *WebhookService {
	return &WebhookService{repo: repo, notifier: notifier, webhookSecret: webhookSecret}
}

// Authorize 校验参数、密钥以及用户是否存在。
func (s *WebhookService) Authorize(ctx context.Context, params WebhookParams) (*entity.DbUser, uint, error) {
	userID, modelID, err := AuthorizeWebhook(params, s.webhookSecret)
	if err != nil {
		return nil, 0, err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, unauthorizedError(MsgUnauthorized)
		}
		return nil, 0, upstreamError(MsgWebhookFailed, fmt.Errorf("load user: %w", err))
	}
	return user, modelID, nil
}

// Handle 应用一次回调。非终态状态直接忽略。
func (s *WebhookService) Handle(ctx context.Context, user *entity.DbUser, modelID uint, payload entity.TrainingWebhookPayload) error {
	status := strings.ToLower(strings.TrimSpace(payload.Status))
	logger := logrus.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"model_id":    modelID,
		"training_id": payload.ID,
		"status":      status,
	})

	var target, version string
	switch status {
	case "succeeded":
		version = strings.TrimSpace(payload.Version())
		if version == "" {
			logger.Error("training_webhook_missing_version")
			return upstreamError(MsgMissingVersion, nil)
		}
		target = entity.ModelStatusFinished
	case "failed":
		target = entity.ModelStatusFailed
	case "canceled", "cancelled":
		target = entity.ModelStatusCanceled
	default:
		logger.Info("training_webhook_ignored")
		return nil
	}

	applied, err := s.repo.CompleteTraining(ctx, user.ID, modelID, target, version)
	if err != nil {
		logger.WithError(err).Error("training_webhook_update_failed")
		return upstreamError(MsgWebhookFailed, err)
	}

	if !applied {
		current, err := s.repo.GetUserModel(ctx, user.ID, modelID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(MsgModelNotFound)
			}
			return upstreamError(MsgWebhookFailed, err)
		}
		logger.WithFields(logrus.Fields{
			"current_status": current.Status,
			"terminal":       current.IsTerminal(),
		}).Info("training_webhook_replayed")
		return nil
	}

	if payload.Error != nil && target != entity.ModelStatusFinished {
		logger = logger.WithField("provider_error", fmt.Sprint(payload.Error))
	}
	logger.WithField("model_ref", version).Info("training_webhook_applied")

	if target == entity.ModelStatusFinished && s.notifier != nil {
		current, err := s.repo.GetModel(ctx, modelID)
		name := ""
		if err == nil {
			name = current.Name
		}
		s.notifier.ModelReady(ctx, user.Email, name, modelID)
	}
	return nil
}

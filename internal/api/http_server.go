package api

import (
	"context"
	"net/http"
	"time"

	"retratai/internal/auth"
	"retratai/internal/config"
	"retratai/internal/entity"
	"retratai/internal/model"
	"retratai/internal/service"
	"retratai/internal/storage"

	"github.com/gin-gonic/gin"
)

// TrainingSubmitter 提交训练任务。
type TrainingSubmitter interface {
	Submit(ctx context.Context, userID uint, req entity.TrainModelRequest) (*entity.TrainModelResponse, error)
}

// WebhookProcessor 校验并应用训练回调。
type WebhookProcessor interface {
	Authorize(ctx context.Context, params service.WebhookParams) (*entity.DbUser, uint, error)
	Handle(ctx context.Context, user *entity.DbUser, modelID uint, payload entity.TrainingWebhookPayload) error
}

// ImageGenerator 为训练完成的模型生成图片。
type ImageGenerator interface {
	Generate(ctx context.Context, user *entity.DbUser, modelID uint) (*entity.GenerateImagesResponse, error)
}

var (
	_ TrainingSubmitter = (*service.TrainingService)(nil)
	_ WebhookProcessor  = (*service.WebhookService)(nil)
	_ ImageGenerator    = (*service.GenerationService)(nil)
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	repo        model.Repository
	storage     storage.Storage
	resolver    storage.URLResolver
	authManager *auth.Manager

	// 服务层
	training   TrainingSubmitter
	webhooks   WebhookProcessor
	generation ImageGenerator
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, training TrainingSubmitter, webhooks WebhookProcessor, generation ImageGenerator) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	return &HTTPHandler{
		cfg:         cfg,
		repo:        repo,
		storage:     store,
		resolver:    storage.NewURLResolver(cfg),
		authManager: authManager,
		training:    training,
		webhooks:    webhooks,
		generation:  generation,
	}, nil
}

// RegisterRoutes 注册全部 API 路由。
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	apiGroup.POST("/auth/register", h.Register)
	apiGroup.POST("/auth/login", h.Login)
	apiGroup.POST("/webhooks/training", h.TrainingWebhook)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())
	protected.GET("/auth/me", h.Me)
	protected.GET("/credits", h.GetCredits)
	protected.POST("/uploads", h.UploadImage)
	protected.POST("/models/train", h.TrainModel)
	protected.GET("/models", h.ListModels)
	protected.GET("/models/:id", h.GetModel)
	protected.POST("/models/generate", h.GenerateImages)
}

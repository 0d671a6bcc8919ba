package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"retratai/internal/api"
	"retratai/internal/config"
	"retratai/internal/llm"
	"retratai/internal/model"
	"retratai/internal/notify"
	"retratai/internal/queue"
	"retratai/internal/service"
	"retratai/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("failed to parse config")
		os.Exit(1)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.WithField("log_level", cfg.LogLevel).Warn("invalid log level, using info")
		logrus.SetLevel(logrus.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Error("server_exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	repo, err := model.InitRepository(&cfg)
	if err != nil {
		return fmt.Errorf("initialise repository: %w", err)
	}
	if err := model.SeedCreditAccounts(ctx, repo, cfg); err != nil {
		logrus.WithError(err).Warn("failed to seed credit accounts")
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("initialise storage: %w", err)
	}

	replicate := llm.NewReplicateClient(cfg)
	captioner, err := llm.NewGeminiCaptioner(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise captioner: %w", err)
	}
	media := llm.NewMediaService()

	outbox, err := newOutbox(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise outbox: %w", err)
	}
	defer outbox.Close()

	mailer, err := newMailer(cfg)
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}
	notifier := notify.NewNotifier(outbox, cfg.AppBaseURL)

	worker := queue.NewWorker(outbox, cfg.QueueMaxAttempts)
	worker.Handle(notify.TaskTypeEmail, notify.EmailHandler(mailer))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil {
			logrus.WithError(err).Error("outbox worker stopped with error")
		}
	}()

	trainingSvc := service.NewTrainingService(cfg, repo, store, media, captioner, replicate)
	webhookSvc := service.NewWebhookService(repo, notifier, cfg.WebhookSecret)
	generationSvc := service.NewGenerationService(cfg, repo, store, media, replicate, notifier)

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, trainingSvc, webhookSvc, generationSvc)
	if err != nil {
		return fmt.Errorf("initialise http handler: %w", err)
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(api.RequestIDMiddleware())
	r.Use(api.LoggingMiddleware())
	r.Use(api.CORSMiddleware())
	r.Use(gin.Recovery())

	httpHandler.RegisterRoutes(r)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := storage.NormalisePublicBase(cfg.StoragePublicBaseURL)
		if strings.HasPrefix(publicPrefix, "/") {
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	// 生成接口同步等待推理结果，写超时需覆盖 GENERATION_TIMEOUT
	writeTimeout := cfg.GenerationTimeout + time.Minute
	if writeTimeout < 15*time.Minute {
		writeTimeout = 15 * time.Minute
	}
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  1200 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("host", serverHost).Info("server_started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logrus.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http server shutdown incomplete")
	}

	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logrus.Warn("outbox worker did not stop in time")
	}
	return nil
}

// newOutbox 配置了 REDIS_ADDR 时使用 Redis 队列，否则使用进程内队列。
func newOutbox(ctx context.Context, cfg config.Config) (queue.Queue, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logrus.Info("outbox using in-memory queue")
		return queue.NewMemoryQueue(0), nil
	}
	q, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.QueueRedisKey,
	})
	if err != nil {
		return nil, err
	}
	logrus.WithField("redis_addr", cfg.RedisAddr).Info("outbox using redis queue")
	return q, nil
}

func newMailer(cfg config.Config) (notify.Mailer, error) {
	if strings.TrimSpace(cfg.ResendAPIKey) == "" {
		logrus.Warn("RESEND_API_KEY not set, emails will only be logged")
		return notify.LogMailer{}, nil
	}
	mailer, err := notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"retratai/internal/config"
	"retratai/internal/entity"
	"retratai/internal/llm"
	"retratai/internal/model"
	"retratai/internal/model/sql"
	"retratai/internal/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *sql.GormRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entity.DbUser{}, &entity.DbCredit{}, &entity.DbModel{}, &entity.DbSample{}, &entity.DbImage{}))
	return sql.NewGormRepository(db)
}

func testConfig() config.Config {
	return config.Config{
		AppBaseURL:                "https://retratai.app",
		StoragePublicBaseURL:      "/files",
		WebhookSecret:             "S3cret",
		TrainingFetchWorkers:      2,
		GenerationOutputsPerBatch: 2,
		GenerationWorkers:         2,
		GenerationTimeout:         5 * time.Second,
	}
}

func seedUser(t *testing.T, repo model.Repository, email string, credits int) *entity.DbUser {
	t.Helper()
	user := &entity.DbUser{Email: email, PasswordHash: "x", IsActive: true}
	require.NoError(t, repo.CreateUser(context.Background(), user, credits))
	return user
}

func seedModel(t *testing.T, repo model.Repository, m entity.DbModel) *entity.DbModel {
	t.Helper()
	if m.Name == "" {
		m.Name = "Ana"
	}
	if m.Type == "" {
		m.Type = entity.ModelTypeWoman
	}
	require.NoError(t, repo.CreateModel(context.Background(), &m))
	return &m
}

func requireKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok, "expected service error, got %v", err)
	require.Equal(t, kind, svcErr.Kind)
	if msg != "" {
		require.Equal(t, msg, svcErr.Message)
	}
}

type savedObject struct {
	Key  string
	Data []byte
	Opts storage.SaveOptions
}

type fakeStorage struct {
	mu    sync.Mutex
	saved []savedObject
	err   error
	// failCategory 只让指定分类的保存失败
	failCategory string
}

func (s *fakeStorage) Save(_ context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && (s.failCategory == "" || s.failCategory == opts.Category) {
		return "", s.err
	}
	key := fmt.Sprintf("%s/%s.%s", opts.Category, opts.BaseName, opts.Extension)
	s.saved = append(s.saved, savedObject{Key: key, Data: data, Opts: opts})
	return key, nil
}

func (s *fakeStorage) objects(category string) []savedObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []savedObject
	for _, o := range s.saved {
		if o.Opts.Category == category {
			out = append(out, o)
		}
	}
	return out
}

type fakeMedia struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (m *fakeMedia) Fetch(_ context.Context, input string) (*llm.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[input] {
		return nil, fmt.Errorf("download media http 404")
	}
	return &llm.Media{Data: []byte("bytes:" + input), MimeType: "image/jpeg", Extension: "jpg", SourceURL: input}, nil
}

type fakeCaptioner struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *fakeCaptioner) Caption(_ context.Context, data []byte, mimeType, gender string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return "", errors.New("gemini: caption: rate limited after 4 attempts")
	}
	return "TOK " + gender + " " + string(data), nil
}

type fakeTrainer struct {
	createModelErr error
	trainingErr    error
	// onTraining 在训练提交成功前执行，用于模拟并发的额度扣减
	onTraining func()

	modelNames []string
	trainings  []llm.TrainingRequest
	cancelled  []string
}

func (f *fakeTrainer) CreateModel(_ context.Context, name string) (string, error) {
	f.modelNames = append(f.modelNames, name)
	if f.createModelErr != nil {
		return "", f.createModelErr
	}
	return "retratai/" + name, nil
}

func (f *fakeTrainer) CreateTraining(_ context.Context, req llm.TrainingRequest) (*llm.Job, error) {
	f.trainings = append(f.trainings, req)
	if f.trainingErr != nil {
		return nil, f.trainingErr
	}
	if f.onTraining != nil {
		f.onTraining()
	}
	return &llm.Job{ID: "tr_1", Status: llm.JobStatusPending}, nil
}

func (f *fakeTrainer) CancelTraining(_ context.Context, trainingID string) error {
	f.cancelled = append(f.cancelled, trainingID)
	return nil
}

type fakePredictor struct {
	mu      sync.Mutex
	prompts []string
	// failPrompt 返回 true 的批次以 failed 结束
	failPrompt func(prompt string) bool
	createErr  error
	jobs       map[string]string
	seq        int
}

func (p *fakePredictor) CreatePrediction(_ context.Context, req llm.PredictionRequest) (*llm.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, req.Prompt)
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.jobs == nil {
		p.jobs = map[string]string{}
	}
	p.seq++
	id := fmt.Sprintf("p_%d", p.seq)
	p.jobs[id] = req.Prompt
	return &llm.Job{ID: id, Status: llm.JobStatusPending}, nil
}

func (p *fakePredictor) Poll(_ context.Context, jobID string) (*llm.Job, error) {
	p.mu.Lock()
	prompt := p.jobs[jobID]
	p.mu.Unlock()
	if p.failPrompt != nil && p.failPrompt(prompt) {
		return &llm.Job{ID: jobID, Status: llm.JobStatusFailed, Error: errors.New("CUDA out of memory")}, nil
	}
	return &llm.Job{
		ID:      jobID,
		Status:  llm.JobStatusSucceeded,
		Outputs: []string{"https://replicate.delivery/" + jobID + "/0.webp", "https://replicate.delivery/" + jobID + "/1.webp"},
	}, nil
}

func (p *fakePredictor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

type notification struct {
	Kind    string
	To      string
	ModelID uint
	Count   int
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) ModelReady(_ context.Context, to, _ string, modelID uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{Kind: "model_ready", To: to, ModelID: modelID})
}

func (n *fakeNotifier) ImagesReady(_ context.Context, to, _ string, modelID uint, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{Kind: "images_ready", To: to, ModelID: modelID, Count: count})
}

func (n *fakeNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

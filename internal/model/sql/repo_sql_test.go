package sql

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"retratai/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *GormRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entity.DbUser{}, &entity.DbCredit{}, &entity.DbModel{}, &entity.DbSample{}, &entity.DbImage{}))
	return NewGormRepository(db)
}

func createUser(t *testing.T, repo *GormRepository, email string, credits int) *entity.DbUser {
	t.Helper()
	user := &entity.DbUser{Email: email, PasswordHash: "x", IsActive: true}
	require.NoError(t, repo.CreateUser(context.Background(), user, credits))
	return user
}

func createModel(t *testing.T, repo *GormRepository, userID uint, status string) *entity.DbModel {
	t.Helper()
	m := &entity.DbModel{UserID: userID, Name: "Ana", Type: entity.ModelTypeWoman, Status: status}
	require.NoError(t, repo.CreateModel(context.Background(), m))
	return m
}

func TestNilRepositoryGuard(t *testing.T) {
	var repo *GormRepository
	_, err := repo.GetModel(context.Background(), 1)
	require.EqualError(t, err, "repository not initialised")
}

func TestCreateUserSeedsCredits(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "Ana@Example.com", 3)

	credits, err := repo.GetCredits(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, credits)

	loaded, err := repo.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loaded.ID)

	ids, err := repo.ListUserIDsWithoutCredits(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEnsureCreditsKeepsExistingBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 2)

	require.NoError(t, repo.EnsureCredits(ctx, user.ID, 10))
	credits, err := repo.GetCredits(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, credits)
}

func TestDeductCreditNeverGoesNegative(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 1)

	require.NoError(t, repo.DeductCredit(ctx, user.ID))
	assert.ErrorIs(t, repo.DeductCredit(ctx, user.ID), ErrInsufficientCredits)

	credits, err := repo.GetCredits(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, credits)

	require.NoError(t, repo.RefundCredit(ctx, user.ID))
	credits, err = repo.GetCredits(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, credits)
}

func TestCompleteTrainingAppliesOnce(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		modelRef  string
		wantRef   string
		wantState string
	}{
		{name: "finished", status: entity.ModelStatusFinished, modelRef: "owner/ana:v1", wantRef: "owner/ana:v1", wantState: entity.ModelStatusFinished},
		{name: "failed", status: entity.ModelStatusFailed, wantState: entity.ModelStatusFailed},
		{name: "canceled", status: entity.ModelStatusCanceled, wantState: entity.ModelStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			ctx := context.Background()
			user := createUser(t, repo, "a@example.com", 0)
			m := createModel(t, repo, user.ID, entity.ModelStatusProcessing)

			applied, err := repo.CompleteTraining(ctx, user.ID, m.ID, tt.status, tt.modelRef)
			require.NoError(t, err)
			assert.True(t, applied)

			applied, err = repo.CompleteTraining(ctx, user.ID, m.ID, tt.status, "owner/ana:v2")
			require.NoError(t, err)
			assert.False(t, applied)

			loaded, err := repo.GetModel(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, loaded.Status)
			assert.Equal(t, tt.wantRef, loaded.ModelRef)
		})
	}
}

func TestCompleteTrainingRejectsWrongOwnerAndMissingRef(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0)
	m := createModel(t, repo, user.ID, entity.ModelStatusProcessing)

	applied, err := repo.CompleteTraining(ctx, user.ID+1, m.ID, entity.ModelStatusFinished, "ref")
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = repo.CompleteTraining(ctx, user.ID, m.ID, entity.ModelStatusFinished, " ")
	require.Error(t, err)

	_, err = repo.CompleteTraining(ctx, user.ID, m.ID, entity.ModelStatusProcessing, "")
	require.Error(t, err)

	loaded, err := repo.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ModelStatusProcessing, loaded.Status)
}

func TestClaimGenerationIsExclusive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0)
	m := createModel(t, repo, user.ID, entity.ModelStatusFinished)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimGeneration(ctx, user.ID, m.ID)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	require.NoError(t, repo.ReleaseGeneration(ctx, m.ID))
	ok, err := repo.ClaimGeneration(ctx, user.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimGenerationRequiresFinished(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0)
	m := createModel(t, repo, user.ID, entity.ModelStatusProcessing)

	ok, err := repo.ClaimGeneration(ctx, user.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteModelCascadesAssets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0)
	m := createModel(t, repo, user.ID, entity.ModelStatusProcessing)

	require.NoError(t, repo.CreateSamples(ctx, []entity.DbSample{{ModelID: m.ID, URI: "https://x/1.jpg"}, {ModelID: m.ID, URI: "https://x/2.jpg"}}))
	require.NoError(t, repo.DeleteModel(ctx, m.ID))

	_, err := repo.GetModel(ctx, m.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	samples, err := repo.ListSamples(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)

	assert.ErrorIs(t, repo.DeleteModel(ctx, m.ID), gorm.ErrRecordNotFound)
}

func TestListModelsFiltersByOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ana := createUser(t, repo, "ana@example.com", 0)
	luis := createUser(t, repo, "luis@example.com", 0)
	createModel(t, repo, ana.ID, entity.ModelStatusProcessing)
	createModel(t, repo, ana.ID, entity.ModelStatusFinished)
	createModel(t, repo, luis.ID, entity.ModelStatusFinished)

	models, meta, err := repo.ListModels(ctx, &entity.ModelQuery{UserID: ana.ID})
	require.NoError(t, err)
	assert.Len(t, models, 2)
	assert.Equal(t, int64(2), meta.Total)

	models, _, err = repo.ListModels(ctx, &entity.ModelQuery{UserID: ana.ID, Status: entity.ModelStatusFinished})
	require.NoError(t, err)
	assert.Len(t, models, 1)

	_, err = repo.GetUserModel(ctx, luis.ID, models[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateImagesBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0)
	m := createModel(t, repo, user.ID, entity.ModelStatusFinished)

	images := []entity.DbImage{
		{ModelID: m.ID, URI: "https://cdn/1.webp", OriginalURI: "https://replicate/1.webp"},
		{ModelID: m.ID, URI: "https://replicate/2.webp", OriginalURI: "https://replicate/2.webp"},
	}
	require.NoError(t, repo.CreateImages(ctx, images))
	assert.NotZero(t, images[0].ID)

	loaded, err := repo.ListImages(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "https://replicate/1.webp", loaded[0].OriginalURI)
}

func TestUpdateModelBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0)
	m := createModel(t, repo, user.ID, entity.ModelStatusProcessing)

	trainingID := "tr_123"
	require.NoError(t, repo.UpdateModel(ctx, m.ID, entity.ModelUpdates{TrainingID: &trainingID}))
	require.NoError(t, repo.UpdateModel(ctx, m.ID, entity.ModelUpdates{}))

	loaded, err := repo.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "tr_123", loaded.TrainingID)
	assert.Empty(t, loaded.ModelRef)
}

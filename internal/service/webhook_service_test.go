package service

import (
	"context"
	"strconv"
	"testing"

	"retratai/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeededPayload(version string) entity.TrainingWebhookPayload {
	payload := entity.TrainingWebhookPayload{ID: "tr_1", Status: "succeeded"}
	if version != "" {
		payload.Output = &struct {
			Version string `json:"version"`
			Weights string `json:"weights,omitempty"`
		}{Version: version}
	}
	return payload
}

func TestAuthorizeWebhook(t *testing.T) {
	tests := []struct {
		name   string
		params WebhookParams
		kind   Kind
		msg    string
	}{
		{name: "缺少用户ID", params: WebhookParams{ModelID: "2", Secret: "S3cret"}, kind: KindValidation, msg: MsgMalformedWebhook},
		{name: "模型ID非数字", params: WebhookParams{UserID: "1", ModelID: "abc", Secret: "S3cret"}, kind: KindValidation, msg: MsgMalformedWebhook},
		{name: "缺少密钥", params: WebhookParams{UserID: "1", ModelID: "2"}, kind: KindValidation, msg: MsgMalformedWebhook},
		{name: "密钥错误", params: WebhookParams{UserID: "1", ModelID: "2", Secret: "wrong"}, kind: KindUnauthorized, msg: MsgUnauthorized},
		{name: "密钥忽略大小写", params: WebhookParams{UserID: "1", ModelID: "2", Secret: "s3CRET"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, modelID, err := AuthorizeWebhook(tt.params, "S3cret")
			if tt.kind == 0 {
				require.NoError(t, err)
				assert.Equal(t, uint(1), userID)
				assert.Equal(t, uint(2), modelID)
				return
			}
			requireKind(t, err, tt.kind, tt.msg)
		})
	}

	_, _, err := AuthorizeWebhook(WebhookParams{UserID: "1", ModelID: "2", Secret: ""}, "")
	assert.Error(t, err)
}

type webhookFixture struct {
	svc      *WebhookService
	notifier *fakeNotifier
	user     *entity.DbUser
	model    *entity.DbModel
	repo     interface {
		GetModel(ctx context.Context, id uint) (*entity.DbModel, error)
	}
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	repo := newTestRepo(t)
	notifier := &fakeNotifier{}
	user := seedUser(t, repo, "ana@example.com", 0)
	m := seedModel(t, repo, entity.DbModel{UserID: user.ID, Status: entity.ModelStatusProcessing})
	return &webhookFixture{
		svc:      NewWebhookService(repo, notifier, "S3cret"),
		notifier: notifier,
		user:     user,
		model:    m,
		repo:     repo,
	}
}

func (f *webhookFixture) params(secret string) WebhookParams {
	return WebhookParams{
		UserID:  strconv.FormatUint(uint64(f.user.ID), 10),
		ModelID: strconv.FormatUint(uint64(f.model.ID), 10),
		Secret:  secret,
	}
}

func (f *webhookFixture) reload(t *testing.T) *entity.DbModel {
	t.Helper()
	m, err := f.repo.GetModel(context.Background(), f.model.ID)
	require.NoError(t, err)
	return m
}

func TestWebhookAuthorize(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	user, modelID, err := f.svc.Authorize(ctx, f.params("S3CRET"))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	assert.Equal(t, f.model.ID, modelID)

	_, _, err = f.svc.Authorize(ctx, f.params("nope"))
	requireKind(t, err, KindUnauthorized, MsgUnauthorized)
	assert.Equal(t, entity.ModelStatusProcessing, f.reload(t).Status)

	missingUser := f.params("S3cret")
	missingUser.UserID = "9999"
	_, _, err = f.svc.Authorize(ctx, missingUser)
	requireKind(t, err, KindUnauthorized, MsgUnauthorized)
}

func TestWebhookSucceededIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, f.user, f.model.ID, succeededPayload("retratai/ana:v1")))
	first := f.reload(t)
	assert.Equal(t, entity.ModelStatusFinished, first.Status)
	assert.Equal(t, "retratai/ana:v1", first.ModelRef)

	require.NoError(t, f.svc.Handle(ctx, f.user, f.model.ID, succeededPayload("retratai/ana:v2")))
	second := f.reload(t)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, "retratai/ana:v1", second.ModelRef)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "model_ready", sent[0].Kind)
	assert.Equal(t, "ana@example.com", sent[0].To)
}

func TestWebhookSucceededWithoutVersion(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.Handle(context.Background(), f.user, f.model.ID, succeededPayload(""))
	requireKind(t, err, KindUpstream, MsgMissingVersion)
	assert.Equal(t, entity.ModelStatusProcessing, f.reload(t).Status)
	assert.Empty(t, f.notifier.all())
}

func TestWebhookTerminalFailures(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   string
	}{
		{name: "failed", status: "failed", want: entity.ModelStatusFailed},
		{name: "canceled", status: "canceled", want: entity.ModelStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			payload := entity.TrainingWebhookPayload{ID: "tr_1", Status: tt.status, Error: "boom"}

			require.NoError(t, f.svc.Handle(context.Background(), f.user, f.model.ID, payload))
			m := f.reload(t)
			assert.Equal(t, tt.want, m.Status)
			assert.Empty(t, m.ModelRef)
			assert.Empty(t, f.notifier.all())

			// 终态之后的成功回调不会覆盖状态
			require.NoError(t, f.svc.Handle(context.Background(), f.user, f.model.ID, succeededPayload("retratai/ana:v1")))
			assert.Equal(t, tt.want, f.reload(t).Status)
		})
	}
}

func TestWebhookIgnoresNonTerminalStatuses(t *testing.T) {
	f := newWebhookFixture(t)
	for _, status := range []string{"starting", "processing", "weird"} {
		require.NoError(t, f.svc.Handle(context.Background(), f.user, f.model.ID, entity.TrainingWebhookPayload{Status: status}))
	}
	assert.Equal(t, entity.ModelStatusProcessing, f.reload(t).Status)
}

func TestWebhookMissingModel(t *testing.T) {
	f := newWebhookFixture(t)
	err := f.svc.Handle(context.Background(), f.user, f.model.ID+100, succeededPayload("retratai/ana:v1"))
	requireKind(t, err, KindNotFound, MsgModelNotFound)

	other := &entity.DbUser{ID: f.user.ID + 1, Email: "luis@example.com"}
	err = f.svc.Handle(context.Background(), other, f.model.ID, succeededPayload("retratai/ana:v1"))
	requireKind(t, err, KindNotFound, MsgModelNotFound)
	assert.Equal(t, entity.ModelStatusProcessing, f.reload(t).Status)
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"retratai/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReplicate(t *testing.T, handler http.HandlerFunc) *ReplicateClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewReplicateClient(config.Config{
		ReplicateBaseURL:          server.URL,
		ReplicateAPIToken:         "r8_test",
		ReplicateOwner:            "retratai",
		ReplicateTrainerModel:     "ostris/flux-dev-lora-trainer",
		ReplicateTrainerVersion:   "abc123",
		ReplicateTrainingHardware: "gpu-t4",
	})
	client.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	return client
}

func TestReplicateCreateModel(t *testing.T) {
	var got replicateModelRequest
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"owner":"retratai","name":"ana-1"}`))
	})

	destination, err := client.CreateModel(context.Background(), "ana-1")
	require.NoError(t, err)
	assert.Equal(t, "retratai/ana-1", destination)
	assert.Equal(t, "private", got.Visibility)
	assert.Equal(t, "gpu-t4", got.Hardware)
}

func TestReplicateCreateModelRejected(t *testing.T) {
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"model already exists"}`))
	})

	_, err := client.CreateModel(context.Background(), "ana-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model already exists")
}

func TestReplicateCreateTraining(t *testing.T) {
	var got trainingBody
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/ostris/flux-dev-lora-trainer/versions/abc123/trainings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tr_1","status":"starting"}`))
	})

	job, err := client.CreateTraining(context.Background(), TrainingRequest{
		Destination: "retratai/ana-1",
		ZipURL:      "https://cdn/zip/model_1.zip",
		WebhookURL:  "https://app/api/webhooks/training?user_id=1&model_id=1&webhook_secret=s",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", job.ID)
	assert.Equal(t, JobStatusPending, job.Status)

	assert.Equal(t, "retratai/ana-1", got.Destination)
	assert.Equal(t, []string{"completed"}, got.WebhookEventsFilter)
	assert.Equal(t, 2000, got.Input.Steps)
	assert.Equal(t, 16, got.Input.LoraRank)
	assert.Equal(t, "TOK", got.Input.TriggerWord)
	assert.False(t, got.Input.Autocaption)
	assert.Equal(t, "https://cdn/zip/model_1.zip", got.Input.InputImages)
}

func TestReplicateCreateTrainingRequiresZip(t *testing.T) {
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})
	_, err := client.CreateTraining(context.Background(), TrainingRequest{Destination: "retratai/x"})
	assert.Error(t, err)
}

func TestReplicateCreatePredictionUsesVersionHash(t *testing.T) {
	var got predictionBody
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predictions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p_1","status":"starting"}`))
	})

	job, err := client.CreatePrediction(context.Background(), PredictionRequest{
		ModelRef:   "retratai/ana-1:deadbeef",
		Prompt:     "professional headshot of TOK",
		NumOutputs: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "p_1", job.ID)
	assert.Equal(t, "deadbeef", got.Version)
	assert.Equal(t, 4, got.Input.NumOutputs)
	assert.Equal(t, "webp", got.Input.OutputFormat)
	assert.Equal(t, 28, got.Input.NumInferenceSteps)
}

func TestReplicatePollOutputs(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   JobStatus
		outputs  []string
		hasError bool
	}{
		{
			name:    "列表输出",
			body:    `{"id":"p","status":"succeeded","output":["https://r/1.webp","https://r/2.webp"]}`,
			status:  JobStatusSucceeded,
			outputs: []string{"https://r/1.webp", "https://r/2.webp"},
		},
		{
			name:    "单个输出",
			body:    `{"id":"p","status":"succeeded","output":"https://r/1.webp"}`,
			status:  JobStatusSucceeded,
			outputs: []string{"https://r/1.webp"},
		},
		{
			name:     "失败",
			body:     `{"id":"p","status":"failed","error":"CUDA out of memory"}`,
			status:   JobStatusFailed,
			hasError: true,
		},
		{
			name:   "处理中",
			body:   `{"id":"p","status":"processing"}`,
			status: JobStatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/predictions/p", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			job, err := client.Poll(context.Background(), "p")
			require.NoError(t, err)
			assert.Equal(t, tt.status, job.Status)
			assert.Equal(t, tt.outputs, job.Outputs)
			assert.Equal(t, tt.hasError, job.Error != nil)
		})
	}
}

func TestReplicateCancelTraining(t *testing.T) {
	called := false
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/trainings/tr_1/cancel", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"tr_1","status":"canceled"}`))
	})

	require.NoError(t, client.CancelTraining(context.Background(), "tr_1"))
	assert.True(t, called)
	require.NoError(t, client.CancelTraining(context.Background(), ""))
}

func TestVersionID(t *testing.T) {
	assert.Equal(t, "abc", VersionID("owner/name:abc"))
	assert.Equal(t, "abc", VersionID(" abc "))
	assert.Equal(t, "", VersionID(""))
}

func TestReplicateDoesNotRetryBillablePosts(t *testing.T) {
	tests := []struct {
		name string
		call func(c *ReplicateClient) error
	}{
		{
			name: "创建模型",
			call: func(c *ReplicateClient) error {
				_, err := c.CreateModel(context.Background(), "ana-1")
				return err
			},
		},
		{
			name: "提交训练",
			call: func(c *ReplicateClient) error {
				_, err := c.CreateTraining(context.Background(), TrainingRequest{
					Destination: "retratai/ana-1",
					ZipURL:      "https://cdn/zip/model_1.zip",
				})
				return err
			},
		},
		{
			name: "提交生成",
			call: func(c *ReplicateClient) error {
				_, err := c.CreatePrediction(context.Background(), PredictionRequest{ModelRef: "retratai/ana-1:v1", Prompt: "TOK"})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"tr_2","status":"starting"}`))
			})

			require.Error(t, tt.call(client))
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestReplicatePollRetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestReplicate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"p","status":"processing"}`))
	})

	job, err := client.Poll(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, int32(2), hits.Load())
}

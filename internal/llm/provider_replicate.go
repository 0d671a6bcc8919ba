package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"retratai/internal/config"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const providerReplicate = "replicate"

// TriggerWord is the token the LoRA is trained on and prompts refer to.
const TriggerWord = "TOK"

// TrainingRequest describes a LoRA training submission.
type TrainingRequest struct {
	Destination string
	ZipURL      string
	WebhookURL  string
}

// PredictionRequest describes one generation batch.
type PredictionRequest struct {
	ModelRef   string
	Prompt     string
	NumOutputs int
}

// ReplicateClient talks to the Replicate HTTP API.
type ReplicateClient struct {
	client         *resty.Client
	owner          string
	trainerModel   string
	trainerVersion string
	hardware       string
}

// NewReplicateClient builds a client from configuration.
func NewReplicateClient(cfg config.Config) *ReplicateClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ReplicateBaseURL, "/")).
		SetAuthToken(cfg.ReplicateAPIToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(retryIdempotent)

	return &ReplicateClient{
		client:         client,
		owner:          strings.TrimSpace(cfg.ReplicateOwner),
		trainerModel:   strings.TrimSpace(cfg.ReplicateTrainerModel),
		trainerVersion: strings.TrimSpace(cfg.ReplicateTrainerVersion),
		hardware:       strings.TrimSpace(cfg.ReplicateTrainingHardware),
	}
}

type replicateModelRequest struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	Hardware   string `json:"hardware"`
}

type trainingInput struct {
	Steps       int    `json:"steps"`
	LoraRank    int    `json:"lora_rank"`
	Optimizer   string `json:"optimizer"`
	BatchSize   int    `json:"batch_size"`
	Resolution  string `json:"resolution"`
	Autocaption bool   `json:"autocaption"`
	InputImages string `json:"input_images"`
	TriggerWord string `json:"trigger_word"`
}

type trainingBody struct {
	Destination         string        `json:"destination"`
	Input               trainingInput `json:"input"`
	Webhook             string        `json:"webhook"`
	WebhookEventsFilter []string      `json:"webhook_events_filter"`
}

type generationInput struct {
	Prompt            string  `json:"prompt"`
	Model             string  `json:"model"`
	GoFast            bool    `json:"go_fast"`
	LoraScale         float64 `json:"lora_scale"`
	Megapixels        string  `json:"megapixels"`
	NumOutputs        int     `json:"num_outputs"`
	AspectRatio       string  `json:"aspect_ratio"`
	OutputFormat      string  `json:"output_format"`
	GuidanceScale     float64 `json:"guidance_scale"`
	OutputQuality     int     `json:"output_quality"`
	PromptStrength    float64 `json:"prompt_strength"`
	ExtraLoraScale    float64 `json:"extra_lora_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

type predictionBody struct {
	Version string          `json:"version"`
	Input   generationInput `json:"input"`
}

// replicateJob is the common shape of trainings and predictions.
type replicateJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
}

type replicateError struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// CreateModel creates the private destination model that receives the trained weights.
func (c *ReplicateClient) CreateModel(ctx context.Context, name string) (string, error) {
	logger := jobLogger(ctx, providerReplicate, name)

	body := replicateModelRequest{
		Owner:      c.owner,
		Name:       name,
		Visibility: "private",
		Hardware:   c.hardware,
	}
	var errBody replicateError
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&errBody).
		Post("/models")
	if err != nil {
		return "", fmt.Errorf("replicate: create model: %w", err)
	}
	if res.IsError() {
		logger.WithField("status", res.StatusCode()).WithField("body", logSnippet(res.String())).Warn("replicate_create_model_rejected")
		return "", fmt.Errorf("replicate: create model: http %d: %s", res.StatusCode(), errBody.message(res))
	}

	destination := c.owner + "/" + name
	logger.WithField("destination", destination).Info("replicate_create_model_done")
	return destination, nil
}

// CreateTraining starts a LoRA training that reports completion to WebhookURL.
func (c *ReplicateClient) CreateTraining(ctx context.Context, req TrainingRequest) (*Job, error) {
	if strings.TrimSpace(req.Destination) == "" || strings.TrimSpace(req.ZipURL) == "" {
		return nil, errors.New("replicate: destination and zip url are required")
	}
	logger := jobLogger(ctx, providerReplicate, c.trainerModel)

	body := trainingBody{
		Destination: req.Destination,
		Input: trainingInput{
			Steps:       2000,
			LoraRank:    16,
			Optimizer:   "adamw8bit",
			BatchSize:   1,
			Resolution:  "512,768,1024",
			Autocaption: false,
			InputImages: req.ZipURL,
			TriggerWord: TriggerWord,
		},
		Webhook:             req.WebhookURL,
		WebhookEventsFilter: []string{"completed"},
	}

	path := fmt.Sprintf("/models/%s/versions/%s/trainings", c.trainerModel, url.PathEscape(c.trainerVersion))
	job, err := c.postJob(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("replicate: create training: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"training_id": job.ID,
		"destination": req.Destination,
		"webhook":     redactURL(req.WebhookURL),
	}).Info("replicate_training_submitted")
	return job, nil
}

// CancelTraining cancels a running training. Used by compensating rollbacks.
func (c *ReplicateClient) CancelTraining(ctx context.Context, trainingID string) error {
	if strings.TrimSpace(trainingID) == "" {
		return nil
	}
	var errBody replicateError
	res, err := c.client.R().
		SetContext(ctx).
		SetError(&errBody).
		Post("/trainings/" + url.PathEscape(trainingID) + "/cancel")
	if err != nil {
		return fmt.Errorf("replicate: cancel training: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("replicate: cancel training: http %d: %s", res.StatusCode(), errBody.message(res))
	}
	return nil
}

// CreatePrediction starts one generation batch against a trained version.
func (c *ReplicateClient) CreatePrediction(ctx context.Context, req PredictionRequest) (*Job, error) {
	version := VersionID(req.ModelRef)
	if version == "" {
		return nil, errors.New("replicate: model version is required")
	}
	numOutputs := req.NumOutputs
	if numOutputs <= 0 {
		numOutputs = 1
	}

	body := predictionBody{
		Version: version,
		Input: generationInput{
			Prompt:            req.Prompt,
			Model:             "dev",
			GoFast:            false,
			LoraScale:         1,
			Megapixels:        "1",
			NumOutputs:        numOutputs,
			AspectRatio:       "1:1",
			OutputFormat:      "webp",
			GuidanceScale:     3,
			OutputQuality:     80,
			PromptStrength:    0.8,
			ExtraLoraScale:    1,
			NumInferenceSteps: 28,
		},
	}

	job, err := c.postJob(ctx, "/predictions", body)
	if err != nil {
		return nil, fmt.Errorf("replicate: create prediction: %w", err)
	}
	jobLogger(ctx, providerReplicate, req.ModelRef).
		WithField("prediction_id", job.ID).
		WithField("prompt", logSnippet(req.Prompt)).
		Info("replicate_prediction_submitted")
	return job, nil
}

// Poll implements JobPoller for predictions.
func (c *ReplicateClient) Poll(ctx context.Context, predictionID string) (*Job, error) {
	var out replicateJob
	var errBody replicateError
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errBody).
		Get("/predictions/" + url.PathEscape(predictionID))
	if err != nil {
		return nil, fmt.Errorf("replicate: get prediction: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("replicate: get prediction: http %d: %s", res.StatusCode(), errBody.message(res))
	}
	return out.toJob(), nil
}

// retryIdempotent only retries reads. Model, training and prediction POSTs
// start billable work upstream and must reach Replicate at most once.
func retryIdempotent(res *resty.Response, err error) bool {
	if res == nil || res.Request == nil || res.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= 500
}

func (c *ReplicateClient) postJob(ctx context.Context, path string, body any) (*Job, error) {
	var out replicateJob
	var errBody replicateError
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post(path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("http %d: %s", res.StatusCode(), errBody.message(res))
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("response without job id")
	}
	return out.toJob(), nil
}

func (j replicateJob) toJob() *Job {
	return &Job{
		ID:        j.ID,
		Status:    MapJobStatus(j.Status),
		RawStatus: j.Status,
		Outputs:   outputURLs(j.Output),
		Error:     jobError(j.Error),
	}
}

func (e replicateError) message(res *resty.Response) string {
	if msg := strings.TrimSpace(e.Detail); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Title); msg != "" {
		return msg
	}
	return logSnippet(res.String())
}

// outputURLs normalises a prediction output, which is either a URL or a list of URLs.
func outputURLs(raw any) []string {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case []any:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				urls = append(urls, s)
			}
		}
		return urls
	default:
		return nil
	}
}

// VersionID extracts the version hash from "owner/model:version" references.
func VersionID(modelRef string) string {
	ref := strings.TrimSpace(modelRef)
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

var _ JobPoller = (*ReplicateClient)(nil)

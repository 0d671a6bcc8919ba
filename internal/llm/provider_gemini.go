package llm

import (
	"context"
	"errors"
	"fmt"
	"retratai/internal/config"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

const (
	captionBaseDelay = time.Second
	captionMaxDelay  = 16 * time.Second
)

// captionFunc 发起一次描述请求，便于测试替换。
type captionFunc func(ctx context.Context, data []byte, mimeType, prompt string) (string, error)

// GeminiCaptioner 为训练图片生成单句描述。
type GeminiCaptioner struct {
	model       string
	maxAttempts int
	generate    captionFunc
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewGeminiCaptioner(ctx context.Context, cfg config.Config) (*GeminiCaptioner, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, errors.New("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := strings.TrimSpace(cfg.CaptionModel)
	generate := func(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
		contents := []*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromBytes(data, mimeType),
				genai.NewPartFromText(prompt),
			},
		}}
		resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return newGeminiCaptioner(model, cfg.CaptionMaxAttempts, generate), nil
}

func newGeminiCaptioner(model string, maxAttempts int, generate captionFunc) *GeminiCaptioner {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &GeminiCaptioner{
		model:       model,
		maxAttempts: maxAttempts,
		generate:    generate,
		sleep:       sleepContext,
	}
}

// CaptionPrompt 返回指定性别的描述提示词。
func CaptionPrompt(gender string) string {
	return fmt.Sprintf("a photo of a ohwx %s %s, describe the person, clothing, pose, lighting and background in one sentence", gender, TriggerWord)
}

// Caption 描述一张图片，遇到 429 时按指数退避重试。
// 描述结果总是以触发词开头。
func (g *GeminiCaptioner) Caption(ctx context.Context, data []byte, mimeType, gender string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("gemini: empty image payload")
	}
	logger := jobLogger(ctx, providerGemini, g.model)
	prompt := CaptionPrompt(gender)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		text, err := g.generate(ctx, data, mimeType, prompt)
		if err == nil {
			return withTriggerWord(text), nil
		}
		lastErr = err
		if !isRateLimitError(err) {
			return "", fmt.Errorf("gemini: caption: %w", err)
		}
		if attempt == g.maxAttempts {
			break
		}

		delay := backoffDelay(attempt)
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("llm_caption_rate_limited")
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("gemini: caption: rate limited after %d attempts: %w", g.maxAttempts, lastErr)
}

func withTriggerWord(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return TriggerWord
	}
	if strings.HasPrefix(text, TriggerWord) {
		return text
	}
	return TriggerWord + " " + text
}

// backoffDelay 第 n 次失败后的等待时间：1s, 2s, 4s ... 最多 16s。
func backoffDelay(attempt int) time.Duration {
	delay := captionBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= captionMaxDelay {
			return captionMaxDelay
		}
	}
	return delay
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

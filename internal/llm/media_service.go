package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"retratai/internal/utils"
	"strings"
	"time"
)

// maxMediaBytes caps a single downloaded asset.
const maxMediaBytes = 20 << 20

// Media is a fetched asset.
type Media struct {
	Data      []byte
	MimeType  string
	Extension string
	SourceURL string
}

// MediaService fetches remote or inline media.
type MediaService interface {
	// Fetch accepts an http(s) URL, a data URL or a bare base64 string.
	Fetch(ctx context.Context, input string) (*Media, error)
}

type defaultMediaService struct {
	httpClient *http.Client
}

// NewMediaService creates a new MediaService instance.
func NewMediaService() MediaService {
	return &defaultMediaService{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *defaultMediaService) Fetch(ctx context.Context, input string) (*Media, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, errors.New("empty media input")
	}

	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return s.fetchURL(ctx, trimmed)
	}

	data, mimeType, ext, err := utils.DecodeMediaPayload(utils.EnsureDataURL(trimmed))
	if err != nil {
		return nil, err
	}
	return &Media{Data: data, MimeType: mimeType, Extension: ext}, nil
}

func (s *defaultMediaService) fetchURL(ctx context.Context, url string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("download media: empty body")
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("download media: larger than %d bytes", maxMediaBytes)
	}

	mimeType := utils.NormalizeMime(resp.Header.Get("Content-Type"))
	ext := utils.ExtensionFromMime(mimeType)
	if ext == "" {
		mimeType = utils.NormalizeMime(http.DetectContentType(data))
		ext = utils.ExtensionFromMime(mimeType)
	}
	if ext == "" {
		ext = "bin"
	}

	return &Media{Data: data, MimeType: mimeType, Extension: ext, SourceURL: url}, nil
}

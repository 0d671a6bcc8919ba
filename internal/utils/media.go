package utils

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

func EnsureDataURL(value string) string {
	if strings.HasPrefix(value, "data:") {
		return value
	}
	return "data:image/jpeg;base64," + value
}

func SplitDataURL(value string) (string, string) {
	if !strings.HasPrefix(value, "data:") {
		return "image/jpeg", value
	}

	value = strings.TrimPrefix(value, "data:")
	parts := strings.SplitN(value, ";base64,", 2)
	if len(parts) != 2 {
		return "image/jpeg", ""
	}
	return parts[0], parts[1]
}

// DecodeMediaPayload decodes an inline base64 or data URL payload and returns
// the raw bytes together with the detected MIME type and file extension.
func DecodeMediaPayload(payload string) ([]byte, string, string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, "", "", fmt.Errorf("empty media payload")
	}

	mimeType, base64Payload := SplitDataURL(trimmed)
	base64Payload = strings.TrimSpace(base64Payload)
	if base64Payload == "" {
		return nil, "", "", fmt.Errorf("empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, "", "", fmt.Errorf("decode base64: %w", err)
	}

	ext := ExtensionFromMime(mimeType)
	if ext == "" {
		mimeType = http.DetectContentType(data)
		ext = ExtensionFromMime(mimeType)
	}
	if ext == "" {
		ext = "bin"
	}

	return data, NormalizeMime(mimeType), ext, nil
}

// NormalizeMime strips parameters and lowercases a MIME type.
func NormalizeMime(mimeType string) string {
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// IsImageMime reports whether the MIME type is one accepted for selfies.
func IsImageMime(mimeType string) bool {
	switch NormalizeMime(mimeType) {
	case "image/png", "image/jpeg", "image/jpg", "image/webp", "image/heic", "image/heif":
		return true
	default:
		return false
	}
}

func ExtensionFromMime(mimeType string) string {
	if mimeType == "" {
		return ""
	}

	switch NormalizeMime(mimeType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic":
		return "heic"
	case "image/heif":
		return "heif"
	case "application/zip":
		return "zip"
	default:
		return ""
	}
}

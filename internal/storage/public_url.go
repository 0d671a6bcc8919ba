package storage

import (
	"fmt"
	"retratai/internal/config"
	"strings"
)

// URLResolver 将存储后端返回的 key 转换为外部可访问的绝对地址。
type URLResolver struct {
	appBaseURL string
	publicBase string
}

// NewURLResolver 根据配置创建 URLResolver。
func NewURLResolver(cfg config.Config) URLResolver {
	return URLResolver{
		appBaseURL: strings.TrimRight(strings.TrimSpace(cfg.AppBaseURL), "/"),
		publicBase: NormalisePublicBase(cfg.StoragePublicBaseURL),
	}
}

// Resolve 返回绝对 URL。已是 http(s) 地址的 key 原样返回。
func (r URLResolver) Resolve(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return ""
	}
	if isAbsoluteURL(trimmed) {
		return trimmed
	}
	base := r.publicBase
	if !isAbsoluteURL(base) {
		base = r.appBaseURL + base
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(trimmed, "/"))
}

// NormalisePublicBase 规范化公共 URL 基础路径
func NormalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if isAbsoluteURL(trimmed) {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

func isAbsoluteURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

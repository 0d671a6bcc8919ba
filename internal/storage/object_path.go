package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// CategoryZip 保存提交给训练任务的图片压缩包。
	CategoryZip = "zip"
	// CategoryImages 保存转存后的生成图片。
	CategoryImages = "images"
	// CategoryUploads 保存用户上传的训练照片。
	CategoryUploads = "uploads"
)

const (
	contentTypeZip    = "application/zip"
	contentTypeBinary = "application/octet-stream"

	cacheImmutable = "public, max-age=31536000, immutable"
	cacheNoCache   = "no-cache"
)

var imageContentTypes = map[string]string{
	"webp": "image/webp",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"heic": "image/heic",
	"avif": "image/avif",
}

// objectMeta 是一次写入在任意后端上的 key 与 HTTP 元数据。
type objectMeta struct {
	Key          string
	ContentType  string
	CacheControl string
}

func describeObject(prefix string, opts SaveOptions) objectMeta {
	key := buildObjectPath(opts.Category, opts.BaseName, opts.Extension)
	if prefix = trimPrefix(prefix); prefix != "" {
		key = joinPrefix(prefix, key)
	}
	return objectMeta{
		Key:          key,
		ContentType:  contentTypeFor(opts),
		CacheControl: cacheControlFor(opts.Category),
	}
}

// contentTypeFor 优先使用调用方嗅探到的类型，其次按分类与扩展名推断。
func contentTypeFor(opts SaveOptions) string {
	if ct := strings.ToLower(strings.TrimSpace(opts.ContentType)); ct != "" {
		return ct
	}
	ext := normalizeExtension(opts.Extension)
	category := sanitizePathSegment(opts.Category)
	if category == CategoryZip || ext == "zip" {
		return contentTypeZip
	}
	if ct, ok := imageContentTypes[ext]; ok {
		return ct
	}
	return contentTypeBinary
}

// 压缩包只被训练任务拉取一次，图片 key 带时间戳且不会被覆盖。
func cacheControlFor(category string) string {
	switch sanitizePathSegment(category) {
	case CategoryImages, CategoryUploads:
		return cacheImmutable
	default:
		return cacheNoCache
	}
}

func sanitizePathSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			builder.WriteByte(ch)
		case ch >= 'A' && ch <= 'Z':
			builder.WriteByte(ch + 32)
		case ch == '-', ch == '_':
			builder.WriteByte(ch)
		}
	}
	return builder.String()
}

func normalizeExtension(ext string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if trimmed == "" {
		return "bin"
	}
	return sanitizePathSegment(trimmed)
}

// buildObjectPath 生成 <category>/<yyyy>/<mm>/<dd>/<base>.<ext>。
func buildObjectPath(category, baseName, ext string) string {
	now := time.Now().UTC()
	category = sanitizePathSegment(category)
	if category == "" {
		category = "misc"
	}
	base := sanitizeFileBase(baseName)
	if base == "" {
		base = fmt.Sprintf("%d", now.UnixNano())
	}
	return path.Join(category, now.Format("2006/01/02"), base+"."+normalizeExtension(ext))
}

func joinPrefix(prefix, key string) string {
	cleanPrefix := trimPrefix(prefix)
	if cleanPrefix == "" {
		return strings.TrimLeft(key, "/")
	}
	return path.Join(cleanPrefix, strings.TrimLeft(key, "/"))
}

func trimPrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func sanitizeFileBase(value string) string {
	replaced := strings.ReplaceAll(strings.TrimSpace(value), " ", "-")
	return strings.Trim(sanitizePathSegment(replaced), "-_")
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"retratai/internal/config"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// supabaseObjectAPI is satisfied by the storage-go client behind supabase.Client.
type supabaseObjectAPI interface {
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketId string, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
}

type supabaseStorage struct {
	objects supabaseObjectAPI
	bucket  string
}

// NewSupabaseStorage 使用 Supabase Storage 的公共 bucket 保存文件。
func NewSupabaseStorage(cfg config.Config) (Storage, error) {
	url := strings.TrimSpace(cfg.SupabaseURL)
	key := strings.TrimSpace(cfg.SupabaseServiceKey)
	if url == "" || key == "" {
		return nil, errors.New("storage: missing Supabase url or service key")
	}
	bucket := strings.TrimSpace(cfg.StorageSupabaseBucket)
	if bucket == "" {
		return nil, errors.New("storage: missing Supabase bucket")
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: create Supabase client: %w", err)
	}

	return &supabaseStorage{objects: client.Storage, bucket: bucket}, nil
}

// Save uploads the object and returns its absolute public URL.
// Keys are unique per call, so uploads never upsert over an existing object.
func (s *supabaseStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	meta := describeObject("", opts)
	upsert := false
	if _, err := s.objects.UploadFile(s.bucket, meta.Key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType:  &meta.ContentType,
		CacheControl: &meta.CacheControl,
		Upsert:       &upsert,
	}); err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}

	public := s.objects.GetPublicUrl(s.bucket, meta.Key)
	if strings.TrimSpace(public.SignedURL) == "" {
		return "", fmt.Errorf("resolve public url for %s", meta.Key)
	}
	return public.SignedURL, nil
}

var _ Storage = (*supabaseStorage)(nil)

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"retratai/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// ossObjectAPI is satisfied by *oss.Bucket.
type ossObjectAPI interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

type ossStorage struct {
	bucket ossObjectAPI
	prefix string
}

func NewOSSStorage(cfg config.Config) (Storage, error) {
	endpoint := strings.TrimSpace(cfg.StorageOSSEndpoint)
	bucketName := strings.TrimSpace(cfg.StorageOSSBucket)
	if endpoint == "" || bucketName == "" {
		return nil, errors.New("storage: missing OSS endpoint or bucket")
	}
	accessKey := strings.TrimSpace(cfg.StorageOSSAccessKeyID)
	secretKey := strings.TrimSpace(cfg.StorageOSSAccessKeySecret)
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("storage: missing OSS credentials")
	}

	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("storage: open OSS bucket: %w", err)
	}

	return &ossStorage{bucket: bucket, prefix: trimPrefix(cfg.StorageOSSPrefix)}, nil
}

func (s *ossStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	meta := describeObject(s.prefix, opts)
	err := s.bucket.PutObject(meta.Key, bytes.NewReader(data),
		oss.WithContext(ctx),
		oss.ContentType(meta.ContentType),
		oss.CacheControl(meta.CacheControl),
	)
	if err != nil {
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) {
			return "", fmt.Errorf("put object %s: %w", svcErr.Code, err)
		}
		return "", fmt.Errorf("put object: %w", err)
	}
	return meta.Key, nil
}

var _ Storage = (*ossStorage)(nil)

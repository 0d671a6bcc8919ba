package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"retratai/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/tencentyun/cos-go-sdk-v5"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, _ := io.ReadAll(params.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, f.err
}

type fakeOSS struct {
	key     string
	body    string
	options int
}

func (f *fakeOSS) PutObject(objectKey string, reader io.Reader, options ...oss.Option) error {
	f.key = objectKey
	data, _ := io.ReadAll(reader)
	f.body = string(data)
	f.options = len(options)
	return nil
}

type fakeCOS struct {
	name string
	opt  *cos.ObjectPutOptions
}

func (f *fakeCOS) Put(_ context.Context, name string, _ io.Reader, opt *cos.ObjectPutOptions) (*cos.Response, error) {
	f.name = name
	f.opt = opt
	return nil, nil
}

type fakeSupabase struct {
	bucket string
	path   string
	opts   storage_go.FileOptions
}

func (f *fakeSupabase) UploadFile(bucketId string, relativePath string, _ io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error) {
	f.bucket = bucketId
	f.path = relativePath
	if len(fileOptions) > 0 {
		f.opts = fileOptions[0]
	}
	return storage_go.FileUploadResponse{}, nil
}

func (f *fakeSupabase) GetPublicUrl(bucketId string, filePath string, _ ...storage_go.UrlOptions) storage_go.SignedUrlResponse {
	return storage_go.SignedUrlResponse{SignedURL: "https://abc.supabase.co/storage/v1/object/public/" + bucketId + "/" + filePath}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name     string
		opts     SaveOptions
		expected string
		cache    string
	}{
		{name: "训练压缩包", opts: SaveOptions{Category: CategoryZip, Extension: "zip"}, expected: "application/zip", cache: cacheNoCache},
		{name: "压缩包缺省扩展名", opts: SaveOptions{Category: CategoryZip}, expected: "application/zip", cache: cacheNoCache},
		{name: "生成图片 webp", opts: SaveOptions{Category: CategoryImages, Extension: "webp"}, expected: "image/webp", cache: cacheImmutable},
		{name: "生成图片 jpg", opts: SaveOptions{Category: CategoryImages, Extension: ".JPG"}, expected: "image/jpeg", cache: cacheImmutable},
		{name: "上传沿用嗅探类型", opts: SaveOptions{Category: CategoryUploads, Extension: "png", ContentType: "Image/PNG"}, expected: "image/png", cache: cacheImmutable},
		{name: "未知扩展名", opts: SaveOptions{Category: "misc", Extension: "dat"}, expected: "application/octet-stream", cache: cacheNoCache},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := describeObject("", tt.opts)
			assert.Equal(t, tt.expected, meta.ContentType)
			assert.Equal(t, tt.cache, meta.CacheControl)
		})
	}
}

func TestS3StorageSave(t *testing.T) {
	client := &fakeS3{}
	store := NewS3StorageFromClient(client, "retratai", "/prod/")

	key, err := store.Save(context.Background(), []byte("PK-zip"), SaveOptions{Category: CategoryZip, BaseName: "model_7_1700000000000", Extension: "zip"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "prod/zip/"))
	assert.True(t, strings.HasSuffix(key, "/model_7_1700000000000.zip"))
	assert.Equal(t, "retratai", aws.ToString(client.input.Bucket))
	assert.Equal(t, key, aws.ToString(client.input.Key))
	assert.Equal(t, "application/zip", aws.ToString(client.input.ContentType))
	assert.Equal(t, cacheNoCache, aws.ToString(client.input.CacheControl))
	assert.Equal(t, int64(6), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, "PK-zip", client.body)
}

func TestS3StorageSaveReportsErrorCode(t *testing.T) {
	client := &fakeS3{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}
	store := NewS3StorageFromClient(client, "retratai", "")

	_, err := store.Save(context.Background(), []byte("img"), SaveOptions{Category: CategoryImages, Extension: "webp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")

	var apiErr smithy.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestR2StorageUsesAccountEndpoint(t *testing.T) {
	store, err := NewR2Storage(config.Config{
		StorageR2Bucket:          "retratai",
		StorageR2AccountID:       "acc",
		StorageR2AccessKeyID:     "ak",
		StorageR2SecretAccessKey: "sk",
		StorageR2Prefix:          "r2",
	})
	require.NoError(t, err)

	remote, ok := store.(*remoteS3Storage)
	require.True(t, ok)
	client := &fakeS3{}
	remote.client = client

	key, err := remote.Save(context.Background(), []byte("img"), SaveOptions{Category: CategoryImages, BaseName: "model_1_1_0_0", Extension: "webp"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "r2/images/"))
	assert.Equal(t, "image/webp", aws.ToString(client.input.ContentType))

	endpoint, err := r2Endpoint("", "acc")
	require.NoError(t, err)
	assert.Equal(t, "https://acc.r2.cloudflarestorage.com", endpoint)
	_, err = r2Endpoint("", "")
	assert.Error(t, err)
}

func TestOSSStorageSave(t *testing.T) {
	bucket := &fakeOSS{}
	store := &ossStorage{bucket: bucket, prefix: "oss"}

	key, err := store.Save(context.Background(), []byte("img"), SaveOptions{Category: CategoryImages, BaseName: "model_1_1_0_0", Extension: "webp"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "oss/images/"))
	assert.True(t, strings.HasSuffix(key, "/model_1_1_0_0.webp"))
	assert.Equal(t, key, bucket.key)
	assert.Equal(t, "img", bucket.body)
	assert.Equal(t, 3, bucket.options)
}

func TestCOSStorageSave(t *testing.T) {
	object := &fakeCOS{}
	store := &cosStorage{object: object}

	key, err := store.Save(context.Background(), []byte("PK-zip"), SaveOptions{Category: CategoryZip, BaseName: "model_2_1", Extension: "zip"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "zip/"))
	assert.Equal(t, key, object.name)
	require.NotNil(t, object.opt.ObjectPutHeaderOptions)
	assert.Equal(t, "application/zip", object.opt.ObjectPutHeaderOptions.ContentType)
	assert.Equal(t, cacheNoCache, object.opt.ObjectPutHeaderOptions.CacheControl)
	assert.Equal(t, int64(6), object.opt.ObjectPutHeaderOptions.ContentLength)
}

func TestSupabaseStorageSave(t *testing.T) {
	objects := &fakeSupabase{}
	store := &supabaseStorage{objects: objects, bucket: "retratai"}

	url, err := store.Save(context.Background(), []byte("img"), SaveOptions{Category: CategoryUploads, Extension: "png", ContentType: "image/png"})
	require.NoError(t, err)

	assert.Equal(t, "retratai", objects.bucket)
	assert.True(t, strings.HasPrefix(objects.path, "uploads/"))
	assert.Equal(t, "https://abc.supabase.co/storage/v1/object/public/retratai/"+objects.path, url)
	require.NotNil(t, objects.opts.ContentType)
	assert.Equal(t, "image/png", *objects.opts.ContentType)
	require.NotNil(t, objects.opts.Upsert)
	assert.False(t, *objects.opts.Upsert)
}

func TestRemoteStorageRejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stores := map[string]Storage{
		"s3":       NewS3StorageFromClient(&fakeS3{}, "b", ""),
		"oss":      &ossStorage{bucket: &fakeOSS{}},
		"cos":      &cosStorage{object: &fakeCOS{}},
		"supabase": &supabaseStorage{objects: &fakeSupabase{}, bucket: "b"},
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := store.Save(ctx, []byte("x"), SaveOptions{Category: CategoryImages, Extension: "webp"})
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var ErrInvalidKey = errors.New("invalid object key")

const prefix = "images/"

// Blobs is the image store used by listing forms.
type Blobs interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
	PublicURL(key string) string
	Delete(ctx context.Context, keys ...string) error
}

type MinIO struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

func NewMinIO(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, log *zap.Logger) (*MinIO, error) {
	log = log.Named("storage")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client for %s: %w", endpoint, err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", bucket, err)
		}
		log.Info("bucket created", zap.String("bucket", bucket))
	}

	return &MinIO{client: client, bucket: bucket, log: log}, nil
}

// ObjectKey builds a unique key that keeps the original extension.
func ObjectKey(filename string) string {
	return prefix + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

// ValidKey reports whether key was produced by ObjectKey.
func ValidKey(key string) bool {
	if !strings.HasPrefix(key, prefix) || path.Clean(key) != key {
		return false
	}
	name := strings.TrimPrefix(key, prefix)
	name = strings.TrimSuffix(name, path.Ext(name))
	_, err := uuid.Parse(name)
	return err == nil
}

func (s *MinIO) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	key := ObjectKey(filename)
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	s.log.Info("image uploaded", zap.String("key", info.Key), zap.Int64("size", info.Size))
	return key, nil
}

func (s *MinIO) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucket, key)
}

func (s *MinIO) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if !ValidKey(k) {
			return ErrInvalidKey
		}
		if err := s.client.RemoveObject(ctx, s.bucket, k, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object %s: %w", k, err)
		}
	}
	return nil
}

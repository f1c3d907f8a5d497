package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/chgenberg/bolaxo-sub002/internal/app/config"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DocumentStore keeps deal document files (LOI, DD reports, SPA drafts)
// in object storage. The core persists only the returned storage key.
type DocumentStore interface {
	Upload(ctx context.Context, dealID, originalFileName string, size int64, contentType string, body io.Reader) (string, error)
	Download(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
	log    logger.Logger
}

func NewMinioStore(ctx context.Context, cfg config.MinioConfig, log logger.Logger) (DocumentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", cfg.Endpoint, err)
	}

	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errExists := client.BucketExists(ctx, cfg.Bucket)
		if errExists != nil || !exists {
			return nil, fmt.Errorf("failed to make/verify bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &minioStore{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (s *minioStore) Upload(ctx context.Context, dealID, originalFileName string, size int64, contentType string, body io.Reader) (string, error) {
	ext := filepath.Ext(originalFileName)
	objectKey := fmt.Sprintf("deals/%s/%s%s", dealID, uuid.New().String(), ext)

	info, err := s.client.PutObject(ctx, s.bucket, objectKey, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", objectKey, s.bucket, err)
	}

	s.log.Infof("Uploaded deal document %s (%d bytes) for deal %s", info.Key, info.Size, dealID)
	return objectKey, nil
}

func (s *minioStore) Download(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, storageKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", storageKey, s.bucket, err)
	}
	return obj, nil
}

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"audiopipe/internal/config"
	"audiopipe/internal/logging"
)

// ErrNotFound reports a missing object or bucket.
var ErrNotFound = errors.New("object not found")

// API is the subset of bucket operations the manifest store needs.
type API interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte, contentType string) error
	Stat(ctx context.Context, key string) (bool, error)
	EnsureBucket(ctx context.Context) error
}

type minioAPI struct {
	mc     *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioAPI connects to the configured endpoint. No request is issued until
// the first operation.
func NewMinioAPI(cfg config.ObjectStore, logger *slog.Logger) (API, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "audiopipe"
	}
	return &minioAPI{mc: mc, bucket: bucket, logger: logging.NewComponentLogger(logger, "objectstore")}, nil
}

func (c *minioAPI) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		c.logger.Info("created bucket", logging.String("bucket", c.bucket))
	}
	return nil
}

func (c *minioAPI) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(key, err)
	}
	defer obj.Close()
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		return nil, classify(key, err)
	}
	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(key, err)
	}
	return payload, nil
}

func (c *minioAPI) Put(ctx context.Context, key string, payload []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (c *minioAPI) Stat(ctx context.Context, key string) (bool, error) {
	if _, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{}); err != nil {
		err = classify(key, err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func classify(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("object %s: %w", key, err)
}

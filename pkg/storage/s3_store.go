package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/retry"
)

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Retry governs bucket setup while the endpoint comes up. Nil uses retry.DefaultConfig.
	Retry *retry.Config
}

// S3Store is a BlobStore backed by an S3-compatible bucket. The bucket is
// created on first use.
type S3Store struct {
	client   *minio.Client
	bucket   string
	region   string
	retry    *retry.Config
	logger   *zap.Logger
	initOnce sync.Once
	initErr  error
}

// NewS3Store validates cfg and creates a minio client.
func NewS3Store(cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("storage access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		retry:  cfg.Retry,
		logger: logger.Named("s3-store"),
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = retry.Do(ctx, s.retry, func() error {
			exists, err := s.client.BucketExists(ctx, s.bucket)
			if err != nil {
				s.logger.Warn("Storage not ready", zap.String("bucket", s.bucket), zap.Error(err))
				return err
			}
			if exists {
				return nil
			}
			s.logger.Info("Creating bucket", zap.String("bucket", s.bucket), zap.String("region", s.region))
			return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		})
	})
	return s.initErr
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte, contentType string) (time.Time, error) {
	key = normalizeKey(key)
	if key == "" {
		return time.Time{}, fmt.Errorf("object key is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return time.Time{}, fmt.Errorf("ensure bucket: %w", err)
	}
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to put %s: %w", key, err)
	}

	modified := info.LastModified
	if modified.IsZero() {
		stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to stat %s: %w", key, err)
		}
		modified = stat.LastModified
	}
	return modified.UTC(), nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Blob, error) {
	key = normalizeKey(key)
	if key == "" {
		return nil, fmt.Errorf("object key is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, translateError(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(err)
	}

	return &Blob{
		Content:     data,
		ContentType: stat.ContentType,
		ModifiedAt:  stat.LastModified.UTC(),
	}, nil
}

func translateError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}
	return err
}

func normalizeKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

var _ BlobStore = (*S3Store)(nil)

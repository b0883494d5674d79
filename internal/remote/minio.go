package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioConfig locates the index object in an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Key       string
}

// MinioStore is a Store backed by MinIO or any S3-compatible service.
type MinioStore struct {
	session *minio.Client
	bucket  string
	key     string
	logger  *zap.Logger
}

// NewMinioStore creates the client. It does not contact the server.
func NewMinioStore(cfg MinioConfig, logger *zap.Logger) (*MinioStore, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("minio: bucket and key are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio.New: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioStore{
		session: client,
		bucket:  cfg.Bucket,
		key:     strings.TrimPrefix(cfg.Key, "/"),
		logger:  logger,
	}, nil
}

// LastModified implements Store.
func (s *MinioStore) LastModified(ctx context.Context) (time.Time, error) {
	info, err := s.session.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{})
	if err != nil {
		return time.Time{}, s.wrap("stat", err)
	}
	return info.LastModified.UTC(), nil
}

// Fetch implements Store.
func (s *MinioStore) Fetch(ctx context.Context, destPath string) error {
	if err := s.session.FGetObject(ctx, s.bucket, s.key, destPath, minio.GetObjectOptions{}); err != nil {
		return s.wrap("download", err)
	}
	s.logger.Debug("index object downloaded",
		zap.String("bucket", s.bucket), zap.String("key", s.key), zap.String("path", destPath))
	return nil
}

// Upload implements Store.
func (s *MinioStore) Upload(ctx context.Context, srcPath string) error {
	info, err := s.session.FPutObject(ctx, s.bucket, s.key, srcPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return s.wrap("upload", err)
	}
	s.logger.Info("index object uploaded",
		zap.String("bucket", s.bucket), zap.String("key", s.key), zap.Int64("size", info.Size))
	return nil
}

func (s *MinioStore) wrap(op string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s %s/%s: %w", op, s.bucket, s.key, ErrNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w", op, s.bucket, s.key, err)
}

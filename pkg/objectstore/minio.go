package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
)

// ObjectStore uploads local files and returns their public URLs
type ObjectStore interface {
	Upload(ctx context.Context, localPath, remoteKey string) (string, error)
}

// MinioStore stores segment clips in a MinIO (or S3-compatible) bucket
type MinioStore struct {
	client *minio.Client
	cfg    config.ObjectStoreConfig
	logger *logging.Logger
}

// NewMinioStore connects to the object store and ensures the configured
// bucket exists.
func NewMinioStore(ctx context.Context, cfg config.ObjectStoreConfig, logger *logging.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created bucket", map[string]interface{}{"bucket": cfg.Bucket})
	}

	return &MinioStore{client: client, cfg: cfg, logger: logger}, nil
}

// Upload puts localPath into the bucket under the configured prefix and
// returns the object's public URL.
func (s *MinioStore) Upload(ctx context.Context, localPath, remoteKey string) (string, error) {
	key := remoteKey
	if key == "" {
		key = filepath.Base(localPath)
	}
	if s.cfg.Prefix != "" {
		key = path.Join(s.cfg.Prefix, key)
	}

	contentType := "application/octet-stream"
	switch filepath.Ext(localPath) {
	case ".mp4":
		contentType = "video/mp4"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	}

	info, err := s.client.FPutObject(ctx, s.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	s.logger.Debug("object uploaded", map[string]interface{}{
		"key":  key,
		"size": info.Size,
	})

	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, key), nil
}

// CanonicalURL strips the query string and fragment from an object URL so
// presigned variants of the same object compare equal.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse object URL: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

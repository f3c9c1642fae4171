package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	cfg "github.com/templui/picsellart/internal/config"
)

const (
	PrivatePrefix = "private/"
	PublicPrefix  = "public/"
)

var (
	ErrNotFound         = errors.New("object not found")
	ErrOutsideNamespace = errors.New("path outside asset namespace")
)

// Storage is the blob store behind the marketplace. Originals live under
// PrivatePrefix and are only reachable through MintSignedURL; watermarked
// previews live under PublicPrefix and are served from a permanent URL.
type Storage interface {
	PutPrivate(ctx context.Context, key string, data []byte, contentType string) error
	PutPublic(ctx context.Context, key string, data []byte, contentType string) (string, error)
	MintSignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// New creates the configured storage driver.
// Supports: AWS S3, Cloudflare R2, DigitalOcean Spaces (s3) and MinIO (minio).
func New(c *cfg.Config) (Storage, error) {
	slog.Info("initializing storage",
		"driver", c.StorageDriver,
		"bucket", c.S3Bucket,
		"region", c.S3Region,
		"endpoint", c.S3Endpoint,
	)

	switch c.StorageDriver {
	case "minio":
		return NewMinioStorage(MinioConfig{
			Endpoint:  c.S3Endpoint,
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			UseSSL:    c.S3UseSSL,
			PublicURL: c.S3PublicURL,
		})
	case "s3", "":
		return NewS3Storage(S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
			PublicURL: c.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", c.StorageDriver)
	}
}

// OriginalKey is where the unwatermarked upload of a listing is stored.
func OriginalKey(sellerID, listingID, ext string) string {
	return PrivatePrefix + "originals/" + sellerID + "/" + listingID + ext
}

// PreviewKey is where the watermarked preview of a listing is stored.
func PreviewKey(sellerID, listingID string) string {
	return PublicPrefix + "previews/" + sellerID + "/" + listingID + ".jpg"
}

// CheckKey rejects keys that are not clean relative paths inside prefix.
func CheckKey(prefix, key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrOutsideNamespace, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrOutsideNamespace, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: %q", ErrOutsideNamespace, key)
		}
	}
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return fmt.Errorf("%w: %q", ErrOutsideNamespace, key)
	}
	return nil
}

// publicReadPolicy lets anyone read objects under PublicPrefix and nothing else.
func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/%s*"]}]}`, bucket, PublicPrefix)
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

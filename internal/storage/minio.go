package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements Storage on a MinIO server.
type MinioStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type MinioConfig struct {
	Endpoint  string // host:port, no scheme
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PublicURL string
}

func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	ctx := context.Background()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", cfg.Endpoint, err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = joinURL(client.EndpointURL().String(), cfg.Bucket)
	}

	storage := &MinioStorage{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
	}

	if err := storage.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return storage, nil
}

func (s *MinioStorage) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
	if err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", s.bucket, err)
	}

	err = s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket))
	if err != nil {
		return fmt.Errorf("failed to set preview policy on bucket %q: %w", s.bucket, err)
	}

	slog.Info("created MinIO bucket", "bucket", s.bucket)
	return nil
}

func (s *MinioStorage) put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) PutPrivate(ctx context.Context, key string, data []byte, contentType string) error {
	if err := CheckKey(PrivatePrefix, key); err != nil {
		return err
	}
	return s.put(ctx, key, data, contentType)
}

func (s *MinioStorage) PutPublic(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := CheckKey(PublicPrefix, key); err != nil {
		return "", err
	}
	if err := s.put(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *MinioStorage) MintSignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := CheckKey(PrivatePrefix, key); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat object: %w", err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return u.String(), nil
}

func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) PublicURL(key string) string {
	if CheckKey(PublicPrefix, key) != nil {
		return ""
	}
	return joinURL(s.publicURL, key)
}

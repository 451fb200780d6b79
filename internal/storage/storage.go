// Package storage mirrors voice artifacts to an S3-compatible bucket so they
// can be fetched from outside the host that produced them.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nadzzz/voicedoc/internal/config"
)

// Publisher uploads local files and returns their public URL.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// S3 publishes artifacts with minio-go.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	host   string
}

// NewS3 creates an S3 publisher. It does not contact the bucket; call Check
// for that.
func NewS3(cfg config.S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		host:   baseURL(cfg),
	}, nil
}

// Check verifies that the bucket exists.
func (s *S3) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// Publish uploads localPath under the configured prefix and returns its URL.
func (s *S3) Publish(ctx context.Context, localPath string) (string, error) {
	key := objectKey(s.prefix, localPath)
	contentType := "audio/mpeg"
	if strings.EqualFold(filepath.Ext(localPath), ".wav") {
		contentType = "audio/wav"
	}

	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-at": time.Now().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return s.publicURL(key), nil
}

func (s *S3) publicURL(key string) string {
	return s.host + "/" + (&url.URL{Path: key}).EscapedPath()
}

func objectKey(prefix, localPath string) string {
	base := filepath.Base(localPath)
	if prefix == "" {
		return base
	}
	return path.Join(strings.TrimSuffix(prefix, "/"), base)
}

func baseURL(cfg config.S3Config) string {
	if cfg.PublicURL != "" {
		return strings.TrimSuffix(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}

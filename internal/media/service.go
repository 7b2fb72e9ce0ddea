// Package media stores module media (cover images, intro videos) in
// S3-compatible object storage and returns the public URLs that populate
// draft scalar fields.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"trellis/api/internal/util"
)

// Config carries the object-storage connection settings.
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL overrides the URL prefix of returned object URLs.
	// Defaults to the endpoint itself.
	PublicBaseURL string
}

// Service uploads media objects and hands back their URLs.
type Service struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// New creates a media service. The bucket is not touched here; call
// EnsureBucket once at startup.
func New(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = scheme + "://" + cfg.Endpoint
	}

	return &Service{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
	}, nil
}

// EnsureBucket creates the bucket if missing and opens it for anonymous
// reads so returned URLs resolve without credentials.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("set bucket policy %s: %w", s.bucket, err)
	}
	return nil
}

// Upload stores one object and returns its public URL. The object name is
// generated; only the extension of the original filename survives.
func (s *Service) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	objectName := objectName(filename)

	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectName, err)
	}

	return s.publicBase + "/" + s.bucket + "/" + objectName, nil
}

// Ping verifies the storage backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("media ping: %w", err)
	}
	return nil
}

// AllowedContentType reports whether a MIME type is accepted for module
// media. Only images and videos populate draft scalar fields.
func AllowedContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") ||
		strings.HasPrefix(contentType, "video/")
}

func objectName(filename string) string {
	name := util.NewID("med") + sanitizeExt(path.Ext(filename))
	return time.Now().UTC().Format("2006/01") + "/" + name
}

// sanitizeExt keeps a short alphanumeric extension and drops anything else.
func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

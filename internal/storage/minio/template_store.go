// Package minio serves cover templates from an S3-compatible MinIO bucket.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/storage"
)

// Config captures the MinIO connection parameters.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	// Region skips bucket location discovery when set.
	Region string
}

// TemplateStore reads and writes templates in a MinIO bucket.
type TemplateStore struct {
	mc     *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO-backed template store.
func New(cfg Config) (*TemplateStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &TemplateStore{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *TemplateStore) key(ref string) (string, error) {
	cleaned, err := storage.CleanRef(ref)
	if err != nil {
		return "", err
	}
	return storage.ObjectKey(s.prefix, cleaned), nil
}

// Fetch downloads the template object for ref.
func (s *TemplateStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	key, err := s.key(ref)
	if err != nil {
		return nil, err
	}
	obj, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer obj.Close() //nolint:errcheck // read-only

	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s/%s: %w", s.bucket, key, report.ErrTemplateNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put uploads a template and returns its s3:// URI.
func (s *TemplateStore) Put(ctx context.Context, ref string, contentType string, r io.Reader) (string, error) {
	key, err := s.key(ref)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.mc.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

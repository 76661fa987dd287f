// Package gcs serves cover templates from Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/pdfworker/internal/report"
	shared "github.com/JakeFAU/pdfworker/internal/storage"
)

// Config captures the parameters required to reach the template bucket.
type Config struct {
	Bucket string
	Prefix string
}

// TemplateStore reads and writes templates in a GCS bucket.
type TemplateStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed template store.
func New(client *storage.Client, cfg Config) (*TemplateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &TemplateStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *TemplateStore) key(ref string) (string, error) {
	cleaned, err := shared.CleanRef(ref)
	if err != nil {
		return "", err
	}
	return shared.ObjectKey(s.prefix, cleaned), nil
}

// Fetch downloads the template object for ref.
func (s *TemplateStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	key, err := s.key(ref)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, key, report.ErrTemplateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Put uploads a template and returns its gs:// URI.
func (s *TemplateStore) Put(ctx context.Context, ref string, contentType string, r io.Reader) (string, error) {
	key, err := s.key(ref)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

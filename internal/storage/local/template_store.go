// Package local serves cover templates from the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/storage"
)

// Config captures the parameters for the local template store.
type Config struct {
	// BaseDir is the root directory templates are resolved against.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// TemplateStore reads and writes templates below a base directory.
type TemplateStore struct {
	baseDir string
}

// New creates a local template store, creating the base directory if needed.
func New(cfg Config) (*TemplateStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &TemplateStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func (s *TemplateStore) resolve(ref string) (string, error) {
	cleaned, err := storage.CleanRef(ref)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// Fetch returns the template bytes for ref.
func (s *TemplateStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, report.ErrTemplateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return data, nil
}

// Put writes a template and returns a file:// URI.
func (s *TemplateStore) Put(_ context.Context, ref string, _ string, data io.Reader) (string, error) {
	fullPath, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	if err := os.WriteFile(fullPath, byteData, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

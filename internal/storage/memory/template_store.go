// Package memory keeps templates and run records in process memory for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/storage"
)

// TemplateStore stores templates in-memory and returns pseudo URIs.
type TemplateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewTemplateStore creates an empty in-memory template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{data: make(map[string][]byte)}
}

// Fetch returns a copy of the template stored under ref.
func (s *TemplateStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, report.ErrTemplateNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put stores the content and returns a memory:// URI.
func (s *TemplateStore) Put(_ context.Context, ref string, _ string, r io.Reader) (string, error) {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return "", err
	}
	byteData, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = byteData
	return fmt.Sprintf("memory://%s", key), nil
}

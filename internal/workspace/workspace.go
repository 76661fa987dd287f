// Package workspace allocates per-run scratch paths and guarantees their removal.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// Workspace owns the scratch files of exactly one pipeline run. Every path is
// derived from the run identifier so concurrent runs never collide.
type Workspace struct {
	RunID        string
	Dir          string
	BodyPath     string
	OutlinedPath string
	TocTextPath  string
	CoverPath    string

	logger *zap.Logger
	mu     sync.Mutex
	paths  []string
	closed bool
}

// Layout returns the named scratch paths for runID inside dir.
func Layout(dir, runID string) (body, outlined, tocText, cover string) {
	body = filepath.Join(dir, runID+".pdf")
	// pdftocio writes its output next to the input with an "_out" suffix.
	outlined = filepath.Join(dir, runID+"_out.pdf")
	tocText = filepath.Join(dir, runID+"_toc.txt")
	cover = filepath.Join(dir, runID+".cover.pdf")
	return body, outlined, tocText, cover
}

// New registers the scratch paths for runID. Nothing is written to disk.
func New(dir, runID string, logger *zap.Logger) (*Workspace, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("workspace directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	body, outlined, tocText, cover := Layout(dir, runID)
	w := &Workspace{
		RunID:        runID,
		Dir:          dir,
		BodyPath:     body,
		OutlinedPath: outlined,
		TocTextPath:  tocText,
		CoverPath:    cover,
		logger:       logger.With(zap.String("run_id", runID)),
	}
	w.paths = []string{body, outlined, tocText, cover}
	return w, nil
}

// Track registers an additional path for removal on Cleanup and returns it.
func (w *Workspace) Track(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)
	return path
}

// Paths returns every path registered so far.
func (w *Workspace) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// WriteBody persists the captured body PDF to its scratch path.
func (w *Workspace) WriteBody(pdf []byte) error {
	if err := os.WriteFile(w.BodyPath, pdf, 0o600); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	w.logger.Debug("body persisted", zap.String("path", w.BodyPath), zap.Int("bytes", len(pdf)))
	return nil
}

// Cleanup removes every registered path. Failures are logged and never
// returned; missing files are not failures. Safe to call more than once.
func (w *Workspace) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, path := range w.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("scratch file cleanup failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func validateRunID(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

// Allocator creates workspaces under one base directory.
type Allocator struct {
	dir    string
	ids    report.IDGenerator
	logger *zap.Logger
}

// NewAllocator prepares dir and returns an Allocator drawing run ids from ids.
func NewAllocator(dir string, ids report.IDGenerator, logger *zap.Logger) (*Allocator, error) {
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("workspace directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{dir: dir, ids: ids, logger: logger}, nil
}

// Allocate returns a fresh workspace with a unique run identifier.
func (a *Allocator) Allocate() (*Workspace, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	return New(a.dir, runID, a.logger)
}

// Dir returns the base directory.
func (a *Allocator) Dir() string {
	return a.dir
}

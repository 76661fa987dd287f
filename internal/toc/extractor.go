// Package toc builds document outlines and table-of-contents pages.
package toc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/workspace"
)

// Config locates the recipe and the outline tools.
type Config struct {
	RecipePath string
	TocGenBin  string
	TocIOBin   string
}

// Outline is the result of a successful extraction.
type Outline struct {
	// Listing is the textual outline: one entry per line, indented by depth,
	// ending in a page number.
	Listing string
	// PDF is the body with the outline embedded as bookmarks.
	PDF []byte
}

// Extractor runs the external outline generator and injector.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// NewExtractor returns an Extractor with defaults applied.
func NewExtractor(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.TocGenBin == "" {
		cfg.TocGenBin = "pdftocgen"
	}
	if cfg.TocIOBin == "" {
		cfg.TocIOBin = "pdftocio"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger.Named("toc")}
}

// CheckRecipe fails when the recipe at path is missing or is a directory.
func CheckRecipe(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recipe %s does not exist: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("recipe %s is a directory", path)
	}
	return nil
}

// Extract derives the outline of the body persisted in ws. The listing is
// written to ws.TocTextPath and the outlined PDF to ws.OutlinedPath. Every
// failure wraps report.ErrTocGenerationFailed.
func (e *Extractor) Extract(ctx context.Context, ws *workspace.Workspace) (Outline, error) {
	start := time.Now()
	if err := e.generate(ctx, ws); err != nil {
		return Outline{}, fmt.Errorf("generate outline: %w: %w", report.ErrTocGenerationFailed, err)
	}
	listing, err := os.ReadFile(ws.TocTextPath)
	if err != nil {
		return Outline{}, fmt.Errorf("read outline: %w: %w", report.ErrTocGenerationFailed, err)
	}
	if strings.TrimSpace(string(listing)) == "" {
		return Outline{}, fmt.Errorf("outline is empty: %w", report.ErrTocGenerationFailed)
	}

	if err := e.inject(ctx, ws); err != nil {
		return Outline{}, fmt.Errorf("inject outline: %w: %w", report.ErrTocGenerationFailed, err)
	}
	outlined, err := os.ReadFile(ws.OutlinedPath)
	if err != nil {
		return Outline{}, fmt.Errorf("read outlined pdf: %w: %w", report.ErrTocGenerationFailed, err)
	}
	if len(outlined) == 0 {
		return Outline{}, fmt.Errorf("outlined pdf is empty: %w", report.ErrTocGenerationFailed)
	}

	e.logger.Info("outline extracted",
		zap.String("run_id", ws.RunID),
		zap.Int("listing_bytes", len(listing)),
		zap.Duration("duration", time.Since(start)),
	)
	return Outline{Listing: string(listing), PDF: outlined}, nil
}

// generate runs `pdftocgen <body> < recipe > <toc.txt>`.
func (e *Extractor) generate(ctx context.Context, ws *workspace.Workspace) error {
	recipe, err := os.Open(e.cfg.RecipePath)
	if err != nil {
		return fmt.Errorf("open recipe: %w", err)
	}
	defer recipe.Close() //nolint:errcheck // read-only

	out, err := os.Create(ws.TocTextPath)
	if err != nil {
		return fmt.Errorf("create outline file: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.cfg.TocGenBin, ws.BodyPath)
	cmd.Stdin = recipe
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	closeErr := out.Close()
	if runErr != nil {
		return fmt.Errorf("%s: %w: %s", e.cfg.TocGenBin, runErr, strings.TrimSpace(stderr.String()))
	}
	if closeErr != nil {
		return fmt.Errorf("close outline file: %w", closeErr)
	}
	return nil
}

// inject runs `pdftocio -o <outlined> <body> < <toc.txt>`.
func (e *Extractor) inject(ctx context.Context, ws *workspace.Workspace) error {
	listing, err := os.Open(ws.TocTextPath)
	if err != nil {
		return fmt.Errorf("open outline file: %w", err)
	}
	defer listing.Close() //nolint:errcheck // read-only

	cmd := exec.CommandContext(ctx, e.cfg.TocIOBin, "-o", ws.OutlinedPath, ws.BodyPath)
	cmd.Stdin = listing
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", e.cfg.TocIOBin, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Package cover turns office templates into single-page PDF covers.
package cover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// Config locates the office converter and the placeholder delimiters.
type Config struct {
	SofficeBin string
	Open       string
	Close      string
}

// Composer fills cover templates and converts them to PDF.
type Composer struct {
	cfg    Config
	store  report.TemplateStore
	logger *zap.Logger
}

// New returns a Composer reading templates from store.
func New(cfg Config, store report.TemplateStore, logger *zap.Logger) (*Composer, error) {
	if store == nil {
		return nil, errors.New("cover template store is required")
	}
	if cfg.SofficeBin == "" {
		cfg.SofficeBin = "soffice"
	}
	if cfg.Open == "" {
		cfg.Open = "{{"
	}
	if cfg.Close == "" {
		cfg.Close = "}}"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{cfg: cfg, store: store, logger: logger.Named("cover")}, nil
}

// Compose renders templateRef with data into outPath and returns outPath.
// outPath must end in ".pdf"; the filled working copy is written next to it
// and removed before returning, together with the converter profile created
// for this call. Every failure wraps report.ErrCoverConversionFailed.
func (c *Composer) Compose(ctx context.Context, templateRef string, data map[string]string, outPath string) (string, error) {
	start := time.Now()
	if filepath.Ext(outPath) != ".pdf" {
		return "", fmt.Errorf("cover output %q is not a pdf: %w", outPath, report.ErrCoverConversionFailed)
	}
	raw, err := c.store.Fetch(ctx, templateRef)
	if err != nil {
		return "", fmt.Errorf("fetch cover template: %w: %w", report.ErrCoverConversionFailed, err)
	}
	filled, err := Fill(raw, data, c.cfg.Open, c.cfg.Close)
	if err != nil {
		return "", fmt.Errorf("fill cover template: %w: %w", report.ErrCoverConversionFailed, err)
	}

	workCopy := strings.TrimSuffix(outPath, ".pdf") + templateExt(templateRef)
	if err := os.WriteFile(workCopy, filled, 0o600); err != nil {
		return "", fmt.Errorf("write cover working copy: %w: %w", report.ErrCoverConversionFailed, err)
	}
	defer func() {
		if err := os.Remove(workCopy); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("cover working copy cleanup failed", zap.String("path", workCopy), zap.Error(err))
		}
	}()

	// soffice locks its user profile, so every conversion gets its own.
	profile := strings.TrimSuffix(outPath, ".pdf") + ".lo"
	defer func() {
		if err := os.RemoveAll(profile); err != nil {
			c.logger.Warn("converter profile cleanup failed", zap.String("path", profile), zap.Error(err))
		}
	}()

	if err := c.convert(ctx, workCopy, filepath.Dir(outPath), profile); err != nil {
		return "", fmt.Errorf("convert cover: %w: %w", report.ErrCoverConversionFailed, err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return "", fmt.Errorf("cover output not found: %w: %w", report.ErrCoverConversionFailed, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("cover output is empty: %w", report.ErrCoverConversionFailed)
	}

	c.logger.Info("cover converted",
		zap.String("template", templateRef),
		zap.String("path", outPath),
		zap.Duration("duration", time.Since(start)),
	)
	return outPath, nil
}

// convert runs `soffice -env:UserInstallation=<profile> --headless --convert-to pdf --outdir <dir> <src>`.
func (c *Composer) convert(ctx context.Context, src, outDir, profile string) error {
	installation, err := profileURL(profile)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, c.cfg.SofficeBin,
		"-env:UserInstallation="+installation,
		"--headless", "--convert-to", "pdf", "--outdir", outDir, src)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.cfg.SofficeBin, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// profileURL returns dir as the file URL soffice expects for a user installation.
func profileURL(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve converter profile: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func templateExt(ref string) string {
	switch ext := strings.ToLower(filepath.Ext(ref)); ext {
	case ".docx", ".odt":
		return ext
	default:
		return ".docx"
	}
}

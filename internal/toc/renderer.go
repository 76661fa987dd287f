package toc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// PageRenderer turns an outline listing into a printed TOC section.
type PageRenderer struct {
	title  string
	logger *zap.Logger
}

// NewPageRenderer returns a renderer whose page heading is title.
func NewPageRenderer(title string, logger *zap.Logger) *PageRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageRenderer{title: title, logger: logger.Named("toc")}
}

// Render prints the listing through session. Failures wrap
// report.ErrTocGenerationFailed.
func (r *PageRenderer) Render(ctx context.Context, session report.Session, listing string, opts report.PrintOptions) ([]byte, error) {
	start := time.Now()
	entries := ParseListing(listing)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no outline entries: %w", report.ErrTocGenerationFailed)
	}
	html, err := RenderHTML(r.title, entries)
	if err != nil {
		return nil, fmt.Errorf("render toc html: %w: %w", report.ErrTocGenerationFailed, err)
	}
	pdf, err := session.PrintHTML(ctx, html, opts)
	if err != nil {
		return nil, fmt.Errorf("print toc page: %w: %w", report.ErrTocGenerationFailed, err)
	}
	r.logger.Info("toc page rendered",
		zap.Int("entries", len(entries)),
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(start)),
	)
	return pdf, nil
}

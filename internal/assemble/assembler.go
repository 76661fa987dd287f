// Package assemble merges report sections into a single PDF.
package assemble

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

var configOnce sync.Once

// Assembler merges the sections of an AssemblyPlan in plan order.
type Assembler struct {
	logger *zap.Logger
}

// New returns an Assembler. pdfcpu's on-disk configuration directory is
// disabled process-wide; the built-in defaults are used instead.
func New(logger *zap.Logger) *Assembler {
	configOnce.Do(api.DisableConfigDir)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger.Named("assemble")}
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Assemble loads every section, truncates the cover to its first page and
// merges them in plan order. Page order inside each section is kept.
func (a *Assembler) Assemble(plan *report.AssemblyPlan) (report.Assembly, error) {
	start := time.Now()
	sections := plan.Sections()
	if len(plan.Body()) == 0 {
		return report.Assembly{}, fmt.Errorf("body section is empty: %w", report.ErrMergeFailed)
	}

	readers := make([]io.ReadSeeker, 0, len(sections))
	names := make([]report.SectionName, 0, len(sections))
	for _, s := range sections {
		data := s.PDF
		if s.Name == report.SectionCover {
			trimmed, err := FirstPage(data)
			if err != nil {
				return report.Assembly{}, fmt.Errorf("trim cover: %w: %w", report.ErrMergeFailed, err)
			}
			data = trimmed
		}
		if _, err := PageCount(data); err != nil {
			return report.Assembly{}, fmt.Errorf("load %s section: %w: %w", s.Name, report.ErrMergeFailed, err)
		}
		readers = append(readers, bytes.NewReader(data))
		names = append(names, s.Name)
	}

	merged := plan.Body()
	if len(readers) > 1 {
		var out bytes.Buffer
		if err := api.MergeRaw(readers, &out, false, newConfig()); err != nil {
			return report.Assembly{}, fmt.Errorf("merge sections: %w: %w", report.ErrMergeFailed, err)
		}
		merged = out.Bytes()
	}
	pages, err := PageCount(merged)
	if err != nil {
		return report.Assembly{}, fmt.Errorf("count merged pages: %w: %w", report.ErrMergeFailed, err)
	}

	a.logger.Info("sections merged",
		zap.Any("sections", names),
		zap.Int("pages", pages),
		zap.Int("bytes", len(merged)),
		zap.Duration("duration", time.Since(start)),
	)
	return report.Assembly{PDF: merged, Pages: pages, Sections: names}, nil
}

// AssembleOrBody is Assemble with a fallback: on any failure the body alone is
// returned with Degraded set and Cause holding the error.
func (a *Assembler) AssembleOrBody(plan *report.AssemblyPlan) report.Assembly {
	result, err := a.Assemble(plan)
	if err == nil {
		return result
	}
	a.logger.Warn("merge failed, returning body only", zap.Error(err))
	body := plan.Body()
	pages, countErr := PageCount(body)
	if countErr != nil {
		a.logger.Warn("body page count failed", zap.Error(countErr))
	}
	return report.Assembly{
		PDF:      body,
		Pages:    pages,
		Sections: []report.SectionName{report.SectionBody},
		Degraded: true,
		Cause:    err,
	}
}

// PageCount returns the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), newConfig())
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// FirstPage returns pdf truncated to its first page.
func FirstPage(pdf []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(pdf), &out, []string{"1"}, newConfig()); err != nil {
		return nil, fmt.Errorf("trim to first page: %w", err)
	}
	return out.Bytes(), nil
}

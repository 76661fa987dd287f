// Package pipeline runs one report generation from capture to merged PDF.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pdfworker/internal/browser"
	"github.com/JakeFAU/pdfworker/internal/metrics"
	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/toc"
	"github.com/JakeFAU/pdfworker/internal/workspace"
)

// Stage names used in logs, metrics and degradations.
const (
	StageCredentials = "credentials"
	StageBrowser     = "browser"
	StageLogin       = "login"
	StageCapture     = "capture"
	StagePersist     = "persist"
	StageTOC         = "toc"
	StageCover       = "cover"
	StageHistory     = "history"
	StageAssemble    = "assemble"
	StageCleanup     = "cleanup"
)

// OutlineExtractor derives the outline of a persisted body.
type OutlineExtractor interface {
	Extract(ctx context.Context, ws *workspace.Workspace) (toc.Outline, error)
}

// TocRenderer prints an outline listing as table-of-contents pages.
type TocRenderer interface {
	Render(ctx context.Context, session report.Session, listing string, opts report.PrintOptions) ([]byte, error)
}

// CoverComposer renders a cover template to outPath.
type CoverComposer interface {
	Compose(ctx context.Context, templateRef string, data map[string]string, outPath string) (string, error)
}

// Assembler merges a plan, falling back to the body alone.
type Assembler interface {
	AssembleOrBody(plan *report.AssemblyPlan) report.Assembly
}

// Config locates the preview pages and the browser credentials.
type Config struct {
	BaseURL     string
	PreviewPath string
	HistoryPath string
	// APIKey is the base64 "user:password" pair used to log the browser in.
	APIKey string
	// Topic receives a run event after every run. Empty disables publishing.
	Topic string
}

// Deps are the collaborators of a Pipeline. Outline, TocPages and Covers may
// be nil, which disables the matching section. A nil Hasher leaves run
// records without a digest.
type Deps struct {
	Browser    report.Browser
	Workspaces *workspace.Allocator
	Outline    OutlineExtractor
	TocPages   TocRenderer
	Covers     CoverComposer
	Assembler  Assembler
	Runs       report.RunStore
	Publisher  report.Publisher
	Hasher     report.Hasher
	Clock      report.Clock
}

// Pipeline generates reports.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Browser == nil:
		return nil, errors.New("pipeline browser is required")
	case deps.Workspaces == nil:
		return nil, errors.New("pipeline workspace allocator is required")
	case deps.Assembler == nil:
		return nil, errors.New("pipeline assembler is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline clock is required")
	}
	if cfg.PreviewPath == "" {
		cfg.PreviewPath = "/dtas/preview.spr"
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = "/dtas/history.spr"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger.Named("pipeline")}, nil
}

// run carries the mutable state of one Generate call.
type run struct {
	req     report.GenerationRequest
	ws      *workspace.Workspace
	session report.Session
	logger  *zap.Logger
	print   report.PrintOptions

	mu           sync.Mutex
	degradations []report.Degradation
}

func (r *run) degrade(stage string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degradations = append(r.degradations, report.Degradation{Stage: stage, Err: err})
	metrics.ObserveDegradation(stage)
	r.logger.Warn("optional section dropped", zap.String("stage", stage), zap.Error(err))
}

// Generate runs the full chain for req. Fatal failures return an error;
// failures of optional sections are reported in Result.Degradations. Scratch
// files are removed before Generate returns on every path.
func (p *Pipeline) Generate(ctx context.Context, req report.GenerationRequest) (result report.Result, err error) {
	startedAt := p.deps.Clock.Now()
	logger := p.logger.With(zap.String("task_id", req.TaskID), zap.String("user_id", req.UserID))
	r := &run{req: req, logger: logger, print: printOptions(req.Preview)}

	defer func() {
		p.finish(ctx, r, startedAt, result, err)
	}()

	// Allocation only derives paths, so every run, even one failing on
	// credentials, has a run id for the ledger.
	ws, err := p.deps.Workspaces.Allocate()
	if err != nil {
		return report.Result{}, fmt.Errorf("allocate workspace: %w", err)
	}
	r.ws = ws
	r.logger = logger.With(zap.String("run_id", ws.RunID))
	defer func() {
		start := p.deps.Clock.Now()
		ws.Cleanup()
		metrics.ObserveStage(StageCleanup, p.deps.Clock.Now().Sub(start))
	}()

	var creds report.Credentials
	if err := p.stage(StageCredentials, func() error {
		var decodeErr error
		creds, decodeErr = report.DecodeCredentials(p.cfg.APIKey)
		return decodeErr
	}); err != nil {
		return report.Result{}, err
	}

	if err := p.stage(StageBrowser, func() error {
		session, openErr := p.deps.Browser.Open(ctx)
		if openErr != nil {
			return fmt.Errorf("open browser: %w: %w", report.ErrCaptureFailed, openErr)
		}
		r.session = session
		return nil
	}); err != nil {
		return report.Result{}, err
	}
	defer func() {
		if closeErr := r.session.Close(); closeErr != nil {
			r.logger.Warn("browser close failed", zap.Error(closeErr))
		}
	}()

	if err := p.stage(StageLogin, func() error {
		return r.session.Login(ctx, creds)
	}); err != nil {
		return report.Result{}, err
	}

	capture, err := p.captureBody(ctx, r)
	if err != nil {
		return report.Result{}, err
	}
	if err := p.stage(StagePersist, func() error {
		return ws.WriteBody(capture.PDF)
	}); err != nil {
		return report.Result{}, err
	}
	// Optional sections share the capture orientation.
	r.print.Landscape = capture.Landscape

	body, tocPDF := p.tableOfContents(ctx, r, capture.PDF)
	coverPDF, historyPDF := p.coverAndHistory(ctx, r)

	plan := report.NewAssemblyPlan(body).
		With(report.SectionCover, coverPDF).
		With(report.SectionHistory, historyPDF).
		With(report.SectionTOC, tocPDF)

	var assembly report.Assembly
	_ = p.stage(StageAssemble, func() error {
		assembly = p.deps.Assembler.AssembleOrBody(plan)
		return nil
	})
	if assembly.Degraded {
		r.degrade(StageAssemble, assembly.Cause)
	}
	metrics.ObservePages(assembly.Pages)

	r.mu.Lock()
	degradations := append([]report.Degradation(nil), r.degradations...)
	r.mu.Unlock()

	return report.Result{
		RunID:        ws.RunID,
		PDF:          assembly.PDF,
		Metrics:      capture.Metrics,
		Sections:     assembly.Sections,
		Pages:        assembly.Pages,
		Degradations: degradations,
	}, nil
}

func (p *Pipeline) captureBody(ctx context.Context, r *run) (report.Capture, error) {
	var capture report.Capture
	err := p.stage(StageCapture, func() error {
		target, err := browser.PreviewURL(p.cfg.BaseURL, p.cfg.PreviewPath, r.req.TaskID, r.req.TemplateName)
		if err != nil {
			return fmt.Errorf("build preview url: %w: %w", report.ErrCaptureFailed, err)
		}
		capture, err = r.session.Capture(ctx, report.CaptureRequest{
			URL:            target,
			ExpectedTitle:  r.req.Task.Name,
			Print:          r.print,
			ExtractMetrics: true,
		})
		return err
	})
	if err != nil {
		return report.Capture{}, err
	}
	r.logger.Info("body captured",
		zap.Int("bytes", len(capture.PDF)),
		zap.Int("metrics", len(capture.Metrics)),
		zap.Duration("capture_duration", capture.Duration),
	)
	return capture, nil
}

// tableOfContents returns the body to merge (outlined when extraction
// succeeds) and the rendered TOC pages, or nil when the section is dropped.
func (p *Pipeline) tableOfContents(ctx context.Context, r *run, body []byte) ([]byte, []byte) {
	if !r.req.Preview.RenderTOC {
		return body, nil
	}
	if p.deps.Outline == nil || p.deps.TocPages == nil {
		r.logger.Debug("toc requested but not configured")
		return body, nil
	}
	var tocPDF []byte
	err := p.stage(StageTOC, func() error {
		outline, err := p.deps.Outline.Extract(ctx, r.ws)
		if err != nil {
			return err
		}
		body = outline.PDF
		tocPDF, err = p.deps.TocPages.Render(ctx, r.session, outline.Listing, r.print)
		return err
	})
	if err != nil {
		r.degrade(StageTOC, err)
		return body, nil
	}
	return body, tocPDF
}

// coverAndHistory renders the two sections that only depend on the request,
// concurrently. A failed section comes back nil.
func (p *Pipeline) coverAndHistory(ctx context.Context, r *run) ([]byte, []byte) {
	var coverPDF, historyPDF []byte
	g, gctx := errgroup.WithContext(ctx)

	if r.req.Preview.WantsCover() && p.deps.Covers != nil {
		g.Go(func() error {
			err := p.stage(StageCover, func() error {
				path, err := p.deps.Covers.Compose(gctx, r.req.Preview.CoverTemplate, coverData(r.req), r.ws.CoverPath)
				if err != nil {
					return err
				}
				coverPDF, err = os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read cover: %w: %w", report.ErrCoverConversionFailed, err)
				}
				return nil
			})
			if err != nil {
				r.degrade(StageCover, err)
			}
			return nil
		})
	}

	if r.req.Preview.RenderHistory {
		g.Go(func() error {
			err := p.stage(StageHistory, func() error {
				target, err := browser.PreviewURL(p.cfg.BaseURL, p.cfg.HistoryPath, r.req.TaskID, r.req.TemplateName)
				if err != nil {
					return fmt.Errorf("build history url: %w", err)
				}
				capture, err := r.session.Capture(gctx, report.CaptureRequest{
					URL:            target,
					SkipTitleCheck: true,
					Print:          r.print,
				})
				if err != nil {
					return err
				}
				historyPDF = capture.PDF
				return nil
			})
			if err != nil {
				r.degrade(StageHistory, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return coverPDF, historyPDF
}

// stage times fn into the stage histogram.
func (p *Pipeline) stage(name string, fn func() error) error {
	start := p.deps.Clock.Now()
	err := fn()
	metrics.ObserveStage(name, p.deps.Clock.Now().Sub(start))
	return err
}

// finish records the run in the ledger and publishes it. Both are best effort.
func (p *Pipeline) finish(ctx context.Context, r *run, startedAt time.Time, result report.Result, err error) {
	duration := p.deps.Clock.Now().Sub(startedAt)
	record := report.RunRecord{
		TaskID:       r.req.TaskID,
		UserID:       r.req.UserID,
		TemplateName: r.req.TemplateName,
		StartedAt:    startedAt,
		DurationMs:   duration.Milliseconds(),
	}
	if r.ws != nil {
		record.RunID = r.ws.RunID
	}

	outcome := metrics.OutcomeSucceeded
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		record.Status = report.RunStatusFailed
		record.ErrorText = err.Error()
	case result.Degraded():
		outcome = metrics.OutcomeDegraded
		record.Status = report.RunStatusDegraded
	default:
		record.Status = report.RunStatusSucceeded
	}
	for _, s := range result.Sections {
		record.Sections = append(record.Sections, string(s))
	}
	for _, d := range result.Degradations {
		record.Degradations = append(record.Degradations, d.String())
	}
	record.Bytes = len(result.PDF)
	record.Pages = result.Pages
	if p.deps.Hasher != nil && len(result.PDF) > 0 {
		digest, hashErr := p.deps.Hasher.Hash(result.PDF)
		if hashErr != nil {
			r.logger.Warn("report digest failed", zap.Error(hashErr))
		}
		record.Digest = digest
	}
	metrics.ObserveRun(outcome)

	if err != nil {
		r.logger.Error("report generation failed", zap.Duration("duration", duration), zap.Error(err))
	} else {
		r.logger.Info("report generated",
			zap.String("status", string(record.Status)),
			zap.Strings("sections", record.Sections),
			zap.Int("pages", record.Pages),
			zap.Int("bytes", record.Bytes),
			zap.Duration("duration", duration),
		)
	}

	// The caller may already have given up; the bookkeeping still runs.
	bg := context.WithoutCancel(ctx)
	if p.deps.Runs != nil {
		if recErr := p.deps.Runs.RecordRun(bg, record); recErr != nil {
			r.logger.Warn("run record failed", zap.Error(recErr))
		}
	}
	if p.deps.Publisher != nil && p.cfg.Topic != "" {
		if _, pubErr := p.deps.Publisher.Publish(bg, p.cfg.Topic, record); pubErr != nil {
			r.logger.Warn("run event publish failed", zap.String("topic", p.cfg.Topic), zap.Error(pubErr))
		}
	}
}

func printOptions(meta report.PreviewMetadata) report.PrintOptions {
	opts := report.PrintOptions{
		HeaderTemplate: meta.HeaderTemplate,
		FooterTemplate: meta.FooterTemplate,
	}
	if opts.HeaderTemplate == "" {
		opts.HeaderTemplate = report.DefaultHeaderTemplate
	}
	if opts.FooterTemplate == "" {
		opts.FooterTemplate = report.DefaultFooterTemplate
	}
	return opts
}

// coverData is the substitution map for a cover: task and tracker fields,
// overridden by the metadata's own cover data.
func coverData(req report.GenerationRequest) map[string]string {
	data := map[string]string{
		"task_id":             req.TaskID,
		"task_name":           req.Task.Name,
		"tracker_name":        req.Tracker.Name,
		"tracker_description": req.Tracker.Description,
	}
	for k, v := range req.Preview.CoverData {
		data[k] = v
	}
	return data
}

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// blankTemplate suppresses Chrome's built-in header or footer when only one of
// the two is supplied.
const blankTemplate = "<span></span>"

// Session is one running browser. Tabs opened by Capture and PrintHTML share
// its cookies, so a single Login covers the whole run.
type Session struct {
	launcher      *Launcher
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        *zap.Logger
	closeOnce     sync.Once
}

// Login submits credentials to the login page and waits for the resulting
// navigation.
func (s *Session) Login(ctx context.Context, creds report.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return report.ErrMissingCredentials
	}
	cfg := s.launcher.cfg
	loginURL, err := PageURL(cfg.BaseURL, cfg.LoginPath)
	if err != nil {
		return fmt.Errorf("login url: %w", err)
	}

	runCtx, done := s.bound(ctx, s.browserCtx)
	defer done()

	start := time.Now()
	err = chromedp.Run(runCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(cfg.UserField, chromedp.ByQuery),
		chromedp.SendKeys(cfg.UserField, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(cfg.PasswordField, creds.Password, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill login form: %w: %w", report.ErrCaptureFailed, err)
	}
	resp, err := chromedp.RunResponse(runCtx, chromedp.SendKeys(cfg.PasswordField, kb.Enter, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("submit login: %w: %w", report.ErrCaptureFailed, err)
	}
	status := int64(0)
	if resp != nil {
		status = resp.Status
	}
	s.logger.Info("logged in",
		zap.String("url", loginURL),
		zap.Int64("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Capture navigates to the preview, verifies its title and prints it.
func (s *Session) Capture(ctx context.Context, req report.CaptureRequest) (report.Capture, error) {
	cfg := s.launcher.cfg
	tabCtx, closeTab := chromedp.NewContext(s.browserCtx)
	defer closeTab()
	runCtx, done := s.bound(ctx, tabCtx)
	defer done()

	start := time.Now()
	var title string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("title", chromedp.ByQuery),
		chromedp.Title(&title),
	)
	if err != nil {
		return report.Capture{}, fmt.Errorf("load preview: %w: %w", report.ErrCaptureFailed, err)
	}
	if !req.SkipTitleCheck && title != req.ExpectedTitle {
		s.logger.Error("title mismatch", zap.String("expected", req.ExpectedTitle), zap.String("got", title))
		return report.Capture{}, fmt.Errorf("expected %q, got %q: %w", req.ExpectedTitle, title, report.ErrTitleMismatch)
	}

	if cfg.ExcludeSelector != "" {
		var removed int
		if err := chromedp.Run(runCtx, chromedp.Evaluate(removeScript(cfg.ExcludeSelector), &removed)); err != nil {
			return report.Capture{}, fmt.Errorf("remove excluded elements: %w: %w", report.ErrCaptureFailed, err)
		}
		if removed > 0 {
			s.logger.Debug("excluded elements removed", zap.Int("count", removed))
		}
	}

	var widthPx float64
	if err := chromedp.Run(runCtx, chromedp.Evaluate(bodyWidthScript, &widthPx)); err != nil {
		return report.Capture{}, fmt.Errorf("measure body: %w: %w", report.ErrCaptureFailed, err)
	}
	landscape := req.Print.Landscape || Landscape(PxToMM(widthPx), s.launcher.paper)

	metrics := report.ExtractedMetrics{}
	if req.ExtractMetrics && cfg.MetricsSelector != "" {
		if err := chromedp.Run(runCtx, chromedp.Evaluate(metricsScript(cfg.MetricsSelector), &metrics)); err != nil {
			return report.Capture{}, fmt.Errorf("extract metrics: %w: %w", report.ErrCaptureFailed, err)
		}
	}

	opts := req.Print
	opts.Landscape = landscape
	printStart := time.Now()
	pdf, err := s.print(runCtx, opts)
	if err != nil {
		return report.Capture{}, fmt.Errorf("print preview: %w: %w", report.ErrCaptureFailed, err)
	}
	s.logger.Info("preview captured",
		zap.String("title", title),
		zap.Float64("body_width_px", widthPx),
		zap.Bool("landscape", landscape),
		zap.Int("metrics", len(metrics)),
		zap.Int("bytes", len(pdf)),
		zap.Duration("print_duration", time.Since(printStart)),
	)

	return report.Capture{
		PDF:       pdf,
		Metrics:   metrics,
		Landscape: landscape,
		Duration:  time.Since(start),
	}, nil
}

// PrintHTML loads a synthetic document into a fresh tab and prints it.
func (s *Session) PrintHTML(ctx context.Context, html string, opts report.PrintOptions) ([]byte, error) {
	tabCtx, closeTab := chromedp.NewContext(s.browserCtx)
	defer closeTab()
	runCtx, done := s.bound(ctx, tabCtx)
	defer done()

	var pdf []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, err = s.print(ctx, opts)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print html: %w", err)
	}
	return pdf, nil
}

func (s *Session) print(ctx context.Context, opts report.PrintOptions) ([]byte, error) {
	return s.launcher.printParams(opts).Do(ctx)
}

// Close terminates the browser. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
		s.logger.Debug("browser closed")
	})
	return nil
}

// bound links ctx to target and applies the navigation timeout.
func (s *Session) bound(ctx, target context.Context) (context.Context, func()) {
	linked, stop := s.launcher.link(ctx, target)
	timed, cancel := context.WithTimeout(linked, s.launcher.cfg.NavigationTimeout)
	return timed, func() {
		cancel()
		stop()
	}
}

type printAction struct {
	params *page.PrintToPDFParams
}

func (p printAction) Do(ctx context.Context) ([]byte, error) {
	data, _, err := p.params.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return data, nil
}

func (l *Launcher) printParams(opts report.PrintOptions) printAction {
	margin := MarginInches(l.cfg.MarginPx)
	params := page.PrintToPDF().
		WithPaperWidth(l.paper.WidthInches()).
		WithPaperHeight(l.paper.HeightInches()).
		WithMarginTop(margin).
		WithMarginBottom(margin).
		WithMarginLeft(margin).
		WithMarginRight(margin).
		WithLandscape(opts.Landscape).
		WithPrintBackground(false)

	header, footer := opts.HeaderTemplate, opts.FooterTemplate
	if header != "" || footer != "" {
		if header == "" {
			header = blankTemplate
		}
		if footer == "" {
			footer = blankTemplate
		}
		params = params.
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate(header).
			WithFooterTemplate(footer)
	}
	return printAction{params: params}
}

var (
	_ report.Browser = (*Launcher)(nil)
	_ report.Session = (*Session)(nil)
)

// Package browser drives headless Chrome to capture report previews as PDF.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// Config controls the headless browser.
type Config struct {
	ExecPath          string
	NoSandbox         bool
	NavigationTimeout time.Duration
	PageFormat        string
	MarginPx          int
	BaseURL           string
	LoginPath         string
	UserField         string
	PasswordField     string
	MetricsSelector   string
	ExcludeSelector   string
}

// Launcher starts one Chrome instance per run.
type Launcher struct {
	cfg    Config
	paper  Paper
	logger *zap.Logger
}

// New validates cfg and returns a Launcher.
func New(cfg Config, logger *zap.Logger) (*Launcher, error) {
	paper, err := PaperSize(cfg.PageFormat)
	if err != nil {
		return nil, err
	}
	if cfg.MarginPx < 0 {
		return nil, fmt.Errorf("margin must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 2 * time.Minute
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login.spr"
	}
	if cfg.UserField == "" {
		cfg.UserField = "#user"
	}
	if cfg.PasswordField == "" {
		cfg.PasswordField = "#password"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, paper: paper, logger: logger.Named("browser")}, nil
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	return opts
}

// Open starts a browser. The returned session must be closed.
func (l *Launcher) Open(ctx context.Context) (report.Session, error) {
	// The browser outlives individual stage contexts; each session call links
	// its own context for cancellation.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	start := time.Now()
	startCtx, stop := l.link(ctx, browserCtx)
	err := chromedp.Run(startCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w: %w", report.ErrCaptureFailed, err)
	}
	l.logger.Debug("browser started", zap.Duration("duration", time.Since(start)))

	return &Session{
		launcher:      l,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        l.logger,
	}, nil
}

// link derives a context from target that is also canceled when ctx ends.
func (l *Launcher) link(ctx, target context.Context) (context.Context, func()) {
	linked, cancel := context.WithCancel(target)
	stopAfter := context.AfterFunc(ctx, cancel)
	return linked, func() {
		stopAfter()
		cancel()
	}
}

// Package server builds the application's dependencies and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/api"
	"github.com/JakeFAU/pdfworker/internal/assemble"
	"github.com/JakeFAU/pdfworker/internal/auth"
	"github.com/JakeFAU/pdfworker/internal/browser"
	"github.com/JakeFAU/pdfworker/internal/clock/system"
	"github.com/JakeFAU/pdfworker/internal/config"
	"github.com/JakeFAU/pdfworker/internal/cover"
	"github.com/JakeFAU/pdfworker/internal/governor"
	"github.com/JakeFAU/pdfworker/internal/hash/sha256"
	"github.com/JakeFAU/pdfworker/internal/id/uuid"
	"github.com/JakeFAU/pdfworker/internal/logging"
	"github.com/JakeFAU/pdfworker/internal/metrics"
	"github.com/JakeFAU/pdfworker/internal/pipeline"
	memorypublisher "github.com/JakeFAU/pdfworker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pdfworker/internal/publisher/pubsub"
	"github.com/JakeFAU/pdfworker/internal/report"
	gcsstorage "github.com/JakeFAU/pdfworker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pdfworker/internal/storage/local"
	memorystorage "github.com/JakeFAU/pdfworker/internal/storage/memory"
	miniostorage "github.com/JakeFAU/pdfworker/internal/storage/minio"
	pgstore "github.com/JakeFAU/pdfworker/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/pdfworker/internal/storage/sqlite"
	"github.com/JakeFAU/pdfworker/internal/toc"
	"github.com/JakeFAU/pdfworker/internal/upstream"
	"github.com/JakeFAU/pdfworker/internal/workspace"
)

// templateStore is what every cover template backend provides.
type templateStore interface {
	report.TemplateStore
	report.TemplateWriter
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	startedAt time.Time

	apiServer *api.Server
	pipeline  *pipeline.Pipeline
	upstream  *upstream.Client
	governor  *governor.Governor
	templates templateStore

	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	pgRuns       *pgstore.RunStore
	sqliteRuns   *sqlitestore.RunStore
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Only non-sensitive fields are logged.
	type SanitizedConfig struct {
		ServerPort   int    `json:"server_port"`
		BaseURL      string `json:"base_url"`
		Templates    string `json:"templates"`
		Ledger       string `json:"ledger"`
		Notify       string `json:"notify"`
		MaxProcesses int    `json:"max_processes"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:   cfg.Server.Port,
		BaseURL:      cfg.Upstream.BaseURL,
		Templates:    cfg.Cover.Templates.Provider,
		Ledger:       cfg.Ledger.Driver,
		Notify:       cfg.Notify.Provider,
		MaxProcesses: cfg.Limits.MaxProcesses,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// Run starts the HTTP service and blocks until the context is canceled or a
// termination signal arrives. The caller still owns Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Render fetches the task from the document host and runs the pipeline once.
func (a *App) Render(ctx context.Context, taskID, userID, templateName string) (report.Result, error) {
	release := a.governor.Enter()
	defer release()
	req, err := a.upstream.Request(ctx, taskID, userID, templateName)
	if err != nil {
		return report.Result{}, err
	}
	return a.pipeline.Generate(ctx, req)
}

// Templates returns the configured cover template backend.
func (a *App) Templates() report.TemplateWriter {
	return a.templates
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close gracefully shuts down the application.
func (a *App) Close(_ context.Context) error {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgRuns != nil {
		a.pgRuns.Close()
	}
	if a.sqliteRuns != nil {
		if err := a.sqliteRuns.Close(); err != nil {
			a.logger.Warn("sqlite ledger close failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.NewWithOptions(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	metrics.Init()
	a.logger.Info("building application dependencies")

	if err := toc.CheckRecipe(cfg.TOC.RecipePath); err != nil {
		return fmt.Errorf("toc recipe check failed: %w", err)
	}

	clock := system.New()
	launcher, err := browser.New(browser.Config{
		ExecPath:          cfg.Browser.ExecPath,
		NoSandbox:         cfg.Browser.NoSandbox,
		NavigationTimeout: cfg.Browser.NavTimeout,
		PageFormat:        cfg.Browser.PageFormat,
		MarginPx:          cfg.Browser.MarginPx,
		BaseURL:           cfg.Upstream.BaseURL,
		LoginPath:         cfg.Upstream.LoginPath,
		UserField:         cfg.Browser.UserField,
		PasswordField:     cfg.Browser.PasswordField,
		MetricsSelector:   cfg.Browser.MetricsSelector,
		ExcludeSelector:   cfg.Browser.ExcludeSelector,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("browser init failed: %w", err)
	}

	workspaces, err := workspace.NewAllocator(cfg.Workspace.Dir, uuid.New(), a.logger.Named("workspace"))
	if err != nil {
		return fmt.Errorf("workspace init failed: %w", err)
	}

	if err := a.setupTemplates(ctx); err != nil {
		return err
	}
	covers, err := cover.New(cover.Config{
		SofficeBin: cfg.Cover.SofficeBin,
		Open:       cfg.Cover.PlaceholderOpen,
		Close:      cfg.Cover.PlaceholderClose,
	}, a.templates, a.logger)
	if err != nil {
		return fmt.Errorf("cover composer init failed: %w", err)
	}

	runs, err := a.setupLedger(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Browser:    launcher,
		Workspaces: workspaces,
		Outline: toc.NewExtractor(toc.Config{
			RecipePath: cfg.TOC.RecipePath,
			TocGenBin:  cfg.TOC.TocGenBin,
			TocIOBin:   cfg.TOC.TocIOBin,
		}, a.logger),
		TocPages:  toc.NewPageRenderer(cfg.TOC.Title, a.logger),
		Covers:    covers,
		Assembler: assemble.New(a.logger),
		Runs:      runs,
		Publisher: publisher,
		Hasher:    sha256.New(),
		Clock:     clock,
	}, pipeline.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		PreviewPath: cfg.Upstream.PreviewPath,
		HistoryPath: cfg.Upstream.HistoryPath,
		APIKey:      cfg.Upstream.APIKey,
		Topic:       cfg.Notify.Topic,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.upstream, err = upstream.New(upstream.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		APIKey:       cfg.Upstream.APIKey,
		Timeout:      cfg.Upstream.Timeout,
		MetadataPath: cfg.Upstream.MetadataPath,
	}, nil, a.logger)
	if err != nil {
		return fmt.Errorf("upstream client init failed: %w", err)
	}

	a.governor = governor.New(cfg.Limits.MaxProcesses)
	metrics.RegisterActiveRuns(func() float64 { return float64(a.governor.Current()) })

	var verifier api.TokenVerifier
	if cfg.Auth.Enabled {
		verifier, err = auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.MaxTokenAge, clock)
		if err != nil {
			return fmt.Errorf("auth init failed: %w", err)
		}
	} else {
		a.logger.Warn("request token verification disabled")
	}

	a.apiServer = api.NewServer(a.upstream, a.pipeline, a.governor, verifier, clock, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		StartedAt:      a.startedAt,
	}, a.logger)
	return nil
}

func (a *App) setupTemplates(ctx context.Context) error {
	tc := a.cfg.Cover.Templates
	var err error
	switch tc.Provider {
	case "gcs":
		a.logger.Info("using GCS cover templates", zap.String("bucket", tc.Bucket))
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.templates, err = gcsstorage.New(a.storage, gcsstorage.Config{Bucket: tc.Bucket, Prefix: tc.Prefix})
	case "minio":
		a.logger.Info("using MinIO cover templates", zap.String("endpoint", tc.Endpoint), zap.String("bucket", tc.Bucket))
		a.templates, err = miniostorage.New(miniostorage.Config{
			Endpoint:  tc.Endpoint,
			AccessKey: tc.AccessKey,
			SecretKey: tc.SecretKey,
			Bucket:    tc.Bucket,
			Prefix:    tc.Prefix,
			UseSSL:    tc.UseSSL,
		})
	case "memory":
		a.logger.Info("using in-memory cover templates")
		a.templates = memorystorage.NewTemplateStore()
	default:
		a.logger.Info("using local cover templates", zap.String("dir", tc.Dir))
		a.templates, err = localstorage.New(localstorage.Config{BaseDir: tc.Dir})
	}
	if err != nil {
		return fmt.Errorf("template store init failed: %w", err)
	}
	return nil
}

func (a *App) setupLedger(ctx context.Context) (report.RunStore, error) {
	lc := a.cfg.Ledger
	switch lc.Driver {
	case "postgres":
		store, err := pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{DSN: lc.DSN, Table: lc.Table})
		if err != nil {
			return nil, fmt.Errorf("postgres ledger init failed: %w", err)
		}
		a.pgRuns = store
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres ledger schema failed: %w", err)
		}
		a.logger.Info("postgres run ledger initialized", zap.String("table", lc.Table))
		return store, nil
	case "sqlite":
		store, err := sqlitestore.Open(ctx, lc.DSN, lc.Table)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger init failed: %w", err)
		}
		a.sqliteRuns = store
		a.logger.Info("sqlite run ledger initialized", zap.String("table", lc.Table))
		return store, nil
	case "memory":
		a.logger.Info("using in-memory run ledger")
		return memorystorage.NewRunStore(), nil
	default:
		a.logger.Info("run ledger disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (report.Publisher, error) {
	nc := a.cfg.Notify
	switch nc.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, nc.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", nc.ProjectID),
			zap.String("topic", nc.Topic),
		)
		a.publisher = gcppublisher.New(client, gcppublisher.Config{MaxAttempts: nc.MaxAttempts}, a.logger)
		return a.publisher, nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("run events disabled")
		return nil, nil
	}
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	TOC       TOCConfig       `mapstructure:"toc"`
	Cover     CoverConfig     `mapstructure:"cover"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// UpstreamConfig points at the document host.
type UpstreamConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LoginPath    string        `mapstructure:"login_path"`
	PreviewPath  string        `mapstructure:"preview_path"`
	HistoryPath  string        `mapstructure:"history_path"`
	MetadataPath string        `mapstructure:"metadata_path"`
}

// AuthConfig defines request token verification.
type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Secret      string        `mapstructure:"secret"`
	MaxTokenAge time.Duration `mapstructure:"max_token_age"`
}

// BrowserConfig configures the headless rendering engine.
type BrowserConfig struct {
	ExecPath        string        `mapstructure:"exec_path"`
	NoSandbox       bool          `mapstructure:"no_sandbox"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	PageFormat      string        `mapstructure:"page_format"`
	MarginPx        int           `mapstructure:"margin_px"`
	MetricsSelector string        `mapstructure:"metrics_selector"`
	ExcludeSelector string        `mapstructure:"exclude_selector"`
	UserField       string        `mapstructure:"user_field"`
	PasswordField   string        `mapstructure:"password_field"`
}

// WorkspaceConfig sets the scratch directory.
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir"`
}

// TOCConfig configures outline extraction and the TOC page.
type TOCConfig struct {
	RecipePath string `mapstructure:"recipe_path"`
	TocGenBin  string `mapstructure:"tocgen_bin"`
	TocIOBin   string `mapstructure:"tocio_bin"`
	Title      string `mapstructure:"title"`
}

// CoverConfig configures cover composition.
type CoverConfig struct {
	SofficeBin       string          `mapstructure:"soffice_bin"`
	PlaceholderOpen  string          `mapstructure:"placeholder_open"`
	PlaceholderClose string          `mapstructure:"placeholder_close"`
	Templates        TemplatesConfig `mapstructure:"templates"`
}

// TemplatesConfig selects where cover templates are read from.
type TemplatesConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LimitsConfig sets the health threshold.
type LimitsConfig struct {
	MaxProcesses int `mapstructure:"max_processes"`
}

// LedgerConfig selects the run ledger backend.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// NotifyConfig selects the run event publisher.
type NotifyConfig struct {
	Provider    string `mapstructure:"provider"`
	ProjectID   string `mapstructure:"project_id"`
	Topic       string `mapstructure:"topic"`
	MaxAttempts uint   `mapstructure:"max_attempts"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps config keys to the environment names the service has
// always honored, checked after the prefixed name.
var legacyEnv = map[string]string{
	"upstream.base_url":    "CBM_BASE_URL",
	"upstream.api_key":     "CBM_API_KEY",
	"auth.secret":          "SECRET",
	"limits.max_processes": "MAX_PROCESS_NUM",
}

// Load builds a Config from an optional .env file, an optional config file
// and the environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("PDFWORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := "PDFWORKER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.request_timeout", "30m")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.login_path", "/login.spr")
	v.SetDefault("upstream.preview_path", "/dtas/preview.spr")
	v.SetDefault("upstream.history_path", "/dtas/history.spr")
	v.SetDefault("upstream.metadata_path", "/dtas/preview-metadata.spr")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.max_token_age", "15s")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.nav_timeout", "2m")
	v.SetDefault("browser.page_format", "A4")
	v.SetDefault("browser.margin_px", 50)
	v.SetDefault("browser.metrics_selector", "#metrics")
	v.SetDefault("browser.exclude_selector", ".no-print")
	v.SetDefault("browser.user_field", "#user")
	v.SetDefault("browser.password_field", "#password")
	v.SetDefault("workspace.dir", "~/.pdfworker")
	v.SetDefault("toc.recipe_path", "~/.pdfworker/config/recipe.toml")
	v.SetDefault("toc.tocgen_bin", "pdftocgen")
	v.SetDefault("toc.tocio_bin", "pdftocio")
	v.SetDefault("toc.title", "目录")
	v.SetDefault("cover.soffice_bin", "soffice")
	v.SetDefault("cover.placeholder_open", "{{")
	v.SetDefault("cover.placeholder_close", "}}")
	v.SetDefault("cover.templates.provider", "local")
	v.SetDefault("cover.templates.dir", "~/.pdfworker/templates")
	v.SetDefault("cover.templates.bucket", "")
	v.SetDefault("cover.templates.prefix", "")
	v.SetDefault("cover.templates.endpoint", "")
	v.SetDefault("cover.templates.access_key", "")
	v.SetDefault("cover.templates.secret_key", "")
	v.SetDefault("cover.templates.use_ssl", true)
	v.SetDefault("limits.max_processes", 10)
	v.SetDefault("ledger.driver", "none")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.table", "report_runs")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "pdfworker-runs")
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Workspace.Dir, &c.TOC.RecipePath, &c.Cover.Templates.Dir} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return fmt.Errorf("upstream.api_key is required")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret must be set when auth is enabled")
	}
	if c.Auth.Enabled && c.Auth.MaxTokenAge <= 0 {
		return fmt.Errorf("auth.max_token_age must be > 0")
	}
	if c.Browser.MarginPx < 0 {
		return fmt.Errorf("browser.margin_px must be >= 0")
	}
	switch strings.ToUpper(c.Browser.PageFormat) {
	case "A4", "LETTER":
	default:
		return fmt.Errorf("browser.page_format must be A4 or Letter")
	}
	if c.Workspace.Dir == "" {
		return fmt.Errorf("workspace.dir is required")
	}
	if c.TOC.RecipePath == "" {
		return fmt.Errorf("toc.recipe_path is required")
	}
	if c.Limits.MaxProcesses <= 0 {
		return fmt.Errorf("limits.max_processes must be > 0")
	}
	if c.Cover.PlaceholderOpen == "" || c.Cover.PlaceholderClose == "" {
		return fmt.Errorf("cover.placeholder_open and cover.placeholder_close are required")
	}
	switch c.Cover.Templates.Provider {
	case "memory":
	case "local":
		if c.Cover.Templates.Dir == "" {
			return fmt.Errorf("cover.templates.dir is required for the local provider")
		}
	case "gcs":
		if c.Cover.Templates.Bucket == "" {
			return fmt.Errorf("cover.templates.bucket is required for the gcs provider")
		}
	case "minio":
		if c.Cover.Templates.Bucket == "" || c.Cover.Templates.Endpoint == "" {
			return fmt.Errorf("cover.templates.endpoint and cover.templates.bucket are required for the minio provider")
		}
	default:
		return fmt.Errorf("cover.templates.provider must be local, gcs, minio or memory")
	}
	switch c.Ledger.Driver {
	case "none", "memory":
	case "postgres", "sqlite":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the %s driver", c.Ledger.Driver)
		}
	default:
		return fmt.Errorf("ledger.driver must be none, memory, postgres or sqlite")
	}
	switch c.Notify.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("notify.provider must be none, memory or pubsub")
	}
	return nil
}

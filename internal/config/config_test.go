package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 5m
upstream:
  base_url: https://cbm.example.com
  api_key: dXNlcjpwYXNz
  timeout: 10s
auth:
  enabled: true
  secret: shh
  max_token_age: 30s
browser:
  exec_path: /usr/bin/google-chrome
  page_format: Letter
  margin_px: 40
workspace:
  dir: /tmp/pdfworker
toc:
  recipe_path: /etc/pdfworker/recipe.toml
cover:
  templates:
    provider: minio
    endpoint: minio:9000
    bucket: covers
limits:
  max_processes: 3
ledger:
  driver: sqlite
  dsn: file:runs.db
notify:
  provider: memory
logging:
  development: true
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout != 5*time.Minute {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Upstream.BaseURL != "https://cbm.example.com" || cfg.Upstream.Timeout != 10*time.Second {
		t.Fatalf("unexpected upstream config %+v", cfg.Upstream)
	}
	if cfg.Upstream.PreviewPath != "/dtas/preview.spr" {
		t.Fatalf("expected default preview path, got %q", cfg.Upstream.PreviewPath)
	}
	if cfg.Auth.MaxTokenAge != 30*time.Second {
		t.Fatalf("expected 30s token age, got %v", cfg.Auth.MaxTokenAge)
	}
	if cfg.Browser.PageFormat != "Letter" || cfg.Browser.MarginPx != 40 {
		t.Fatalf("unexpected browser config %+v", cfg.Browser)
	}
	if cfg.Cover.Templates.Provider != "minio" || cfg.Cover.Templates.Bucket != "covers" {
		t.Fatalf("unexpected templates config %+v", cfg.Cover.Templates)
	}
	if cfg.Limits.MaxProcesses != 3 || cfg.Ledger.Driver != "sqlite" || cfg.Notify.Provider != "memory" {
		t.Fatalf("expected limits/ledger/notify overrides to apply")
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadDefaultsAndLegacyEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CBM_BASE_URL", "https://legacy.example.com")
	t.Setenv("CBM_API_KEY", "bGVnYWN5OnB3")
	t.Setenv("SECRET", "legacy-secret")
	t.Setenv("MAX_PROCESS_NUM", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.BaseURL != "https://legacy.example.com" || cfg.Upstream.APIKey != "bGVnYWN5OnB3" {
		t.Fatalf("expected legacy upstream env to apply, got %+v", cfg.Upstream)
	}
	if cfg.Auth.Secret != "legacy-secret" || !cfg.Auth.Enabled {
		t.Fatalf("expected legacy secret, got %+v", cfg.Auth)
	}
	if cfg.Limits.MaxProcesses != 7 {
		t.Fatalf("expected max processes 7, got %d", cfg.Limits.MaxProcesses)
	}
	if cfg.Server.Port != 5000 || cfg.Server.RequestTimeout != 30*time.Minute {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Auth.MaxTokenAge != 15*time.Second {
		t.Fatalf("expected 15s token age, got %v", cfg.Auth.MaxTokenAge)
	}
	if want := filepath.Join(home, ".pdfworker"); cfg.Workspace.Dir != want {
		t.Fatalf("expected workspace %s, got %s", want, cfg.Workspace.Dir)
	}
	if want := filepath.Join(home, ".pdfworker", "config", "recipe.toml"); cfg.TOC.RecipePath != want {
		t.Fatalf("expected recipe %s, got %s", want, cfg.TOC.RecipePath)
	}
	if cfg.TOC.Title != "目录" || cfg.Browser.MarginPx != 50 || cfg.Browser.PageFormat != "A4" {
		t.Fatalf("unexpected capture defaults")
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CBM_BASE_URL", "https://legacy.example.com")
	t.Setenv("PDFWORKER_UPSTREAM_BASE_URL", "https://new.example.com")
	t.Setenv("CBM_API_KEY", "a2V5OnB3")
	t.Setenv("PDFWORKER_AUTH_ENABLED", "false")
	t.Setenv("PDFWORKER_BROWSER_EXEC_PATH", "/opt/chrome")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.BaseURL != "https://new.example.com" {
		t.Fatalf("expected prefixed env to win, got %s", cfg.Upstream.BaseURL)
	}
	if cfg.Auth.Enabled {
		t.Fatal("expected auth disabled via env")
	}
	if cfg.Browser.ExecPath != "/opt/chrome" {
		t.Fatalf("expected exec path from env, got %q", cfg.Browser.ExecPath)
	}
}

func TestExpandHome(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandHome("~/x/y")
	if err != nil {
		t.Fatalf("ExpandHome() error = %v", err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Fatalf("unexpected expansion %s", got)
	}
	if got, _ := ExpandHome("/abs/~/p"); got != "/abs/~/p" {
		t.Fatalf("absolute path changed: %s", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 5000, RequestTimeout: time.Minute},
		Upstream:  UpstreamConfig{BaseURL: "https://cbm", APIKey: "k"},
		Auth:      AuthConfig{Enabled: true, Secret: "s", MaxTokenAge: time.Second},
		Browser:   BrowserConfig{PageFormat: "A4", MarginPx: 50},
		Workspace: WorkspaceConfig{Dir: "/tmp/w"},
		TOC:       TOCConfig{RecipePath: "/tmp/r.toml"},
		Cover: CoverConfig{
			PlaceholderOpen:  "{{",
			PlaceholderClose: "}}",
			Templates:        TemplatesConfig{Provider: "local", Dir: "/tmp/t"},
		},
		Limits: LimitsConfig{MaxProcesses: 10},
		Ledger: LedgerConfig{Driver: "none"},
		Notify: NotifyConfig{Provider: "none"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	inMemory := base
	inMemory.Cover.Templates = TemplatesConfig{Provider: "memory"}
	inMemory.Ledger.Driver = "memory"
	inMemory.Notify.Provider = "memory"
	if err := inMemory.Validate(); err != nil {
		t.Fatalf("in-memory providers should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing base url", func(c *Config) { c.Upstream.BaseURL = "" }, "upstream.base_url"},
		{"missing api key", func(c *Config) { c.Upstream.APIKey = " " }, "upstream.api_key"},
		{"auth missing secret", func(c *Config) { c.Auth.Secret = "" }, "auth.secret"},
		{"bad page format", func(c *Config) { c.Browser.PageFormat = "A3" }, "browser.page_format"},
		{"bad max processes", func(c *Config) { c.Limits.MaxProcesses = 0 }, "limits.max_processes"},
		{"gcs without bucket", func(c *Config) { c.Cover.Templates.Provider = "gcs" }, "cover.templates.bucket"},
		{"unknown provider", func(c *Config) { c.Cover.Templates.Provider = "ftp" }, "cover.templates.provider"},
		{"postgres without dsn", func(c *Config) { c.Ledger.Driver = "postgres" }, "ledger.dsn"},
		{"unknown ledger", func(c *Config) { c.Ledger.Driver = "mongo" }, "ledger.driver"},
		{"pubsub without topic", func(c *Config) { c.Notify.Provider = "pubsub" }, "notify.project_id"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

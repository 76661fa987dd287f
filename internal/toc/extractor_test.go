package toc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/workspace"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

type fixture struct {
	ws     *workspace.Workspace
	recipe string
	bin    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	dir := t.TempDir()
	ws, err := workspace.New(dir, "run-toc", zap.NewNop())
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}
	if err := ws.WriteBody([]byte("%PDF-body")); err != nil {
		t.Fatalf("WriteBody() error = %v", err)
	}
	recipe := filepath.Join(dir, "recipe.toml")
	if err := os.WriteFile(recipe, []byte("[[heading]]\nlevel = 1\n"), 0o600); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	bin := filepath.Join(dir, "bin")
	if err := os.Mkdir(bin, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return fixture{ws: ws, recipe: recipe, bin: bin}
}

// Script-backed tests run serially: exec of a freshly written file can fail
// with ETXTBSY while another goroutine holds a write descriptor.
func TestExtractSuccess(t *testing.T) {
	f := newFixture(t)
	gen := writeScript(t, f.bin, "pdftocgen", `grep -q heading || exit 3
printf '"Intro" 1\n  "Scope" 2\n'
`)
	// pdftocio -o <out> <in>
	tocio := writeScript(t, f.bin, "pdftocio", `cat > /dev/null
cp "$3" "$2" && printf '%%outline' >> "$2"
`)
	ex := NewExtractor(Config{RecipePath: f.recipe, TocGenBin: gen, TocIOBin: tocio}, zap.NewNop())

	outline, err := ex.Extract(context.Background(), f.ws)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if outline.Listing != "\"Intro\" 1\n  \"Scope\" 2\n" {
		t.Fatalf("unexpected listing %q", outline.Listing)
	}
	if string(outline.PDF) != "%PDF-body%outline" {
		t.Fatalf("unexpected outlined pdf %q", outline.PDF)
	}
	if _, err := os.Stat(f.ws.TocTextPath); err != nil {
		t.Fatalf("expected listing at %s: %v", f.ws.TocTextPath, err)
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		gen    string
		tocio  string
		recipe func(f fixture) string
	}{
		{
			name:  "generator exits non-zero",
			gen:   "echo boom >&2\nexit 1\n",
			tocio: "exit 0\n",
		},
		{
			name:  "empty listing",
			gen:   "cat > /dev/null\n",
			tocio: "exit 0\n",
		},
		{
			name:  "injector fails",
			gen:   "printf '\"A\" 1\\n'\n",
			tocio: "echo broken >&2\nexit 2\n",
		},
		{
			name:  "injector writes nothing",
			gen:   "printf '\"A\" 1\\n'\n",
			tocio: "cat > /dev/null\n",
		},
		{
			name:   "missing recipe",
			gen:    "printf '\"A\" 1\\n'\n",
			tocio:  "exit 0\n",
			recipe: func(f fixture) string { return filepath.Join(f.bin, "absent.toml") },
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			recipe := f.recipe
			if tt.recipe != nil {
				recipe = tt.recipe(f)
			}
			ex := NewExtractor(Config{
				RecipePath: recipe,
				TocGenBin:  writeScript(t, f.bin, "pdftocgen", tt.gen),
				TocIOBin:   writeScript(t, f.bin, "pdftocio", tt.tocio),
			}, nil)
			_, err := ex.Extract(context.Background(), f.ws)
			if !errors.Is(err, report.ErrTocGenerationFailed) {
				t.Fatalf("expected ErrTocGenerationFailed, got %v", err)
			}
		})
	}
}

func TestCheckRecipe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := CheckRecipe(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatal("expected error for missing recipe")
	}
	if err := CheckRecipe(dir); err == nil {
		t.Fatal("expected error for directory")
	}
	path := filepath.Join(dir, "recipe.toml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := CheckRecipe(path); err != nil {
		t.Fatalf("CheckRecipe() error = %v", err)
	}
}

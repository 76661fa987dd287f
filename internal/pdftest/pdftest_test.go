package pdftest

import (
	"bytes"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func init() {
	api.DisableConfigDir()
}

func TestBuildIsReadable(t *testing.T) {
	t.Parallel()

	pdf := Build(100, 200, 300)
	if !bytes.HasPrefix(pdf, []byte("%PDF-1.4")) {
		t.Fatalf("missing header: %q", pdf[:8])
	}
	widths, err := Widths(pdf)
	if err != nil {
		t.Fatalf("Widths() error = %v", err)
	}
	if len(widths) != 3 || widths[0] != 100 || widths[1] != 200 || widths[2] != 300 {
		t.Fatalf("unexpected widths %v", widths)
	}
}

func TestBuildDefaultsToOnePage(t *testing.T) {
	t.Parallel()

	widths, err := Widths(Build())
	if err != nil {
		t.Fatalf("Widths() error = %v", err)
	}
	if len(widths) != 1 || widths[0] != 595 {
		t.Fatalf("unexpected widths %v", widths)
	}
}

func TestWidthsRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Widths([]byte("not a pdf")); err == nil {
		t.Fatal("expected error")
	}
}

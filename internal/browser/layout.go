package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// Paper is a page format in millimetres, portrait orientation.
type Paper struct {
	Name     string
	WidthMM  float64
	HeightMM float64
}

var papers = map[string]Paper{
	"A4":     {Name: "A4", WidthMM: 210, HeightMM: 297},
	"LETTER": {Name: "Letter", WidthMM: 215.9, HeightMM: 279.4},
}

const (
	mmPerInch = 25.4
	cssDPI    = 96.0
)

// PaperSize resolves a page format name, case-insensitively.
func PaperSize(format string) (Paper, error) {
	p, ok := papers[strings.ToUpper(strings.TrimSpace(format))]
	if !ok {
		return Paper{}, fmt.Errorf("unsupported page format %q", format)
	}
	return p, nil
}

// WidthInches returns the paper width in inches.
func (p Paper) WidthInches() float64 { return p.WidthMM / mmPerInch }

// HeightInches returns the paper height in inches.
func (p Paper) HeightInches() float64 { return p.HeightMM / mmPerInch }

// PxToMM converts CSS pixels to millimetres.
func PxToMM(px float64) float64 {
	return px * mmPerInch / cssDPI
}

// MarginInches converts a CSS pixel margin to inches.
func MarginInches(px int) float64 {
	return float64(px) / cssDPI
}

// Landscape reports whether content widthMM wide overflows the short edge of
// the paper.
func Landscape(widthMM float64, paper Paper) bool {
	return widthMM > paper.WidthMM
}

// PreviewURL builds the preview address for a task and optional template.
func PreviewURL(base, path, taskID, template string) (string, error) {
	u, err := resolve(base, path)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("task_id", taskID)
	if t := strings.TrimSpace(template); t != "" {
		q.Set("template_name", t)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageURL joins a path onto the base address.
func PageURL(base, path string) (string, error) {
	u, err := resolve(base, path)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func resolve(base, path string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	return u, nil
}

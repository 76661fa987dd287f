// Package pdftest builds tiny, structurally valid PDFs for tests. Each page
// gets its own MediaBox width so merged output can be checked page by page.
package pdftest

import (
	"bytes"
	"fmt"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Height is the MediaBox height of every generated page.
const Height = 842

// Build returns a PDF with one page per width, in order.
func Build(widths ...int) []byte {
	if len(widths) == 0 {
		widths = []int{595}
	}
	var objects []string
	kids := ""
	for i := range widths {
		if i > 0 {
			kids += " "
		}
		kids += fmt.Sprintf("%d 0 R", i+3)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(widths)),
	)
	for _, w := range widths {
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> >>", w, Height))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// Widths returns the MediaBox width of every page of pdf, rounded to whole points.
func Widths(pdf []byte) ([]int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	dims, err := api.PageDims(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, fmt.Errorf("read page dimensions: %w", err)
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(math.Round(d.Width))
	}
	return out, nil
}

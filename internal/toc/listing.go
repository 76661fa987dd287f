package toc

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// ParseListing parses an outline listing into entries in document order.
// Blank lines and lines without a trailing positive page number are skipped.
// Indent counts leading whitespace characters.
func ParseListing(text string) []report.TocEntry {
	var entries []report.TocEntry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		indent := utf8.RuneCountInString(line[:len(line)-len(trimmed)])
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)

		cut := strings.LastIndexFunc(trimmed, unicode.IsSpace)
		if cut < 0 {
			continue
		}
		page, ok := pageNumber(trimmed[cut+1:])
		if !ok {
			continue
		}
		title := strings.TrimSpace(strings.ReplaceAll(trimmed[:cut], `"`, ""))
		entries = append(entries, report.TocEntry{Title: title, Indent: indent, Page: page})
	}
	return entries
}

// pageNumber accepts only unsigned decimal page numbers of at least 1.
func pageNumber(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0, false
		}
	}
	page, err := strconv.Atoi(token)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// indentPx is the left padding per leading whitespace column.
const indentPx = 5

var pageTemplate = template.Must(template.New("toc").Funcs(template.FuncMap{
	"padding": func(indent int) int { return indent * indentPx },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
.toc-title { text-align: center; font-size: 24px; font-weight: bold; margin: 20px 0 30px 0; }
.toc-entry { display: flex; align-items: baseline; margin: 4px 0; overflow: hidden; }
.title { white-space: nowrap; }
.dots { margin: 0 4px; border-bottom: 1px dotted #000; flex: 1; }
.page-number { white-space: nowrap; margin-left: 4px; text-align: right; min-width: 30px; }
</style>
</head>
<body>
<div class="toc-title">{{.Title}}</div>
{{range .Entries}}<div class="toc-entry" style="padding-left: {{padding .Indent}}px">
<span class="title">{{.Title}}</span>
<span class="dots"></span>
<span class="page-number">{{.Page}}</span>
</div>
{{end}}</body>
</html>
`))

// RenderHTML renders entries as a printable table-of-contents page.
func RenderHTML(title string, entries []report.TocEntry) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, struct {
		Title   string
		Entries []report.TocEntry
	}{Title: title, Entries: entries}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

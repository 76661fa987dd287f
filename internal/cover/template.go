package cover

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// payloadEntry reports whether a zip entry carries document text that may hold placeholders.
func payloadEntry(name string) bool {
	switch name {
	case "word/document.xml", "content.xml", "styles.xml":
		return true
	}
	dir, file := path.Split(name)
	if dir != "word/" || path.Ext(file) != ".xml" {
		return false
	}
	return strings.HasPrefix(file, "header") || strings.HasPrefix(file, "footer")
}

// Fill replaces every open+key+close token in the payload entries of the
// OOXML or ODF archive src with the XML-escaped value from data. Other entries
// are copied through untouched, keeping their order and compression method.
func Fill(src []byte, data map[string]string, open, close string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return nil, fmt.Errorf("open template archive: %w", err)
	}
	replacer, err := newReplacer(data, open, close)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		header := f.FileHeader
		if err := copyEntry(zw, f, &header, replacer); err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish template archive: %w", err)
	}
	return buf.Bytes(), nil
}

func copyEntry(zw *zip.Writer, f *zip.File, header *zip.FileHeader, replacer *strings.Replacer) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // read-only
	content, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if replacer != nil && payloadEntry(f.Name) {
		content = []byte(replacer.Replace(string(content)))
	}
	// Sizes and CRC are recomputed by the writer.
	header.CompressedSize64 = 0
	header.UncompressedSize64 = 0
	header.CRC32 = 0
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}

func newReplacer(data map[string]string, open, close string) (*strings.Replacer, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if open == "" || close == "" {
		return nil, fmt.Errorf("placeholder delimiters are required")
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	// Stable order keeps the output archive deterministic.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		var escaped strings.Builder
		if err := xml.EscapeText(&escaped, []byte(data[k])); err != nil {
			return nil, fmt.Errorf("escape %s: %w", k, err)
		}
		pairs = append(pairs, open+k+close, escaped.String())
	}
	return strings.NewReplacer(pairs...), nil
}

// Package storage holds helpers shared by the template and run stores.
package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// CleanRef normalizes a template reference into a relative slash path and
// rejects references that escape their root.
func CleanRef(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, `\`, "/"))
	if ref == "" {
		return "", fmt.Errorf("template reference is required")
	}
	if strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("template reference %q must be relative", ref)
	}
	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("template reference %q escapes its root", ref)
	}
	return cleaned, nil
}

// ObjectKey joins a prefix and a cleaned reference.
func ObjectKey(prefix, ref string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ref
	}
	return prefix + "/" + ref
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableName returns name, or fallback when empty, after checking it is a
// plain SQL identifier.
func TableName(name, fallback string) (string, error) {
	if name == "" {
		name = fallback
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

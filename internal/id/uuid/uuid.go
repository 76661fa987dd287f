// Package uuid generates run identifiers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run identifiers.
type Generator struct {
	prefix string
}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewWithPrefix creates a Generator whose identifiers start with prefix.
// The prefix must be safe inside a file name.
func NewWithPrefix(prefix string) (*Generator, error) {
	if strings.ContainsAny(prefix, `/\ `) {
		return nil, fmt.Errorf("invalid run id prefix %q", prefix)
	}
	return &Generator{prefix: prefix}, nil
}

// NewID returns a UUIDv7 string, prefixed if configured.
func (g Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}

package report

import (
	"context"
	"io"
	"time"
)

// Browser launches one rendering engine instance per run.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is an open rendering engine instance. Close must always be called.
type Session interface {
	Login(ctx context.Context, creds Credentials) error
	Capture(ctx context.Context, req CaptureRequest) (Capture, error)
	PrintHTML(ctx context.Context, html string, opts PrintOptions) ([]byte, error)
	Close() error
}

// TemplateStore resolves a cover template reference to its bytes.
type TemplateStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// TemplateWriter uploads cover templates and returns their URI.
type TemplateWriter interface {
	Put(ctx context.Context, ref string, contentType string, r io.Reader) (string, error)
}

// RunStore persists run metadata.
type RunStore interface {
	RecordRun(ctx context.Context, record RunRecord) error
}

// Publisher pushes run events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher digests delivered documents.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

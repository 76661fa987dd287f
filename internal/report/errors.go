package report

import "errors"

// Fatal-to-run errors.
var (
	ErrMissingCredentials = errors.New("missing or malformed credentials")
	ErrTitleMismatch      = errors.New("page title does not match task name")
	ErrCaptureFailed      = errors.New("capture failed")
	ErrUpstream           = errors.New("upstream request failed")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ErrTemplateNotFound is returned by template stores for unknown references.
var ErrTemplateNotFound = errors.New("template not found")

// Degradable errors. The pipeline absorbs these and continues with a smaller plan.
var (
	ErrTocGenerationFailed   = errors.New("toc generation failed")
	ErrCoverConversionFailed = errors.New("cover conversion failed")
	ErrMergeFailed           = errors.New("merge failed")
)

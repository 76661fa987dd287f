package report

import (
	"time"
)

// Task is the upstream work item a report is generated for.
type Task struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Tracker TrackerRef `json:"tracker"`
}

// TrackerRef points at the tracker a task belongs to.
type TrackerRef struct {
	ID int64 `json:"id"`
}

// Tracker carries tracker-level metadata.
type Tracker struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PreviewMetadata controls how a preview is turned into a report.
type PreviewMetadata struct {
	HeaderTemplate string            `json:"header_template"`
	FooterTemplate string            `json:"footer_template"`
	RenderTOC      bool              `json:"render_toc"`
	RenderHistory  bool              `json:"render_history"`
	CoverTemplate  string            `json:"cover_template"`
	CoverData      map[string]string `json:"cover_data"`
}

// WantsCover reports whether a cover section was requested.
func (m PreviewMetadata) WantsCover() bool {
	return m.CoverTemplate != ""
}

// GenerationRequest is the immutable input of one pipeline run.
type GenerationRequest struct {
	TaskID       string
	UserID       string
	TemplateName string
	Task         Task
	Tracker      Tracker
	Preview      PreviewMetadata
}

// Credentials are the decoded login pair used to authenticate the browser.
type Credentials struct {
	Username string
	Password string
}

// PrintOptions controls paginated PDF output.
type PrintOptions struct {
	HeaderTemplate string
	FooterTemplate string
	Landscape      bool
}

// CaptureRequest describes one preview capture.
type CaptureRequest struct {
	URL           string
	ExpectedTitle string
	// SkipTitleCheck disables the title comparison. Only secondary pages
	// such as the change history set it; the body is always checked.
	SkipTitleCheck bool
	Print          PrintOptions
	// ExtractMetrics enables scraping of the metrics container.
	ExtractMetrics bool
}

// Capture is the output of a preview capture.
type Capture struct {
	PDF       []byte
	Metrics   ExtractedMetrics
	Landscape bool
	Duration  time.Duration
}

// ExtractedMetrics maps field identifiers to values scraped from the page.
type ExtractedMetrics map[string]string

// TocEntry is one parsed line of a table-of-contents listing.
type TocEntry struct {
	Title  string `json:"title"`
	Indent int    `json:"indent"`
	Page   int    `json:"page"`
}

// Degradation records an optional stage that failed without aborting the run.
type Degradation struct {
	Stage string
	Err   error
}

// String renders the degradation for logs and run records.
func (d Degradation) String() string {
	if d.Err == nil {
		return d.Stage
	}
	return d.Stage + ": " + d.Err.Error()
}

// Assembly is the outcome of merging an AssemblyPlan.
type Assembly struct {
	PDF      []byte
	Pages    int
	Sections []SectionName
	// Degraded is set when the merge failed and PDF holds the body alone.
	Degraded bool
	Cause    error
}

// Result is returned to the caller of a pipeline run.
type Result struct {
	RunID        string
	PDF          []byte
	Metrics      ExtractedMetrics
	Sections     []SectionName
	Pages        int
	Degradations []Degradation
}

// Degraded reports whether any optional stage failed.
func (r Result) Degraded() bool {
	return len(r.Degradations) > 0
}

// RunStatus is the terminal state recorded for a run.
type RunStatus string

// Run status values persisted in the run ledger.
const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusDegraded  RunStatus = "degraded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is the metadata persisted for each pipeline run. It never holds
// document bytes.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	TaskID       string    `json:"task_id"`
	UserID       string    `json:"user_id"`
	TemplateName string    `json:"template_name,omitempty"`
	Status       RunStatus `json:"status"`
	Sections     []string  `json:"sections"`
	Degradations []string  `json:"degradations,omitempty"`
	ErrorText    string    `json:"error_text,omitempty"`
	Bytes        int       `json:"bytes"`
	Pages        int       `json:"pages"`
	Digest       string    `json:"digest,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// Default page templates, used when preview metadata leaves them empty.
const (
	DefaultHeaderTemplate = `<div style="font-size: 10px; width: 100%; text-align: center;"><span class="title"></span></div>`
	DefaultFooterTemplate = `<div style="font-size: 10px; width: 100%; text-align: center;"><span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>`
)

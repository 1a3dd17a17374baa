package crawler

import "time"

// Status enumerates crawl session lifecycle states.
type Status string

// Supported session states.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends a session.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ErrorRecord attributes a broken resource to the page that referenced it.
type ErrorRecord struct {
	PageURL     string `json:"page_url"`
	ResourceURL string `json:"resource_url"`
	ErrorCode   int    `json:"error_code"`
}

// ResourceKind classifies a non-navigable reference embedded in a page.
type ResourceKind string

// Resource kinds validated by the crawler.
const (
	KindStylesheet ResourceKind = "stylesheet"
	KindScript     ResourceKind = "script"
	KindImage      ResourceKind = "image"
	KindVideo      ResourceKind = "video"
	KindIframe     ResourceKind = "iframe"
)

// ResourceLink is a resource reference extracted from a single page.
type ResourceLink struct {
	Kind    ResourceKind
	RawHref string
	URL     string
}

// Page is the result of a page GET.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Outcome is the tri-state result of a resource validation.
type Outcome int

// Resource validation outcomes.
const (
	OutcomeOK Outcome = iota
	OutcomeHTTPError
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// CheckResult carries the status code of a validated resource, or the
// transport failure that left it indeterminate.
type CheckResult struct {
	Outcome    Outcome
	StatusCode int
	Err        error
}

// ClassifyCheck maps a HEAD status code or transport error to a CheckResult.
// Only codes in [400,599] count as broken.
func ClassifyCheck(code int, err error) CheckResult {
	if err != nil {
		return CheckResult{Outcome: OutcomeUnreachable, Err: err}
	}
	if IsErrorStatus(code) {
		return CheckResult{Outcome: OutcomeHTTPError, StatusCode: code}
	}
	return CheckResult{Outcome: OutcomeOK, StatusCode: code}
}

// IsErrorStatus reports whether code is an HTTP client or server error.
func IsErrorStatus(code int) bool {
	return code >= 400 && code <= 599
}

// Progress is pushed each time a page is dispatched.
type Progress struct {
	URL       string
	Visited   int
	PageLimit int
}

// ResourceCheck describes one validated resource.
type ResourceCheck struct {
	PageURL  string
	Resource ResourceLink
	Result   CheckResult
}

// DiagnosticStage identifies where a recovered per-URL failure happened.
type DiagnosticStage string

// Diagnostic stages.
const (
	StagePageFetch     DiagnosticStage = "page_fetch"
	StagePageStatus    DiagnosticStage = "page_status"
	StageResourceCheck DiagnosticStage = "resource_check"
)

// Diagnostic reports a per-URL failure that was recovered without aborting the crawl.
type Diagnostic struct {
	Stage      DiagnosticStage
	URL        string
	Referrer   string
	StatusCode int
	Err        error
}

// Info is a point-in-time view of a session.
type Info struct {
	ID         string     `json:"id"`
	SeedURL    string     `json:"seed_url"`
	Origin     string     `json:"origin"`
	Status     Status     `json:"status"`
	Visited    int        `json:"visited"`
	PageLimit  int        `json:"page_limit"`
	Broken     int        `json:"broken"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

package crawler

import (
	"context"
	"time"
)

// Fetcher performs the network side of a crawl. Both calls must abort
// promptly when ctx is cancelled.
type Fetcher interface {
	// FetchPage issues a GET and returns the response, including 4xx/5xx.
	FetchPage(ctx context.Context, url string) (Page, error)
	// CheckResource issues a HEAD and returns the status code of any
	// response received. Only transport failures are errors.
	CheckResource(ctx context.Context, url string) (int, error)
}

// Observer receives crawl notifications. Calls arrive from worker
// goroutines and must not block for long.
type Observer interface {
	OnStatus(sessionID string, status Status)
	OnProgress(sessionID string, p Progress)
	OnResourceChecked(sessionID string, check ResourceCheck)
	OnError(sessionID string, rec ErrorRecord)
	OnDiagnostic(sessionID string, d Diagnostic)
}

// NopObserver ignores every notification. Embed it to implement a subset of Observer.
type NopObserver struct{}

// OnStatus implements Observer.
func (NopObserver) OnStatus(string, Status) {}

// OnProgress implements Observer.
func (NopObserver) OnProgress(string, Progress) {}

// OnResourceChecked implements Observer.
func (NopObserver) OnResourceChecked(string, ResourceCheck) {}

// OnError implements Observer.
func (NopObserver) OnError(string, ErrorRecord) {}

// OnDiagnostic implements Observer.
func (NopObserver) OnDiagnostic(string, Diagnostic) {}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs.
type IDGenerator interface {
	NewID() (string, error)
}

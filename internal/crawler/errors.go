package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeed indicates the seed URL cannot start a crawl.
	ErrInvalidSeed = errors.New("invalid seed url")
	// ErrMalformedURL indicates a reference that cannot be parsed as a URL.
	ErrMalformedURL = errors.New("malformed url")
	// ErrNotRunning is returned when cancelling a session that is not running.
	ErrNotRunning = errors.New("crawl session is not running")
	// ErrAlreadyRunning is returned when starting a session that is still running.
	ErrAlreadyRunning = errors.New("crawl session already running")
)

// FailureKind classifies transport-level fetch failures.
type FailureKind string

// Transport failure kinds.
const (
	FailureNetwork   FailureKind = "network_error"
	FailureTimeout   FailureKind = "timeout"
	FailureCancelled FailureKind = "cancelled"
)

// FetchError is returned by Fetcher implementations when no HTTP response was received.
type FetchError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FailureKindOf extracts the FailureKind from err, defaulting to FailureNetwork.
func FailureKindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureNetwork
}

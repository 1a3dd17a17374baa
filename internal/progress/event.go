// Package progress defines the event structures emitted while a crawl runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart     Stage = "CRAWL_START"
	StagePageVisit      Stage = "PAGE_VISIT"
	StageResourceCheck  Stage = "RESOURCE_CHECK"
	StageBrokenResource Stage = "BROKEN_RESOURCE"
	StageDiagnostic     Stage = "DIAGNOSTIC"
	StageCrawlDone      Stage = "CRAWL_DONE"
	StageCrawlCancelled Stage = "CRAWL_CANCELLED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported status classes for resource checks.
const (
	Status2xx         StatusClass = "2xx"
	Status3xx         StatusClass = "3xx"
	Status4xx         StatusClass = "4xx"
	Status5xx         StatusClass = "5xx"
	StatusUnreachable StatusClass = "unreachable"
	StatusOther       StatusClass = "other"
)

// Event captures a single component of crawl progress.
type Event struct {
	// SessionID identifies the crawl session using the 16-byte UUID form.
	SessionID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// URL is the page or resource the event is about.
	URL string
	// Referrer is the page that referenced URL, when known.
	Referrer string
	// StatusCode is the HTTP status for checks and broken resources.
	StatusCode int
	// StatusClass groups StatusCode, or marks a check as unreachable.
	StatusClass StatusClass
	// Visited is the session's visited count for page visits and terminal events.
	Visited int64
	// PageLimit is the session's page ceiling.
	PageLimit int64
	// Dur is the session runtime on terminal events.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageCrawlCancelled, StageDiagnostic:
	case StagePageVisit:
		if e.URL == "" {
			return errors.New("page visit requires url")
		}
	case StageResourceCheck:
		if e.URL == "" {
			return errors.New("resource check requires url")
		}
		if e.StatusClass == "" {
			return errors.New("resource check requires status class")
		}
	case StageBrokenResource:
		if e.URL == "" || e.Referrer == "" {
			return errors.New("broken resource requires url and referrer")
		}
		if e.StatusCode < 400 || e.StatusCode > 599 {
			return fmt.Errorf("broken resource status %d out of range", e.StatusCode)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SessionUUID converts the binary session ID to uuid.UUID.
func (e Event) SessionUUID() uuid.UUID {
	return uuid.UUID(e.SessionID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

// Package system provides the wall clock used for session timestamps.
package system

import (
	"time"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

// Clock implements crawler.Clock using time.Now in UTC.
type Clock struct{}

var _ crawler.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

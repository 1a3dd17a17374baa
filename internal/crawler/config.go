package crawler

import (
	"fmt"
	"time"
)

// Engine defaults.
const (
	DefaultPageLimit   = 10000
	DefaultConcurrency = 10
	DefaultDequeueWait = 200 * time.Millisecond
)

// Config tunes a crawl session.
type Config struct {
	// PageLimit caps how many pages are admitted for processing.
	PageLimit int
	// Concurrency is the number of workers, and so the maximum number of
	// requests in flight.
	Concurrency int
	// DequeueWait bounds how long an idle worker waits before re-checking
	// termination conditions.
	DequeueWait time.Duration
	// ReportBrokenPages records pages whose GET returns 4xx/5xx as
	// ErrorRecords attributed to the referring page.
	ReportBrokenPages bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PageLimit:   DefaultPageLimit,
		Concurrency: DefaultConcurrency,
		DequeueWait: DefaultDequeueWait,
	}
}

func (c Config) withDefaults() Config {
	if c.PageLimit == 0 {
		c.PageLimit = DefaultPageLimit
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.DequeueWait <= 0 {
		c.DequeueWait = DefaultDequeueWait
	}
	return c
}

// Validate enforces sane limits.
func (c Config) Validate() error {
	if c.PageLimit < 1 {
		return fmt.Errorf("crawler.page_limit must be >= 1")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("crawler.concurrency must be >= 1")
	}
	return nil
}

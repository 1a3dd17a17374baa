package crawler

import "sync"

// Collector accumulates ErrorRecords. It is append-only and safe for
// concurrent use.
type Collector struct {
	mu      sync.Mutex
	records []ErrorRecord
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends rec.
func (c *Collector) Record(rec ErrorRecord) {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
}

// Snapshot returns a copy of the records in append order.
func (c *Collector) Snapshot() []ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ErrorRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the number of records collected so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

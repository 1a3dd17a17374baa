package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
)

// ReportStore is a report.Sink that keeps rendered CSV reports in memory,
// keyed by session ID.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
	metas   map[string]report.Meta
}

var _ report.Sink = (*ReportStore)(nil)

// NewReportStore creates an empty ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string][]byte),
		metas:   make(map[string]report.Meta),
	}
}

// Write renders records as CSV and stores them under meta.SessionID. Empty
// reports are stored too so callers can tell a clean crawl from a missing one.
func (s *ReportStore) Write(_ context.Context, meta report.Meta, records []crawler.ErrorRecord) error {
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, records); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[meta.SessionID] = buf.Bytes()
	s.metas[meta.SessionID] = meta
	return nil
}

// Get returns the stored CSV and its metadata.
func (s *ReportStore) Get(sessionID string) ([]byte, report.Meta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.reports[sessionID]
	if !ok {
		return nil, report.Meta{}, false
	}
	return append([]byte(nil), data...), s.metas[sessionID], true
}

// Len returns how many reports are stored.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

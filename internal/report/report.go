// Package report persists the error records of a finished crawl session.
package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

// DefaultFileName is the report path used when none is configured.
const DefaultFileName = "error_details.csv"

// Header is the first line of every CSV report.
const Header = "PageURL,ResourceURL,ErrorCode"

// Meta describes the session a report belongs to.
type Meta struct {
	SessionID  string         `json:"session_id"`
	Seed       string         `json:"seed"`
	Status     crawler.Status `json:"status"`
	Visited    int            `json:"visited"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Sink receives the final error snapshot of a session.
type Sink interface {
	Write(ctx context.Context, meta Meta, records []crawler.ErrorRecord) error
}

// WriteCSV writes the header followed by one line per record. Fields are
// joined with commas verbatim; URLs containing commas are not quoted.
func WriteCSV(w io.Writer, records []crawler.ErrorRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		line := rec.PageURL + "," + rec.ResourceURL + "," + strconv.Itoa(rec.ErrorCode) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FileSink writes CSV reports to local files. A single-path sink rewrites
// one file per session; a per-session sink writes <dir>/<session-id>.csv.
// Writes are serialized and land through a temp file plus rename, so a reader
// never sees a partial or interleaved report.
type FileSink struct {
	path   string
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

// NewFileSink returns a FileSink for path, or DefaultFileName when path is empty.
func NewFileSink(path string, logger *zap.Logger) *FileSink {
	if path == "" {
		path = DefaultFileName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{path: path, logger: logger}
}

// NewSessionFileSink returns a FileSink that writes each session's report to
// its own file under dir.
func NewSessionFileSink(dir string, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{dir: dir, logger: logger}
}

// Path returns the destination file of a single-path sink.
func (s *FileSink) Path() string {
	return s.path
}

// PathFor returns the file the report of sessionID is written to.
func (s *FileSink) PathFor(sessionID string) (string, error) {
	if s.dir == "" {
		return s.path, nil
	}
	if sessionID == "" || sessionID != filepath.Base(sessionID) || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("invalid session id %q for report file", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".csv"), nil
}

// Write replaces the report file with records. Nothing is written when
// records is empty.
func (s *FileSink) Write(_ context.Context, meta Meta, records []crawler.ErrorRecord) error {
	if len(records) == 0 {
		s.logger.Info("no error pages to save", zap.String("session_id", meta.SessionID))
		return nil
	}
	path, err := s.PathFor(meta.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create report dir %s: %w", s.dir, err)
		}
	}
	if err := writeFileAtomic(path, records); err != nil {
		return err
	}
	s.logger.Info("error report saved",
		zap.String("session_id", meta.SessionID),
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return nil
}

func writeFileAtomic(path string, records []crawler.ErrorRecord) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := WriteCSV(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod report %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename report %s: %w", path, err)
	}
	return nil
}

// MultiSink fans a report out to several sinks. Every sink is attempted.
type MultiSink []Sink

// Write calls each sink in order and joins their errors.
func (m MultiSink) Write(ctx context.Context, meta Meta, records []crawler.ErrorRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Write(ctx, meta, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MetaFromInfo builds report metadata from a session snapshot.
func MetaFromInfo(info crawler.Info) Meta {
	meta := Meta{
		SessionID: info.ID,
		Seed:      info.SeedURL,
		Status:    info.Status,
		Visited:   info.Visited,
	}
	if info.FinishedAt != nil {
		meta.FinishedAt = *info.FinishedAt
	}
	return meta
}

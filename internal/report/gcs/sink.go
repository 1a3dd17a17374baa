// Package gcs uploads crawl reports to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
)

const contentTypeCSV = "text/csv"

// Config captures the bucket and object prefix for uploaded reports.
type Config struct {
	Bucket string
	Prefix string
}

// Sink writes one CSV object per session to a configured bucket.
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

var _ report.Sink = (*Sink)(nil)

// New creates a GCS-backed report sink.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// ObjectName returns the object path used for sessionID.
func (s *Sink) ObjectName(sessionID string) string {
	name := sessionID + ".csv"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Write renders records as CSV and uploads them. Sessions without records
// produce no object.
func (s *Sink) Write(ctx context.Context, meta report.Meta, records []crawler.ErrorRecord) error {
	if len(records) == 0 {
		s.logger.Info("no error pages to save", zap.String("session_id", meta.SessionID))
		return nil
	}
	if strings.TrimSpace(meta.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, records); err != nil {
		return err
	}
	uri, err := s.putObject(ctx, s.ObjectName(meta.SessionID), contentTypeCSV, &buf)
	if err != nil {
		return err
	}
	s.logger.Info("error report uploaded",
		zap.String("session_id", meta.SessionID),
		zap.String("uri", uri),
		zap.Int("records", len(records)),
	)
	return nil
}

func (s *Sink) putObject(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

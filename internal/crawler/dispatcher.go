package crawler

import (
	"context"
	"mime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// dispatcher runs the worker pool for one session.
type dispatcher struct {
	sessionID string
	origin    string
	cfg       Config
	frontier  *Frontier
	collector *Collector
	fetcher   Fetcher
	observer  Observer
	logger    *zap.Logger

	notifyMu sync.Mutex
}

// run blocks until the frontier is exhausted or ctx is cancelled.
func (d *dispatcher) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Concurrency; i++ {
		logger := d.logger.With(zap.Int("worker", i))
		g.Go(func() error {
			return d.work(gctx, logger)
		})
	}
	return g.Wait()
}

func (d *dispatcher) work(ctx context.Context, logger *zap.Logger) error {
	for {
		entry, ok, err := d.frontier.Dequeue(ctx, d.cfg.DequeueWait)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		d.process(ctx, entry, logger)
	}
}

func (d *dispatcher) process(ctx context.Context, entry Entry, logger *zap.Logger) {
	defer d.frontier.Done()

	if ctx.Err() != nil {
		return
	}
	if !InScope(entry.URL, d.origin) {
		return
	}
	if !d.admit(entry.URL) {
		return
	}

	page, err := d.fetcher.FetchPage(ctx, entry.URL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("page fetch failed", zap.String("url", entry.URL), zap.Error(err))
		d.observer.OnDiagnostic(d.sessionID, Diagnostic{
			Stage:    StagePageFetch,
			URL:      entry.URL,
			Referrer: entry.Referrer,
			Err:      err,
		})
		return
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		d.handleBadPage(entry, page.StatusCode, logger)
		return
	}

	base := page.FinalURL
	if base == "" {
		base = entry.URL
	}
	if !InScope(base, d.origin) || !isHTML(page.ContentType) {
		return
	}

	nav, resources := Extract(base, page.Body)
	for _, res := range resources {
		if ctx.Err() != nil {
			return
		}
		if !InScope(res.URL, d.origin) {
			continue
		}
		d.checkResource(ctx, entry.URL, res, logger)
	}
	for _, link := range nav {
		if InScope(link, d.origin) {
			d.frontier.Enqueue(link, entry.URL)
		}
	}
}

func (d *dispatcher) handleBadPage(entry Entry, code int, logger *zap.Logger) {
	logger.Debug("page returned non-success status", zap.String("url", entry.URL), zap.Int("status", code))
	d.observer.OnDiagnostic(d.sessionID, Diagnostic{
		Stage:      StagePageStatus,
		URL:        entry.URL,
		Referrer:   entry.Referrer,
		StatusCode: code,
	})
	if !d.cfg.ReportBrokenPages || entry.Referrer == "" || !IsErrorStatus(code) {
		return
	}
	d.record(ErrorRecord{PageURL: entry.Referrer, ResourceURL: entry.URL, ErrorCode: code})
}

func (d *dispatcher) checkResource(ctx context.Context, pageURL string, res ResourceLink, logger *zap.Logger) {
	code, err := d.fetcher.CheckResource(ctx, res.URL)
	if err != nil && ctx.Err() != nil {
		return
	}
	result := ClassifyCheck(code, err)
	d.observer.OnResourceChecked(d.sessionID, ResourceCheck{PageURL: pageURL, Resource: res, Result: result})

	switch result.Outcome {
	case OutcomeHTTPError:
		d.record(ErrorRecord{PageURL: pageURL, ResourceURL: res.URL, ErrorCode: result.StatusCode})
	case OutcomeUnreachable:
		logger.Debug("resource unreachable", zap.String("url", res.URL), zap.String("page", pageURL), zap.Error(err))
		d.observer.OnDiagnostic(d.sessionID, Diagnostic{
			Stage:    StageResourceCheck,
			URL:      res.URL,
			Referrer: pageURL,
			Err:      err,
		})
	}
}

func (d *dispatcher) record(rec ErrorRecord) {
	d.collector.Record(rec)
	d.observer.OnError(d.sessionID, rec)
}

// admit claims url and reports the resulting visited count. Admission and
// notification share notifyMu so every dispatch is reported exactly once
// with strictly increasing counts.
func (d *dispatcher) admit(url string) bool {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	count, ok := d.frontier.TryAdmit(url)
	if !ok {
		return false
	}
	d.observer.OnProgress(d.sessionID, Progress{URL: url, Visited: count, PageLimit: d.cfg.PageLimit})
	return true
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

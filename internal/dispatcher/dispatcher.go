// Package dispatcher launches crawl sessions, tracks them, and hands each
// finished session's error snapshot to the report sinks.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
	"github.com/JakeFAU/brokenlinks/internal/storage/memory"
)

const defaultReportTimeout = 30 * time.Second

// ErrShuttingDown is returned by Start once Shutdown has begun.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Config holds the session defaults applied to every request.
type Config struct {
	Crawl         crawler.Config
	ReportTimeout time.Duration
}

// Request describes one crawl to start. Zero limits use the configured defaults.
type Request struct {
	SeedURL     string `json:"seed_url"`
	PageLimit   int    `json:"page_limit,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

// Dispatcher owns every session started through it. Sessions run on a
// context that outlives the request that created them and ends at Shutdown.
type Dispatcher struct {
	cfg      Config
	fetcher  crawler.Fetcher
	sessions *memory.SessionStore
	sink     report.Sink
	opts     []crawler.Option
	logger   *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	reports sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher. sink may be nil when no reports are wanted.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	sessions *memory.SessionStore,
	sink report.Sink,
	logger *zap.Logger,
	opts ...crawler.Option,
) *Dispatcher {
	if sessions == nil {
		sessions = memory.NewSessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = defaultReportTimeout
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:      cfg,
		fetcher:  fetcher,
		sessions: sessions,
		sink:     sink,
		opts:     append([]crawler.Option{crawler.WithLogger(logger)}, opts...),
		logger:   logger,
		baseCtx:  ctx,
		stop:     stop,
	}
}

// Start validates req, starts a session, and registers it.
func (d *Dispatcher) Start(req Request) (*crawler.Session, error) {
	cfg := d.cfg.Crawl
	if req.PageLimit != 0 {
		cfg.PageLimit = req.PageLimit
	}
	if req.Concurrency != 0 {
		cfg.Concurrency = req.Concurrency
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrShuttingDown
	}
	sess, err := crawler.StartCrawlWithConfig(d.baseCtx, req.SeedURL, cfg, d.fetcher, d.opts...)
	if err != nil {
		return nil, fmt.Errorf("start crawl: %w", err)
	}
	if err := d.sessions.Add(sess); err != nil {
		_ = sess.Cancel()
		return nil, fmt.Errorf("register session: %w", err)
	}
	d.reports.Add(1)
	go d.finalize(sess)
	return sess, nil
}

// Get returns a tracked session.
func (d *Dispatcher) Get(id string) (*crawler.Session, error) {
	sess, err := d.sessions.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// Cancel requests cancellation of a tracked session.
func (d *Dispatcher) Cancel(id string) error {
	sess, err := d.Get(id)
	if err != nil {
		return err
	}
	if err := crawler.CancelCrawl(sess); err != nil {
		return fmt.Errorf("cancel session %s: %w", id, err)
	}
	return nil
}

// List returns a snapshot of every tracked session.
func (d *Dispatcher) List() []crawler.Info {
	return d.sessions.List()
}

// Shutdown cancels running sessions and waits for their reports or ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	running := d.sessions.Running()
	if len(running) > 0 {
		d.logger.Info("cancelling running sessions", zap.Int("count", len(running)))
	}
	d.stop()

	done := make(chan struct{})
	go func() {
		d.reports.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown wait: %w", ctx.Err())
	}
}

func (d *Dispatcher) finalize(sess *crawler.Session) {
	defer d.reports.Done()
	<-sess.Done()

	if d.sink == nil {
		return
	}
	info := sess.Info()
	logger := d.logger.With(zap.String("session_id", info.ID))

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ReportTimeout)
	defer cancel()
	if err := d.sink.Write(ctx, report.MetaFromInfo(info), sess.Snapshot()); err != nil {
		level := zap.ErrorLevel
		if errors.Is(err, context.DeadlineExceeded) {
			level = zap.WarnLevel
		}
		logger.Log(level, "report write failed", zap.Error(err))
		return
	}
	logger.Debug("report written", zap.String("status", string(info.Status)), zap.Int("broken", info.Broken))
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session coordinates one crawl at a time: Idle -> Running -> Completed or
// Cancelled. A terminal session may be started again with fresh state.
type Session struct {
	cfg      Config
	fetcher  Fetcher
	observer Observer
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger

	mu              sync.Mutex
	id              string
	seed            string
	origin          string
	status          Status
	frontier        *Frontier
	collector       *Collector
	cancel          context.CancelFunc
	cancelRequested bool
	done            chan struct{}
	startedAt       time.Time
	finishedAt      time.Time
}

// Option customizes a Session.
type Option func(*Session)

// WithObserver sets the notification target.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator sets the session ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithClock sets the clock used for start and finish timestamps.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewSession builds an idle session.
func NewSession(cfg Config, fetcher Fetcher, opts ...Option) (*Session, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		fetcher:  fetcher,
		observer: NopObserver{},
		ids:      uuidIDs{},
		clock:    utcClock{},
		logger:   zap.NewNop(),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	done := make(chan struct{})
	close(done)
	s.done = done
	return s, nil
}

// StartCrawl creates a session and starts crawling seedURL. A zero pageLimit
// or concurrency falls back to the engine default. No session is returned
// when the seed is invalid.
func StartCrawl(
	ctx context.Context,
	seedURL string,
	pageLimit int,
	concurrency int,
	fetcher Fetcher,
	opts ...Option,
) (*Session, error) {
	cfg := DefaultConfig()
	cfg.PageLimit = pageLimit
	cfg.Concurrency = concurrency
	return StartCrawlWithConfig(ctx, seedURL, cfg, fetcher, opts...)
}

// StartCrawlWithConfig is StartCrawl with a full engine Config.
func StartCrawlWithConfig(ctx context.Context, seedURL string, cfg Config, fetcher Fetcher, opts ...Option) (*Session, error) {
	s, err := NewSession(cfg, fetcher, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx, seedURL); err != nil {
		return nil, err
	}
	return s, nil
}

// CancelCrawl requests cooperative cancellation of s.
func CancelCrawl(s *Session) error {
	if s == nil {
		return ErrNotRunning
	}
	return s.Cancel()
}

// Start seeds a fresh frontier and collector and launches the workers.
// Cancelling ctx cancels the crawl.
func (s *Session) Start(ctx context.Context, seedURL string) error {
	seed, err := validateSeed(seedURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status == StatusRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("generate session id: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	seedStr := seed.String()
	s.id = id
	s.seed = seedStr
	s.origin = strings.ToLower(seed.Hostname())
	s.frontier = NewFrontier(s.cfg.PageLimit)
	s.collector = NewCollector()
	s.frontier.Enqueue(seedStr, "")
	s.status = StatusRunning
	s.cancel = cancel
	s.cancelRequested = false
	s.done = make(chan struct{})
	s.startedAt = s.clock.Now()
	s.finishedAt = time.Time{}

	logger := s.logger.With(zap.String("session_id", id))
	d := &dispatcher{
		sessionID: id,
		origin:    s.origin,
		cfg:       s.cfg,
		frontier:  s.frontier,
		collector: s.collector,
		fetcher:   s.fetcher,
		observer:  s.observer,
		logger:    logger,
	}
	done := s.done
	s.mu.Unlock()

	logger.Info("crawl started",
		zap.String("seed", seedStr),
		zap.Int("page_limit", s.cfg.PageLimit),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
	s.observer.OnStatus(id, StatusRunning)
	go s.run(runCtx, d, done, logger)
	return nil
}

func (s *Session) run(ctx context.Context, d *dispatcher, done chan struct{}, logger *zap.Logger) {
	err := d.run(ctx)

	s.mu.Lock()
	status := StatusCompleted
	if s.cancelRequested || ctx.Err() != nil {
		status = StatusCancelled
	}
	s.status = status
	s.finishedAt = s.clock.Now()
	s.cancel()
	visited := d.frontier.VisitedCount()
	broken := d.collector.Len()
	s.mu.Unlock()

	if err != nil && status != StatusCancelled {
		logger.Warn("crawl workers exited with error", zap.Error(err))
	}
	logger.Info("crawl finished",
		zap.String("status", string(status)),
		zap.Int("visited", visited),
		zap.Int("broken", broken),
	)
	s.observer.OnStatus(d.sessionID, status)
	close(done)
}

// Cancel signals every worker to stop. The session becomes Cancelled once
// all workers have exited.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return ErrNotRunning
	}
	s.cancelRequested = true
	s.cancel()
	return nil
}

// Done is closed when the current run reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current run terminates or ctx is done.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	select {
	case <-s.Done():
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), fmt.Errorf("wait for crawl: %w", ctx.Err())
	}
}

// ID returns the current run's identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// VisitedCount returns the number of pages admitted so far.
func (s *Session) VisitedCount() int {
	s.mu.Lock()
	f := s.frontier
	s.mu.Unlock()
	if f == nil {
		return 0
	}
	return f.VisitedCount()
}

// Snapshot returns the broken resources recorded so far, in append order.
func (s *Session) Snapshot() []ErrorRecord {
	s.mu.Lock()
	c := s.collector
	s.mu.Unlock()
	if c == nil {
		return []ErrorRecord{}
	}
	return c.Snapshot()
}

// Info returns a point-in-time view of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.id,
		SeedURL:   s.seed,
		Origin:    s.origin,
		Status:    s.status,
		PageLimit: s.cfg.PageLimit,
	}
	if s.frontier != nil {
		info.Visited = s.frontier.VisitedCount()
	}
	if s.collector != nil {
		info.Broken = s.collector.Len()
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		info.StartedAt = &started
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		info.FinishedAt = &finished
	}
	return info
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type uuidIDs struct{}

func (uuidIDs) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

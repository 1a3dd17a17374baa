package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/brokenlinks/internal/progress"
)

const (
	resultCompleted = "completed"
	resultCancelled = "cancelled"
)

// PrometheusSink exports crawl progress as Prometheus metrics. It owns the
// collectors for session lifecycle, page visits, and resource checks.
type PrometheusSink struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionsRunning  prometheus.Gauge
	sessionRuntime   *prometheus.HistogramVec

	pagesVisited    prometheus.Counter
	resourceChecks  *prometheus.CounterVec
	brokenResources *prometheus.CounterVec
	diagnostics     prometheus.Counter

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokenlinks_sessions_started_total",
			Help: "Total crawl sessions that have started.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokenlinks_sessions_finished_total",
			Help: "Total crawl sessions finished partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brokenlinks_sessions_running",
			Help: "Current number of running crawl sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokenlinks_session_runtime_seconds",
			Help:    "Wall time per finished crawl session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		pagesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokenlinks_pages_visited_total",
			Help: "Pages admitted for fetching across all sessions.",
		}),
		resourceChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokenlinks_resource_checks_total",
			Help: "Resource HEAD checks partitioned by status class.",
		}, []string{"status_class"}),
		brokenResources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokenlinks_broken_resources_total",
			Help: "Broken resources recorded partitioned by status class.",
		}, []string{"status_class"}),
		diagnostics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokenlinks_diagnostics_total",
			Help: "Page and resource failures that did not produce an error record.",
		}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionsRunning,
		s.sessionRuntime,
		s.pagesVisited,
		s.resourceChecks,
		s.brokenResources,
		s.diagnostics,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.sessionsStarted.Inc()
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
	case progress.StageCrawlDone:
		s.finish(evt, resultCompleted)
	case progress.StageCrawlCancelled:
		s.finish(evt, resultCancelled)
	case progress.StagePageVisit:
		s.pagesVisited.Inc()
	case progress.StageResourceCheck:
		s.resourceChecks.WithLabelValues(statusLabel(evt)).Inc()
	case progress.StageBrokenResource:
		s.brokenResources.WithLabelValues(statusLabel(evt)).Inc()
	case progress.StageDiagnostic:
		s.diagnostics.Inc()
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.sessionsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.SessionID) {
		s.sessionsRunning.Dec()
	}
}

func statusLabel(evt progress.Event) string {
	if evt.StatusClass == "" {
		return string(progress.StatusOther)
	}
	return string(evt.StatusClass)
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[[16]byte]struct{})}
}

func (t *sessionTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

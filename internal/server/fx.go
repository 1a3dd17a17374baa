// Package server provides the application composition root.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/api"
	"github.com/JakeFAU/brokenlinks/internal/clock/system"
	"github.com/JakeFAU/brokenlinks/internal/config"
	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/brokenlinks/internal/fetcher/colly"
	"github.com/JakeFAU/brokenlinks/internal/id/uuid"
	"github.com/JakeFAU/brokenlinks/internal/logging"
	"github.com/JakeFAU/brokenlinks/internal/metrics"
	"github.com/JakeFAU/brokenlinks/internal/progress"
	progresssinks "github.com/JakeFAU/brokenlinks/internal/progress/sinks"
	"github.com/JakeFAU/brokenlinks/internal/report"
	gcsreport "github.com/JakeFAU/brokenlinks/internal/report/gcs"
	pgreport "github.com/JakeFAU/brokenlinks/internal/report/postgres"
	pubsubreport "github.com/JakeFAU/brokenlinks/internal/report/pubsub"
	"github.com/JakeFAU/brokenlinks/internal/storage/memory"
)

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	progressHub *progress.Hub
	dispatch    *dispatcher.Dispatcher
	apiServer   *api.Server
	fetcher     crawler.Fetcher
	reports     *memory.ReportStore

	storage     *storage.Client
	pgSink      *pgreport.Sink
	pubsubClose func() error
}

// Option customizes Build.
type Option func(*App)

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) {
		a.fetcher = f
	}
}

// Build creates the application's dependencies. A nil logger is built from
// cfg.Logging and installed as the global zap logger.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		var err error
		logger, err = newLogger(cfg)
		if err != nil {
			return nil, err
		}
	}
	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.logger.Info("building application dependencies", zap.Int("server_port", cfg.Server.Port))

	sink, err := setupReports(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	observer, err := setupProgress(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	if app.fetcher == nil {
		app.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:    cfg.Crawler.UserAgent,
			Timeout:      cfg.RequestTimeout(),
			MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
		})
		app.logger.Info("using colly fetcher",
			zap.String("user_agent", cfg.Crawler.UserAgent),
			zap.Duration("request_timeout", cfg.RequestTimeout()),
		)
	}

	app.dispatch = dispatcher.New(
		dispatcher.Config{Crawl: cfg.CrawlSettings()},
		app.fetcher,
		memory.NewSessionStore(),
		sink,
		app.logger.Named("dispatcher"),
		crawler.WithObserver(observer),
		crawler.WithIDGenerator(uuid.New()),
		crawler.WithClock(system.New()),
	)

	httpMetrics, err := metrics.NewHTTP(app.registry)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("http metrics init failed: %w", err)
	}
	app.apiServer = api.NewServer(app.dispatch, app.logger.Named("api"), api.Options{
		Metrics:    metrics.Handler(app.registry),
		Reports:    app.reports,
		Middleware: []func(http.Handler) http.Handler{httpMetrics.Middleware},
	})
	return app, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Dispatcher exposes the session dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatch
}

// Run serves the API and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Crawl runs a single session to termination. Cancelling ctx or receiving
// SIGINT/SIGTERM cancels the crawl; the partial report is still written.
func (a *App) Crawl(ctx context.Context, req dispatcher.Request) (crawler.Info, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := a.dispatch.Start(req)
	if err != nil {
		return crawler.Info{}, err
	}
	select {
	case <-sess.Done():
	case <-ctx.Done():
		a.logger.Info("cancelling crawl", zap.String("session_id", sess.ID()))
		if err := crawler.CancelCrawl(sess); err != nil && !errors.Is(err, crawler.ErrNotRunning) {
			return sess.Info(), fmt.Errorf("cancel crawl: %w", err)
		}
		<-sess.Done()
	}
	return sess.Info(), nil
}

// Close stops running sessions, flushes reports and progress, and releases
// clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.dispatch != nil {
		if err := a.dispatch.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeInfrastructure(ctx)
	a.closeObservability()
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubClose != nil {
		if err := a.pubsubClose(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgSink != nil {
		a.pgSink.Close()
	}
}

func (a *App) closeObservability() {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func setupReports(ctx context.Context, app *App) (report.Sink, error) {
	cfg := app.cfg.Report
	app.reports = memory.NewReportStore()
	sinks := report.MultiSink{app.reports}

	if cfg.File.Enabled {
		sinks = append(sinks, report.NewFileSink(cfg.File.Path, app.logger.Named("report_file")))
		app.logger.Debug("added file report sink", zap.String("path", cfg.File.Path))
	}
	if cfg.File.Dir != "" {
		sinks = append(sinks, report.NewSessionFileSink(cfg.File.Dir, app.logger.Named("report_file")))
		app.logger.Debug("added per-session file report sink", zap.String("dir", cfg.File.Dir))
	}

	if cfg.GCS.Bucket != "" {
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		gcsSink, err := gcsreport.New(app.storage, gcsreport.Config{
			Bucket: cfg.GCS.Bucket,
			Prefix: cfg.GCS.Prefix,
		}, app.logger.Named("report_gcs"))
		if err != nil {
			return nil, fmt.Errorf("gcs report sink init failed: %w", err)
		}
		sinks = append(sinks, gcsSink)
		app.logger.Info("added GCS report sink", zap.String("bucket", cfg.GCS.Bucket))
	}

	if cfg.Postgres.DSN != "" {
		var err error
		app.pgSink, err = pgreport.NewSink(ctx, pgreport.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		}, app.logger.Named("report_postgres"))
		if err != nil {
			return nil, fmt.Errorf("postgres report sink init failed: %w", err)
		}
		if cfg.Postgres.CreateSchema {
			if err := app.pgSink.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("postgres schema init failed: %w", err)
			}
		}
		sinks = append(sinks, app.pgSink)
		app.logger.Info("added postgres report sink", zap.String("table", cfg.Postgres.Table))
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicID != "" {
		notifier, closeFn, err := pubsubreport.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, app.logger.Named("report_pubsub"))
		if err != nil {
			return nil, fmt.Errorf("pubsub notifier init failed: %w", err)
		}
		app.pubsubClose = closeFn
		sinks = append(sinks, notifier)
		app.logger.Info("added pubsub notifier",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicID),
		)
	}

	if len(sinks) == 1 {
		app.logger.Warn("no report sinks configured; session reports are only available via the API")
	}
	return sinks, nil
}

func setupProgress(ctx context.Context, app *App) (crawler.Observer, error) {
	promSink, err := progresssinks.NewPrometheusSink(app.registry)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.BatchSize,
		MaxBatchWait:   time.Duration(app.cfg.Progress.BatchWaitMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(app.logger.Named("progress")),
		promSink,
	)
	app.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return progress.NewObserver(app.progressHub, system.New()), nil
}

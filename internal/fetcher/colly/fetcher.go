// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "brokenlinks/1.0"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// Transport overrides the pooled HTTP transport (tests).
	Transport http.RoundTripper
}

// Fetcher implements crawler.Fetcher using the Colly collector. GETs go
// through Visit and resource checks through Head. Every call runs on a clone
// of one base collector so the HTTP client and its connection pool are shared.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// FetchPage issues a GET for rawURL. Responses with any status code are
// returned as pages; only transport failures are errors.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (crawler.Page, error) {
	var (
		page     crawler.Page
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, rawURL, &page, &fetchErr)

	if err := runCollector(ctx, rawURL, collector.Visit); err != nil {
		return crawler.Page{}, err
	}
	if fetchErr != nil {
		return crawler.Page{}, classify(ctx, rawURL, fetchErr)
	}
	return page, nil
}

// CheckResource issues a HEAD for rawURL and returns the status code.
func (f *Fetcher) CheckResource(ctx context.Context, rawURL string) (int, error) {
	var (
		page     crawler.Page
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, rawURL, &page, &fetchErr)

	if err := runCollector(ctx, rawURL, collector.Head); err != nil {
		return 0, err
	}
	if fetchErr != nil {
		return 0, classify(ctx, rawURL, fetchErr)
	}
	return page.StatusCode, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	page *crawler.Page,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		finalURL := rawURL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*page = crawler.Page{
			URL:         rawURL,
			FinalURL:    finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, rawURL string, do func(string) error) error {
	if err := ctx.Err(); err != nil {
		return classify(ctx, rawURL, err)
	}
	if err := do(rawURL); err != nil {
		return classify(ctx, rawURL, err)
	}
	return nil
}

// classify maps a transport error onto a crawler.FetchError kind.
func classify(ctx context.Context, rawURL string, err error) error {
	kind := crawler.FailureNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		kind = crawler.FailureCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = crawler.FailureTimeout
	}
	return &crawler.FetchError{Kind: kind, URL: rawURL, Err: fmt.Errorf("colly: %w", err)}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}

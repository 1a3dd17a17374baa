package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitTerminal(t *testing.T, s *Session) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := s.Wait(ctx)
	require.NoError(t, err)
	return status
}

func TestScenarioBrokenImageAttributedToPage(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.pages["http://x.test/"] = `<img src="/a.png"><a href="/b">b</a>`
	site.pages["http://x.test/b"] = `<p>no resources</p>`
	site.heads["http://x.test/a.png"] = 404

	obs := &recordingObserver{}
	s, err := StartCrawl(context.Background(), "http://x.test/", 100, 4, site, WithObserver(obs), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Equal(t, []ErrorRecord{{PageURL: "http://x.test/", ResourceURL: "http://x.test/a.png", ErrorCode: 404}}, s.Snapshot())
	require.Equal(t, 2, s.VisitedCount())
	require.Equal(t, s.Snapshot(), obs.Errors())
	require.Equal(t, []Status{StatusRunning, StatusCompleted}, obs.Statuses())
}

func TestScenarioPageLimitOne(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	var links strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&links, `<a href="/p%d">p</a>`, i)
		site.pages[fmt.Sprintf("http://x.test/p%d", i)] = "<p>leaf</p>"
	}
	site.pages["http://x.test/"] = links.String()

	s, err := StartCrawl(context.Background(), "http://x.test/", 1, 3, site)
	require.NoError(t, err)

	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Equal(t, 1, s.VisitedCount())
	require.Equal(t, []string{"http://x.test/"}, site.Fetched())
}

func TestScenarioCrossOriginLinkNeverVisited(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.pages["http://x.test/"] = `<a href="http://other.test/x">x</a><a href="http://sub.x.test/">sub</a>` +
		`<img src="http://other.test/missing.png">`
	site.heads["http://other.test/missing.png"] = 404

	s, err := StartCrawl(context.Background(), "http://x.test/", 10, 2, site)
	require.NoError(t, err)

	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Equal(t, []string{"http://x.test/"}, site.Fetched())
	require.Empty(t, site.Checked())
	require.Empty(t, s.Snapshot())
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("FetchPage", mock.Anything, "http://x.test/").Return(Page{
		URL:         "http://x.test/",
		FinalURL:    "http://x.test/",
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(`<img src="/ok.png"><img src="/gone.png"><script src="/down.js"></script><link rel="stylesheet" href="/err.css">`),
	}, nil)
	fetcher.On("CheckResource", mock.Anything, "http://x.test/ok.png").Return(200, nil)
	fetcher.On("CheckResource", mock.Anything, "http://x.test/gone.png").Return(404, nil)
	fetcher.On("CheckResource", mock.Anything, "http://x.test/down.js").
		Return(0, &FetchError{Kind: FailureNetwork, URL: "http://x.test/down.js", Err: errConnRefused})
	fetcher.On("CheckResource", mock.Anything, "http://x.test/err.css").Return(503, nil)

	obs := &recordingObserver{}
	s, err := StartCrawl(context.Background(), "http://x.test/", 10, 1, fetcher, WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, waitTerminal(t, s))

	require.ElementsMatch(t, []ErrorRecord{
		{PageURL: "http://x.test/", ResourceURL: "http://x.test/gone.png", ErrorCode: 404},
		{PageURL: "http://x.test/", ResourceURL: "http://x.test/err.css", ErrorCode: 503},
	}, s.Snapshot())

	diags := obs.Diagnostics()
	require.Len(t, diags, 1)
	require.Equal(t, StageResourceCheck, diags[0].Stage)
	require.Equal(t, "http://x.test/down.js", diags[0].URL)
	require.Equal(t, FailureNetwork, FailureKindOf(diags[0].Err))
	fetcher.AssertExpectations(t)
}

func TestPageFailuresDoNotStopCrawl(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("FetchPage", mock.Anything, "http://x.test/").Return(Page{
		URL:         "http://x.test/",
		FinalURL:    "http://x.test/",
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(`<a href="/timeout">t</a><a href="/missing">m</a><a href="/doc.pdf">pdf</a><a href="/ok">ok</a>`),
	}, nil)
	fetcher.On("FetchPage", mock.Anything, "http://x.test/timeout").
		Return(Page{}, &FetchError{Kind: FailureTimeout, URL: "http://x.test/timeout", Err: context.DeadlineExceeded})
	fetcher.On("FetchPage", mock.Anything, "http://x.test/missing").
		Return(Page{URL: "http://x.test/missing", StatusCode: 404, ContentType: "text/html"}, nil)
	fetcher.On("FetchPage", mock.Anything, "http://x.test/doc.pdf").
		Return(Page{URL: "http://x.test/doc.pdf", StatusCode: 200, ContentType: "application/pdf", Body: []byte(`<img src="/never.png">`)}, nil)
	fetcher.On("FetchPage", mock.Anything, "http://x.test/ok").
		Return(Page{URL: "http://x.test/ok", StatusCode: 200, ContentType: "text/html", Body: []byte(`<img src="/x.png">`)}, nil)
	fetcher.On("CheckResource", mock.Anything, "http://x.test/x.png").Return(410, nil)

	obs := &recordingObserver{}
	s, err := StartCrawl(context.Background(), "http://x.test/", 10, 2, fetcher, WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, waitTerminal(t, s))

	require.Equal(t, 5, s.VisitedCount())
	require.Equal(t, []ErrorRecord{{PageURL: "http://x.test/ok", ResourceURL: "http://x.test/x.png", ErrorCode: 410}}, s.Snapshot())

	stages := map[DiagnosticStage]int{}
	for _, d := range obs.Diagnostics() {
		stages[d.Stage]++
	}
	require.Equal(t, map[DiagnosticStage]int{StagePageFetch: 1, StagePageStatus: 1}, stages)
	fetcher.AssertNotCalled(t, "CheckResource", mock.Anything, "http://x.test/never.png")
}

func TestReportBrokenPagesAttributesReferrer(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.pages["http://x.test/"] = `<a href="/gone">gone</a>`

	cfg := DefaultConfig()
	cfg.PageLimit = 10
	cfg.Concurrency = 2
	cfg.ReportBrokenPages = true
	s, err := StartCrawlWithConfig(context.Background(), "http://x.test/", cfg, site)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Equal(t, []ErrorRecord{{PageURL: "http://x.test/", ResourceURL: "http://x.test/gone", ErrorCode: 404}}, s.Snapshot())
}

func TestBoundedConcurrencyAndProgress(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.delay = 3 * time.Millisecond
	var links strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&links, `<a href="/p%d">p</a>`, i)
		site.pages[fmt.Sprintf("http://x.test/p%d", i)] = fmt.Sprintf(`<img src="/i%d.png"><img src="/shared.png"><a href="/">home</a>`, i)
	}
	site.pages["http://x.test/"] = links.String()

	obs := &recordingObserver{}
	s, err := StartCrawl(context.Background(), "http://x.test/", 20, 3, site, WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, waitTerminal(t, s))

	require.LessOrEqual(t, site.maxFlight.Load(), int32(3))
	require.GreaterOrEqual(t, site.maxFlight.Load(), int32(2))
	require.Equal(t, 20, s.VisitedCount())

	progress := obs.Progress()
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		require.Greater(t, progress[i].Visited, progress[i-1].Visited)
	}
	require.LessOrEqual(t, progress[len(progress)-1].Visited, 20)
	require.Equal(t, 20, progress[0].PageLimit)
}

func TestEveryDispatchReportsProgress(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	var links strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&links, `<a href="/p%d">p</a>`, i)
		site.pages[fmt.Sprintf("http://x.test/p%d", i)] = `<a href="/">home</a>`
	}
	site.pages["http://x.test/"] = links.String()

	obs := &recordingObserver{}
	s, err := StartCrawl(context.Background(), "http://x.test/", 10000, 10, site, WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Equal(t, 501, s.VisitedCount())

	progress := obs.Progress()
	require.Len(t, progress, s.VisitedCount())
	for i, p := range progress {
		require.Equal(t, i+1, p.Visited)
	}
}

// blockingFetcher serves a seed linking to many pages whose fetches block
// until the request context is cancelled.
type blockingFetcher struct {
	links      int
	blocked    atomic.Int32
	aborted    atomic.Int32
	cancelled  atomic.Bool
	lateStarts atomic.Int32
}

func (f *blockingFetcher) FetchPage(ctx context.Context, rawURL string) (Page, error) {
	if f.cancelled.Load() {
		f.lateStarts.Add(1)
	}
	if rawURL == "http://x.test/" {
		var b strings.Builder
		for i := 0; i < f.links; i++ {
			fmt.Fprintf(&b, `<a href="/p%d">p</a>`, i)
		}
		return Page{URL: rawURL, StatusCode: 200, ContentType: "text/html", Body: []byte(b.String())}, nil
	}
	f.blocked.Add(1)
	<-ctx.Done()
	f.aborted.Add(1)
	return Page{}, &FetchError{Kind: FailureCancelled, URL: rawURL, Err: ctx.Err()}
}

func (f *blockingFetcher) CheckResource(context.Context, string) (int, error) {
	return 200, nil
}

func TestScenarioCancellationMidCrawl(t *testing.T) {
	t.Parallel()

	fetcher := &blockingFetcher{links: 50}
	obs := &recordingObserver{}
	s, err := StartCrawl(context.Background(), "http://x.test/", 1000, 4, fetcher, WithObserver(obs))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fetcher.blocked.Load() == 4
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StatusRunning, s.Status())

	fetcher.cancelled.Store(true)
	require.NoError(t, CancelCrawl(s))

	require.Equal(t, StatusCancelled, waitTerminal(t, s))
	require.Equal(t, int32(4), fetcher.aborted.Load())
	require.Zero(t, fetcher.lateStarts.Load())
	require.Equal(t, []Status{StatusRunning, StatusCancelled}, obs.Statuses())
	require.Empty(t, obs.Diagnostics())
	require.ErrorIs(t, s.Cancel(), ErrNotRunning)
}

func TestParentContextCancelsSession(t *testing.T) {
	t.Parallel()

	fetcher := &blockingFetcher{links: 3}
	ctx, cancel := context.WithCancel(context.Background())
	s, err := StartCrawl(ctx, "http://x.test/", 100, 2, fetcher)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fetcher.blocked.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.Equal(t, StatusCancelled, waitTerminal(t, s))
}

func TestStartCrawlInvalidSeed(t *testing.T) {
	t.Parallel()

	s, err := StartCrawl(context.Background(), "not a url", 10, 1, newSiteFetcher())
	require.ErrorIs(t, err, ErrInvalidSeed)
	require.Nil(t, s)
}

func TestSessionStateMachine(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.pages["http://x.test/"] = `<img src="/a.png">`
	site.heads["http://x.test/a.png"] = 500
	site.pages["http://y.test/"] = `<p>clean</p>`

	s, err := NewSession(Config{PageLimit: 5, Concurrency: 1}, site, WithIDGenerator(fixedIDs{id: "fixed"}))
	require.NoError(t, err)
	require.Equal(t, StatusIdle, s.Status())
	require.ErrorIs(t, s.Cancel(), ErrNotRunning)
	require.Empty(t, s.Snapshot())
	require.Zero(t, s.VisitedCount())

	require.NoError(t, s.Start(context.Background(), "http://x.test/"))
	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Len(t, s.Snapshot(), 1)
	require.Equal(t, "fixed", s.ID())

	info := s.Info()
	require.Equal(t, "x.test", info.Origin)
	require.Equal(t, 1, info.Broken)
	require.NotNil(t, info.StartedAt)
	require.NotNil(t, info.FinishedAt)

	require.NoError(t, s.Start(context.Background(), "http://y.test/"))
	require.Equal(t, StatusCompleted, waitTerminal(t, s))
	require.Empty(t, s.Snapshot())
	require.Equal(t, 1, s.VisitedCount())
}

func TestStartWhileRunning(t *testing.T) {
	t.Parallel()

	fetcher := &blockingFetcher{links: 2}
	s, err := NewSession(Config{PageLimit: 10, Concurrency: 1}, fetcher)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background(), "http://x.test/"))
	require.ErrorIs(t, s.Start(context.Background(), "http://x.test/"), ErrAlreadyRunning)
	require.NoError(t, s.Cancel())
	require.Equal(t, StatusCancelled, waitTerminal(t, s))
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSession(Config{}, nil)
	require.Error(t, err)

	_, err = NewSession(Config{PageLimit: -1}, newSiteFetcher())
	require.Error(t, err)

	s, err := NewSession(Config{}, newSiteFetcher())
	require.NoError(t, err)
	require.Equal(t, DefaultPageLimit, s.Info().PageLimit)
}

func TestClassifyCheck(t *testing.T) {
	t.Parallel()

	require.Equal(t, OutcomeOK, ClassifyCheck(200, nil).Outcome)
	require.Equal(t, OutcomeOK, ClassifyCheck(301, nil).Outcome)
	require.Equal(t, OutcomeHTTPError, ClassifyCheck(400, nil).Outcome)
	require.Equal(t, OutcomeHTTPError, ClassifyCheck(599, nil).Outcome)
	require.Equal(t, OutcomeOK, ClassifyCheck(600, nil).Outcome)
	require.Equal(t, OutcomeUnreachable, ClassifyCheck(0, errConnRefused).Outcome)
	require.Equal(t, "unreachable", OutcomeUnreachable.String())
}

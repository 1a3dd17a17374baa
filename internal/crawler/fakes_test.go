package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a testify mock of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchPage(ctx context.Context, rawURL string) (Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(Page), args.Error(1)
}

func (m *MockFetcher) CheckResource(ctx context.Context, rawURL string) (int, error) {
	args := m.Called(ctx, rawURL)
	return args.Int(0), args.Error(1)
}

// siteFetcher serves an in-memory site and tracks concurrency.
type siteFetcher struct {
	pages     map[string]string
	status    map[string]int
	heads     map[string]int
	headErrs  map[string]error
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32

	mu      sync.Mutex
	fetched []string
	checked []string
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{
		pages:    map[string]string{},
		status:   map[string]int{},
		heads:    map[string]int{},
		headErrs: map[string]error{},
	}
}

func (f *siteFetcher) enter() func() {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxFlight.Load()
		if n <= cur || f.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *siteFetcher) sleep(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
		return nil
	}
}

func (f *siteFetcher) FetchPage(ctx context.Context, rawURL string) (Page, error) {
	defer f.enter()()
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	f.mu.Unlock()
	if err := f.sleep(ctx); err != nil {
		return Page{}, &FetchError{Kind: FailureCancelled, URL: rawURL, Err: err}
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return Page{URL: rawURL, FinalURL: rawURL, StatusCode: 404, ContentType: "text/html"}, nil
	}
	code := 200
	if c, ok := f.status[rawURL]; ok {
		code = c
	}
	return Page{URL: rawURL, FinalURL: rawURL, StatusCode: code, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
}

func (f *siteFetcher) CheckResource(ctx context.Context, rawURL string) (int, error) {
	defer f.enter()()
	f.mu.Lock()
	f.checked = append(f.checked, rawURL)
	f.mu.Unlock()
	if err := f.sleep(ctx); err != nil {
		return 0, &FetchError{Kind: FailureCancelled, URL: rawURL, Err: err}
	}
	if err, ok := f.headErrs[rawURL]; ok {
		return 0, err
	}
	if code, ok := f.heads[rawURL]; ok {
		return code, nil
	}
	return 200, nil
}

func (f *siteFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *siteFetcher) Checked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.checked...)
}

// recordingObserver captures notifications.
type recordingObserver struct {
	mu          sync.Mutex
	statuses    []Status
	progress    []Progress
	errors      []ErrorRecord
	diagnostics []Diagnostic
	checks      []ResourceCheck
}

func (o *recordingObserver) OnStatus(_ string, s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *recordingObserver) OnProgress(_ string, p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, p)
}

func (o *recordingObserver) OnResourceChecked(_ string, c ResourceCheck) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks = append(o.checks, c)
}

func (o *recordingObserver) OnError(_ string, rec ErrorRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, rec)
}

func (o *recordingObserver) OnDiagnostic(_ string, d Diagnostic) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.diagnostics = append(o.diagnostics, d)
}

func (o *recordingObserver) Statuses() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Status(nil), o.statuses...)
}

func (o *recordingObserver) Progress() []Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Progress(nil), o.progress...)
}

func (o *recordingObserver) Errors() []ErrorRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ErrorRecord(nil), o.errors...)
}

func (o *recordingObserver) Diagnostics() []Diagnostic {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Diagnostic(nil), o.diagnostics...)
}

var errConnRefused = errors.New("connection refused")

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

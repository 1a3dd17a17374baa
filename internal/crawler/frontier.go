package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is a URL waiting in the frontier together with the page that linked to it.
type Entry struct {
	URL      string
	Referrer string
}

// Frontier is the FIFO work queue and visited set of a single session.
//
// A dequeued entry is in flight until Done is called. The frontier reports
// exhaustion only when the queue is empty and nothing is in flight, or when
// the page limit has been reached.
type Frontier struct {
	mu       sync.Mutex
	queue    []Entry
	head     int
	queued   map[string]struct{}
	visited  map[string]struct{}
	limit    int
	inFlight int
	changed  chan struct{}
}

// NewFrontier creates a Frontier admitting at most limit URLs.
func NewFrontier(limit int) *Frontier {
	return &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
		limit:   limit,
		changed: make(chan struct{}),
	}
}

// TryAdmit atomically marks url as visited and returns the visited count
// this admission produced. ok is true for exactly one caller per URL and
// false for everyone once the page limit is reached.
func (f *Frontier) TryAdmit(url string) (count int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.visited) >= f.limit {
		return len(f.visited), false
	}
	if _, seen := f.visited[url]; seen {
		return len(f.visited), false
	}
	f.visited[url] = struct{}{}
	if len(f.visited) >= f.limit {
		f.broadcastLocked()
	}
	return len(f.visited), true
}

// Enqueue appends url unless it is already visited, already queued, or the
// page limit has been reached. It reports whether the URL was queued.
func (f *Frontier) Enqueue(url, referrer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.visited) >= f.limit {
		return false
	}
	if _, ok := f.visited[url]; ok {
		return false
	}
	if _, ok := f.queued[url]; ok {
		return false
	}
	f.queued[url] = struct{}{}
	f.queue = append(f.queue, Entry{URL: url, Referrer: referrer})
	f.broadcastLocked()
	return true
}

// Dequeue pops the oldest entry. While the queue is empty but other work is
// in flight it waits, re-checking at least every wait interval. The boolean
// is false once the frontier is exhausted.
func (f *Frontier) Dequeue(ctx context.Context, wait time.Duration) (Entry, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Entry{}, false, fmt.Errorf("dequeue canceled: %w", err)
		}
		f.mu.Lock()
		if len(f.visited) >= f.limit {
			f.mu.Unlock()
			return Entry{}, false, nil
		}
		if f.head < len(f.queue) {
			e := f.queue[f.head]
			f.queue[f.head] = Entry{}
			f.head++
			if f.head == len(f.queue) {
				f.queue = f.queue[:0]
				f.head = 0
			}
			delete(f.queued, e.URL)
			f.inFlight++
			f.mu.Unlock()
			return e, true, nil
		}
		if f.inFlight == 0 {
			f.mu.Unlock()
			return Entry{}, false, nil
		}
		changed := f.changed
		f.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Entry{}, false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Done marks one dequeued entry as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.broadcastLocked()
}

// VisitedCount returns the number of admitted URLs.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Pending returns the number of queued entries.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) - f.head
}

func (f *Frontier) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

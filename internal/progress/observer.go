package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

// Observer adapts crawler.Observer callbacks into Events on an Emitter.
// Session IDs that are not UUIDs are mapped to a stable name-based UUID.
type Observer struct {
	emitter Emitter
	now     func() time.Time

	mu      sync.Mutex
	started map[string]time.Time
}

var _ crawler.Observer = (*Observer)(nil)

// NewObserver returns an Observer emitting to e. A nil clock uses UTC wall time.
func NewObserver(e Emitter, clock crawler.Clock) *Observer {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &Observer{emitter: e, now: now, started: make(map[string]time.Time)}
}

// OnStatus emits CRAWL_START, CRAWL_DONE, or CRAWL_CANCELLED.
func (o *Observer) OnStatus(sessionID string, status crawler.Status) {
	ts := o.now()
	evt := o.event(sessionID, ts)
	switch status {
	case crawler.StatusRunning:
		o.mu.Lock()
		o.started[sessionID] = ts
		o.mu.Unlock()
		evt.Stage = StageCrawlStart
	case crawler.StatusCompleted, crawler.StatusCancelled:
		evt.Stage = StageCrawlDone
		if status == crawler.StatusCancelled {
			evt.Stage = StageCrawlCancelled
		}
		o.mu.Lock()
		if start, ok := o.started[sessionID]; ok {
			if d := ts.Sub(start); d > 0 {
				evt.Dur = d
			}
			delete(o.started, sessionID)
		}
		o.mu.Unlock()
	default:
		return
	}
	o.emitter.Emit(evt)
}

// OnProgress emits PAGE_VISIT.
func (o *Observer) OnProgress(sessionID string, p crawler.Progress) {
	evt := o.event(sessionID, o.now())
	evt.Stage = StagePageVisit
	evt.URL = p.URL
	evt.Visited = int64(p.Visited)
	evt.PageLimit = int64(p.PageLimit)
	o.emitter.Emit(evt)
}

// OnResourceChecked emits RESOURCE_CHECK.
func (o *Observer) OnResourceChecked(sessionID string, check crawler.ResourceCheck) {
	evt := o.event(sessionID, o.now())
	evt.Stage = StageResourceCheck
	evt.URL = check.Resource.URL
	evt.Referrer = check.PageURL
	evt.StatusCode = check.Result.StatusCode
	evt.StatusClass = ClassifyStatus(check.Result.StatusCode)
	if check.Result.Outcome == crawler.OutcomeUnreachable {
		evt.StatusClass = StatusUnreachable
		if check.Result.Err != nil {
			evt.Note = check.Result.Err.Error()
		}
	}
	o.emitter.Emit(evt)
}

// OnError emits BROKEN_RESOURCE.
func (o *Observer) OnError(sessionID string, rec crawler.ErrorRecord) {
	evt := o.event(sessionID, o.now())
	evt.Stage = StageBrokenResource
	evt.URL = rec.ResourceURL
	evt.Referrer = rec.PageURL
	evt.StatusCode = rec.ErrorCode
	evt.StatusClass = ClassifyStatus(rec.ErrorCode)
	o.emitter.Emit(evt)
}

// OnDiagnostic emits DIAGNOSTIC.
func (o *Observer) OnDiagnostic(sessionID string, d crawler.Diagnostic) {
	evt := o.event(sessionID, o.now())
	evt.Stage = StageDiagnostic
	evt.URL = d.URL
	evt.Referrer = d.Referrer
	evt.StatusCode = d.StatusCode
	evt.Note = string(d.Stage)
	if d.Err != nil {
		evt.Note += ": " + d.Err.Error()
	}
	o.emitter.Emit(evt)
}

func (o *Observer) event(sessionID string, ts time.Time) Event {
	return Event{SessionID: sessionBytes(sessionID), TS: ts}
}

func sessionBytes(sessionID string) [16]byte {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(sessionID))
	}
	return UUIDToBytes(id)
}

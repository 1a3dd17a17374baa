package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/dispatcher"
	"github.com/JakeFAU/brokenlinks/internal/report"
	"github.com/JakeFAU/brokenlinks/internal/storage/memory"
)

const (
	defaultErrorsLimit = 500
	maxErrorsLimit     = 5000
)

// startCrawl handles POST /v1/crawls. It returns 202 {"session_id": ...},
// or 400 for malformed bodies, negative limits, and invalid seeds. It returns
// 503 once the dispatcher is shutting down.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req dispatcher.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PageLimit < 0 || req.Concurrency < 0 {
		writeError(w, http.StatusBadRequest, "page_limit and concurrency must be >= 0")
		return
	}
	sess, err := s.sessions.Start(req)
	if err != nil {
		if errors.Is(err, crawler.ErrInvalidSeed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, dispatcher.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("start crawl failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sess.ID()})
}

// listCrawls handles GET /v1/crawls.
func (s *Server) listCrawls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// getCrawl handles GET /v1/crawls/{session_id}.
func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Info()})
}

// cancelCrawl handles POST /v1/crawls/{session_id}/cancel. It returns 202
// when cancellation was requested, 404 for unknown sessions, and 409 when
// the session is not running.
func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	err := s.sessions.Cancel(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "status": "cancelling"})
	case errors.Is(err, memory.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, crawler.ErrNotRunning):
		writeError(w, http.StatusConflict, "session is not running")
	default:
		s.logger.Error("cancel crawl failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to cancel crawl")
	}
}

// listErrors handles GET /v1/crawls/{session_id}/errors?format=&limit=&offset=.
// The JSON form pages through the snapshot; format=csv returns the whole
// report as text/csv.
func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	records := sess.Snapshot()

	if r.URL.Query().Get("format") == "csv" {
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, records); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render csv")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.DefaultFileName+`"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil {
			s.logger.Warn("write csv failed", zap.Error(err))
		}
		return
	}

	limit, offset, err := parseLimitOffset(r, defaultErrorsLimit, maxErrorsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total := len(records)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID(),
		"status":     sess.Status(),
		"total":      total,
		"errors":     records[start:end],
	})
}

// getReport serves the CSV written when the session terminated. Sessions
// that are still running, or whose report is being written, get 409.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, meta, found := s.reports.Get(sess.ID())
	if !found {
		writeError(w, http.StatusConflict, "report not available yet")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("X-Crawl-Status", string(meta.Status))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write report failed", zap.String("session_id", meta.SessionID), zap.Error(err))
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*crawler.Session, bool) {
	id := chi.URLParam(r, "session_id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, memory.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		s.logger.Error("get session failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sess, true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

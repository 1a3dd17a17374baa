// Package memory keeps crawl sessions and reports in process memory.
package memory

import (
	"errors"
	"sync"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when a session ID is registered twice.
	ErrSessionExists = errors.New("session already exists")
)

// SessionStore indexes started sessions by ID.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*crawler.Session
	order    []string
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*crawler.Session)}
}

// Add registers a started session under its ID.
func (s *SessionStore) Add(sess *crawler.Session) error {
	if sess == nil || sess.ID() == "" {
		return errors.New("session has no id")
	}
	id := sess.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return ErrSessionExists
	}
	s.sessions[id] = sess
	s.order = append(s.order, id)
	return nil
}

// Get fetches a session by ID.
func (s *SessionStore) Get(id string) (*crawler.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns a snapshot of every session in registration order.
func (s *SessionStore) List() []crawler.Info {
	s.mu.RLock()
	sessions := make([]*crawler.Session, 0, len(s.order))
	for _, id := range s.order {
		sessions = append(sessions, s.sessions[id])
	}
	s.mu.RUnlock()

	out := make([]crawler.Info, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	return out
}

// Running returns the sessions whose status is running.
func (s *SessionStore) Running() []*crawler.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*crawler.Session
	for _, id := range s.order {
		if sess := s.sessions[id]; sess.Status() == crawler.StatusRunning {
			out = append(out, sess)
		}
	}
	return out
}

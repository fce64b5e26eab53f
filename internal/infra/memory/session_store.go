package memory

import (
	"context"
	"sync"
	"time"

	"mastery-quiz/internal/app"
	"mastery-quiz/internal/domain"
)

type sessionEntry struct {
	session   *app.Session
	expiresAt time.Time
}

// SessionStore is an in-memory implementation of app.SessionRepository.
// Entries older than ttl are treated as absent; ttl <= 0 disables expiry.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]sessionEntry
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return NewSessionStoreWithClock(ttl, time.Now)
}

// NewSessionStoreWithClock is test-only for deterministic expiry.
func NewSessionStoreWithClock(ttl time.Duration, now func() time.Time) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      now,
		sessions: make(map[string]sessionEntry),
	}
}

func (s *SessionStore) Save(_ context.Context, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	entry := sessionEntry{session: session.Clone()}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.sessions[session.ID] = entry
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

func (s *SessionStore) Take(_ context.Context, sessionID string) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return entry.session, nil
}

func (s *SessionStore) liveLocked(sessionID string) (sessionEntry, bool) {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return sessionEntry{}, false
	}
	if s.expired(entry) {
		delete(s.sessions, sessionID)
		return sessionEntry{}, false
	}
	return entry, true
}

func (s *SessionStore) pruneLocked() {
	for id, entry := range s.sessions {
		if s.expired(entry) {
			delete(s.sessions, id)
		}
	}
}

func (s *SessionStore) expired(entry sessionEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/clubllm/backend/internal/model/session"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Service keeps login sessions in process memory. Nothing survives a restart.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewService bootstraps the in-memory session store.
func NewService(ttl time.Duration) *Service {
	return &Service{
		sessions: make(map[string]session.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the lifetime given to new sessions.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Create provisions a session bound to a single user.
func (s *Service) Create(_ context.Context, userID, email string) (session.Session, error) {
	if userID == "" {
		return session.Session{}, ErrUserRequired
	}

	now := s.now().UTC()
	sess := session.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess, nil
}

// Get retrieves a live session. Expired entries are dropped on access.
func (s *Service) Get(_ context.Context, sessionID string) (session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	if sess.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return session.Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *Service) Delete(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Sweep drops every session expired at now and returns how many were removed.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

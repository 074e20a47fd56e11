// Package inmem provides an in-memory implementation of session.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/session/mongo).
package inmem

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"goa.design/ensemble/session"
)

// Store is an in-memory session.Store. It is safe for concurrent use and
// isolates stored snapshots from caller mutation by deep-copying the
// board tree on both Save and Load.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		now:      time.Now,
	}
}

// Save implements session.Store.
func (s *Store) Save(_ context.Context, sess session.Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := session.Session{
		ID:        sess.ID,
		Board:     cloneTree(sess.Board),
		TurnCount: sess.TurnCount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.sessions[sess.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.sessions[sess.ID] = stored
	return nil
}

// Load implements session.Store.
func (s *Store) Load(_ context.Context, sessionID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	stored.Board = cloneTree(stored.Board)
	return stored, nil
}

// Delete implements session.Store.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// List implements session.Store.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneTree(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneTree(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

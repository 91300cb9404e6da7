package session

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry tracks running sessions by ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s. It returns false when a session with the same ID is
// already running.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return false
	}
	r.sessions[s.ID()] = s
	return true
}

// Remove unregisters s if it is the session registered under its ID.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID()]; ok && cur == s {
		delete(r.sessions, s.ID())
	}
}

// Get returns the running session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of running sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RefreshIndex re-runs the search of every session searching index.
// Sessions that stop meanwhile are skipped.
func (r *Registry) RefreshIndex(ctx context.Context, index string) error {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, s := range targets {
		g.Go(func() error {
			if err := s.RefreshIndex(ctx, index); err != nil && !errors.Is(err, ErrClosed) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

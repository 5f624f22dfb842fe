package relay

import "sync"

// Registry is the process-wide map from break identifier to live session.
// It is owned by the server construct: created at startup, drained at
// shutdown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session. An existing session under the same break id is
// closed first.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	old, exists := r.sessions[s.BreakID]
	r.sessions[s.BreakID] = s
	r.mu.Unlock()

	if exists {
		old.Close()
	}
}

// Get returns the session registered for the break id.
func (r *Registry) Get(breakID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[breakID]
	return s, ok
}

// Remove deregisters and closes the session for the break id. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(breakID string) {
	r.mu.Lock()
	s, ok := r.sessions[breakID]
	delete(r.sessions, breakID)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Release deregisters the session only if it is still the registered one
// for its break id, then closes it. This keeps a replacement connection's
// registration intact.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	if current, ok := r.sessions[s.BreakID]; ok && current == s {
		delete(r.sessions, s.BreakID)
	}
	r.mu.Unlock()

	s.Close()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session. Called on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry maps call ids to live sessions. It is the only state shared
// across calls.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session), now: time.Now}
}

// Start registers a new call. Starting an id that is already live fails
// with ErrExists.
func (r *Registry) Start(id string, p Profile) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrExists
	}
	s := newSession(id, p, r.now())
	r.sessions[id] = s
	return s, nil
}

// GetOrStart returns the live session for id, creating one with p if none
// exists. created reports whether a new session was made.
func (r *Registry) GetOrStart(id string, p Profile) (s *Session, created bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false, nil
	}
	s = newSession(id, p, r.now())
	r.sessions[id] = s
	return s, true, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End removes the call and cancels its context so in-flight work can see
// the call is gone.
func (r *Registry) End(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.cancel()
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns live call ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

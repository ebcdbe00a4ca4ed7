package session

import (
	"sort"
	"sync"
	"time"
)

// Tracker owns the set of live session contexts, keyed by session id.
// Contexts are created on session start and removed on session end.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Context
	nowFunc  func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: map[string]*Context{},
		nowFunc:  time.Now,
	}
}

// Start creates a fresh context for the session. Starting a session id that
// is already active replaces the old context, treating the new start as a
// restart of the same session.
func (t *Tracker) Start(sessionID, project string) *Context {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := newContext(sessionID, project, t.nowFunc())
	t.sessions[sessionID] = c
	return c
}

// Get returns the live context for the session, if any.
func (t *Tracker) Get(sessionID string) (*Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.sessions[sessionID]
	return c, ok
}

// End removes the session's context and returns it for summarization.
func (t *Tracker) End(sessionID string) (*Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(t.sessions, sessionID)
	c.end()
	return c, true
}

// SessionIDs returns the ids of all live sessions, sorted.
func (t *Tracker) SessionIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

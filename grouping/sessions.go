package grouping

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionIdle is how long an untouched session is kept when no timeout is configured.
const DefaultSessionIdle = 2 * time.Hour

// Session is one client's editing session. Lock it around any Editor call.
type Session struct {
	ID string
	sync.Mutex
	Editor *Editor

	lastUsed time.Time // guarded by the registry lock
}

// Sessions is an in-memory registry of editing sessions. Sessions are not
// persisted; only an explicit save reaches the store. A session nobody has
// touched for longer than the idle timeout is dropped, which covers clients
// that navigate away without discarding.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
}

// NewSessions returns an empty registry. A non-positive idle uses DefaultSessionIdle.
func NewSessions(idle time.Duration) *Sessions {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &Sessions{sessions: make(map[string]*Session), idle: idle, now: time.Now}
}

// Open registers an editor under a new session id.
func (r *Sessions) Open(e *Editor) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evictIdle(now)
	s := &Session{ID: uuid.NewString(), Editor: e, lastUsed: now}
	r.sessions[s.ID] = s
	return s
}

// Get returns the session with the given id and marks it as used.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evictIdle(now)
	s, ok := r.sessions[id]
	if ok {
		s.lastUsed = now
	}
	return s, ok
}

// Close drops a session, reporting whether it existed.
func (r *Sessions) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// evictIdle must be called with r.mu held.
func (r *Sessions) evictIdle(now time.Time) {
	for id, s := range r.sessions {
		if now.Sub(s.lastUsed) > r.idle {
			delete(r.sessions, id)
			log.Printf("Dropped idle grouping session %s", id)
		}
	}
}

package web

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionCookie names the cookie carrying the session id.
const DefaultSessionCookie = "webbind.session"

// DefaultSessionTimeout is the idle time after which a session expires.
const DefaultSessionTimeout = 30 * time.Minute

// Session is per-client state kept in a SessionStore.
type Session struct {
	store        *SessionStore
	data         map[string]any
	lastAccessed time.Time
	id           string
	timeout      time.Duration
	mu           sync.Mutex
	destroyed    bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Get returns a session value.
func (s *Session) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

// Put stores a session value.
func (s *Session) Put(key string, value any) *Session {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return s
}

// Remove deletes a session value and returns it.
func (s *Session) Remove(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.data[key]
	delete(s.data, key)
	return v
}

// Data returns a copy of the session values.
func (s *Session) Data() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Timeout returns the idle timeout in milliseconds.
func (s *Session) Timeout() int64 { return s.timeout.Milliseconds() }

// LastAccessed returns the last access time in Unix milliseconds.
func (s *Session) LastAccessed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed.UnixMilli()
}

// SetAccessed marks the session as used now.
func (s *Session) SetAccessed() {
	s.mu.Lock()
	s.lastAccessed = time.Now()
	s.mu.Unlock()
}

// Destroy removes the session from its store.
func (s *Session) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	if s.store != nil {
		s.store.Delete(s.id)
	}
}

// IsDestroyed reports whether Destroy was called.
func (s *Session) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccessed) > s.timeout
}

// SessionStore keeps sessions in memory.
type SessionStore struct {
	sessions map[string]*Session
	timeout  time.Duration
	mu       sync.Mutex
}

// NewSessionStore creates a store whose sessions expire after timeout of
// inactivity. A non-positive timeout uses DefaultSessionTimeout.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionStore{sessions: make(map[string]*Session), timeout: timeout}
}

// CreateSession makes a new unsaved session.
func (st *SessionStore) CreateSession() *Session {
	return &Session{
		store:        st,
		id:           uuid.NewString(),
		data:         make(map[string]any),
		timeout:      st.timeout,
		lastAccessed: time.Now(),
	}
}

// Get returns a live session or nil. Expired sessions are dropped.
func (st *SessionStore) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil
	}
	if s.expired(time.Now()) {
		delete(st.sessions, id)
		return nil
	}
	return s
}

// Put saves a session.
func (st *SessionStore) Put(s *Session) {
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
}

// Delete removes a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Size returns the number of stored sessions.
func (st *SessionStore) Size() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Clear removes every session.
func (st *SessionStore) Clear() {
	st.mu.Lock()
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()
}

// Handle attaches the client's session to the context, creating one when
// the cookie is missing or stale, then continues routing.
func (st *SessionStore) Handle(ctx *RoutingContext) {
	var s *Session
	if c := ctx.GetCookie(DefaultSessionCookie); c != nil {
		s = st.Get(c.GetValue())
	}
	if s == nil {
		s = st.CreateSession()
		st.Put(s)
		ctx.AddCookie(NewCookie(DefaultSessionCookie, s.id).SetPath("/").SetHttpOnly(true))
		Logger().Debug("session created", zap.String("id", s.id))
	}
	s.SetAccessed()
	ctx.SetSession(s)
	ctx.Next()
}

// SessionHandler returns store.Handle as a route handler.
func SessionHandler(store *SessionStore) Handler {
	return store.Handle
}

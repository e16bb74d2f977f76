// Package session keeps per-client state in memory, keyed by a UUID carried
// in a cookie. Idle sessions expire and a background loop purges them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/feasp/internal/logging"
	"github.com/conneroisu/feasp/pkg/feasp"
)

// Session management defaults.
const (
	DefaultTimeout       = time.Hour
	DefaultCookieName    = "feaspSessionId"
	DefaultPurgeInterval = time.Minute
)

// Session is one client's state. Values are guarded by the session's own
// lock so concurrent requests from one client are safe.
type Session struct {
	id      string
	created time.Time

	mu      sync.Mutex
	lastUse time.Time
	values  map[string]any
}

func newSession(now time.Time) *Session {
	return &Session{
		id:      uuid.New().String(),
		created: now,
		lastUse: now,
		values:  make(map[string]any),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Created returns when the session was created.
func (s *Session) Created() time.Time { return s.created }

// LastUse returns the time the session was last loaded.
func (s *Session) LastUse() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUse
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUse = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return s.LastUse().Add(timeout).Before(now)
}

// Get returns a stored value.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Update runs fn with exclusive access to the values, for read-modify-write
// sequences such as counters.
func (s *Session) Update(fn func(values map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.values)
}

// Store is session storage.
type Store interface {
	// Get returns the session with id, or nil.
	Get(id string) *Session
	// Save stores or replaces a session.
	Save(s *Session)
	// Delete removes a session. It reports whether one existed.
	Delete(id string) bool
	// Purge removes sessions idle longer than timeout at now and returns how
	// many were removed.
	Purge(now time.Time, timeout time.Duration) int
	// Len returns the number of stored sessions.
	Len() int
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *MemoryStore) Save(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.id] = s
}

func (m *MemoryStore) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

func (m *MemoryStore) Purge(now time.Time, timeout time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, s := range m.sessions {
		if s.expired(now, timeout) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Config configures a Manager. Zero fields take the defaults.
type Config struct {
	Store         Store
	CookieName    string
	Timeout       time.Duration
	PurgeInterval time.Duration
	Logger        logging.Logger
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Manager hands out sessions for requests and expires idle ones.
type Manager struct {
	store         Store
	cookieName    string
	timeout       time.Duration
	purgeInterval time.Duration
	logger        logging.Logger
	now           func() time.Time
}

// NewManager returns a Manager. Call Run to start purging.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		store:         cfg.Store,
		cookieName:    cfg.CookieName,
		timeout:       cfg.Timeout,
		purgeInterval: cfg.PurgeInterval,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.cookieName == "" {
		m.cookieName = DefaultCookieName
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.purgeInterval <= 0 {
		m.purgeInterval = DefaultPurgeInterval
	}
	if m.logger == nil {
		m.logger = logging.Nop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.logger = m.logger.WithComponent("session")
	return m
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.cookieName }

// Store returns the backing store.
func (m *Manager) Store() Store { return m.store }

// Load returns the session named by the request's cookie. Missing, unknown
// or expired ids get a fresh session and isNew is true.
func (m *Manager) Load(req *feasp.Request) (*Session, bool) {
	now := m.now()

	if id, ok := req.Cookies[m.cookieName]; ok {
		if s := m.store.Get(id); s != nil {
			if !s.expired(now, m.timeout) {
				s.touch(now)
				return s, false
			}
			m.store.Delete(id)
		}
	}

	s := newSession(now)
	m.store.Save(s)
	return s, true
}

// LoadSession adapts Load to feasp.SessionProvider.
func (m *Manager) LoadSession(req *feasp.Request) (feasp.Session, bool) {
	return m.Load(req)
}

// Destroy removes a session.
func (m *Manager) Destroy(id string) {
	m.store.Delete(id)
}

// Run purges expired sessions every purge interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.store.Purge(m.now(), m.timeout); n > 0 {
				m.logger.Debug(ctx, "purged expired sessions", "count", n, "remaining", m.store.Len())
			}
		}
	}
}

package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/feasp/pkg/feasp"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func requestWithCookie(name, value string) *feasp.Request {
	header := http.Header{}
	if name != "" {
		header.Set("Cookie", name+"="+value)
	}
	return feasp.RequestFromParts(http.MethodGet, "/", "HTTP/1.1", "http", "test", header, nil, "")
}

func TestManagerDefaults(t *testing.T) {
	m := NewManager(Config{})
	assert.Equal(t, DefaultCookieName, m.CookieName())
	assert.Equal(t, DefaultTimeout, m.timeout)
	assert.Equal(t, DefaultPurgeInterval, m.purgeInterval)
	assert.NotNil(t, m.Store())
}

func TestManagerLoad(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(Config{Timeout: time.Hour, Now: c.Now})

	s, isNew := m.Load(requestWithCookie("", ""))
	require.True(t, isNew)
	_, err := uuid.Parse(s.ID())
	require.NoError(t, err)
	s.Set("user", "XueFeng")

	again, isNew := m.Load(requestWithCookie(DefaultCookieName, s.ID()))
	assert.False(t, isNew)
	assert.Same(t, s, again)
	v, ok := again.Get("user")
	assert.True(t, ok)
	assert.Equal(t, "XueFeng", v)

	unknown, isNew := m.Load(requestWithCookie(DefaultCookieName, "not-a-session"))
	assert.True(t, isNew)
	assert.NotEqual(t, "not-a-session", unknown.ID())

	c.Advance(2 * time.Hour)
	expired, isNew := m.Load(requestWithCookie(DefaultCookieName, s.ID()))
	assert.True(t, isNew)
	assert.NotEqual(t, s.ID(), expired.ID())
	assert.Nil(t, m.Store().Get(s.ID()))
}

func TestManagerLoadRefreshesIdleTimer(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	m := NewManager(Config{Timeout: time.Hour, Now: c.Now})

	s, _ := m.Load(requestWithCookie("", ""))
	for i := 0; i < 3; i++ {
		c.Advance(45 * time.Minute)
		got, isNew := m.Load(requestWithCookie(DefaultCookieName, s.ID()))
		require.False(t, isNew)
		require.Equal(t, s.ID(), got.ID())
	}
}

func TestMemoryStorePurge(t *testing.T) {
	store := NewMemoryStore()
	base := time.Unix(1000, 0)

	old := newSession(base)
	fresh := newSession(base.Add(50 * time.Minute))
	store.Save(old)
	store.Save(fresh)
	require.Equal(t, 2, store.Len())

	n := store.Purge(base.Add(61*time.Minute), time.Hour)
	assert.Equal(t, 1, n)
	assert.Nil(t, store.Get(old.ID()))
	assert.NotNil(t, store.Get(fresh.ID()))

	assert.True(t, store.Delete(fresh.ID()))
	assert.False(t, store.Delete(fresh.ID()))
	assert.Equal(t, 0, store.Len())
}

func TestManagerRunPurgesUntilCancelled(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	m := NewManager(Config{Timeout: time.Minute, PurgeInterval: 5 * time.Millisecond, Now: c.Now})

	s, _ := m.Load(requestWithCookie("", ""))
	c.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.Store().Get(s.ID()) == nil }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionConcurrentUpdate(t *testing.T) {
	m := NewManager(Config{})
	s, _ := m.Load(requestWithCookie("", ""))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := m.Load(requestWithCookie(DefaultCookieName, s.ID()))
			got.Update(func(values map[string]any) {
				n, _ := values["n"].(int)
				values["n"] = n + 1
			})
		}()
	}
	wg.Wait()

	n, _ := s.Get("n")
	assert.Equal(t, 50, n)
}

func TestManagerAsSessionProvider(t *testing.T) {
	m := NewManager(Config{CookieName: "sid"})
	app := feasp.New(nil, feasp.WithSessions(m))
	app.GET("/counter", func(c *feasp.Context) (any, error) {
		s := c.Session()
		n, _ := s.Get("n")
		count, _ := n.(int)
		s.Set("n", count+1)
		return map[string]int{"count": count + 1}, nil
	})

	resp := app.Dispatch(context.Background(), feasp.RequestFromParts(http.MethodGet, "/counter", "HTTP/1.1", "http", "t", nil, nil, ""))
	assert.JSONEq(t, `{"count":1}`, string(resp.Body))
	cookie := resp.Header.Get("Set-Cookie")
	require.Contains(t, cookie, "sid=")

	parsed, err := http.ParseSetCookie(cookie)
	require.NoError(t, err)

	resp = app.Dispatch(context.Background(), feasp.RequestFromParts(http.MethodGet, "/counter", "HTTP/1.1", "http", "t",
		http.Header{"Cookie": {"sid=" + parsed.Value}}, nil, ""))
	assert.JSONEq(t, `{"count":2}`, string(resp.Body))
	assert.Equal(t, 1, m.Store().Len())
}

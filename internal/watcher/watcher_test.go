package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestFilters(t *testing.T) {
	assert.True(t, HTMLFilter("templates/index.html"))
	assert.False(t, HTMLFilter("templates/index.htm"))

	static := ExtFilter(".css", ".JS")
	assert.True(t, static("static/site.css"))
	assert.True(t, static("static/app.js"))
	assert.False(t, static("static/logo.png"))

	assert.True(t, NoTempFilter("templates/index.html"))
	assert.False(t, NoTempFilter("templates/.index.html.swp"))
	assert.False(t, NoTempFilter("templates/index.html~"))
	assert.False(t, NoTempFilter("templates/index.tmp"))
}

func TestDebouncer(t *testing.T) {
	debouncer := &Debouncer{
		delay:  30 * time.Millisecond,
		events: make(chan ChangeEvent, 100),
		output: make(chan []ChangeEvent, 10),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.events <- ChangeEvent{Path: "b.html", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "a.html", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "b.html", Type: EventTypeModified}

	select {
	case events := <-debouncer.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.html", events[0].Path)
		assert.Equal(t, "b.html", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced batch")
	}

	select {
	case events := <-debouncer.output:
		t.Fatalf("unexpected second batch: %v", events)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAddRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "partials", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	require.NoError(t, fw.AddRecursive(root))
	list := fw.WatchList()
	assert.Len(t, list, 3)
	assert.NotContains(t, list, filepath.Join(root, ".git"))

	assert.Error(t, fw.AddRecursive(filepath.Join(root, "missing")))
	assert.Error(t, fw.AddRecursive(""))
}

func TestFileWatcherReportsChanges(t *testing.T) {
	root := t.TempDir()
	page := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(page, []byte("v1"), 0o644))

	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var (
		mu      sync.Mutex
		changed []string
	)
	fw.AddFilter(HTMLFilter)
	fw.AddFilter(NoTempFilter)
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			changed = append(changed, filepath.Base(e.Path))
		}
		return nil
	})
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(page, []byte("v2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changed, "index.html")
	assert.NotContains(t, changed, "notes.txt")
}

func TestFileWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	seen := make(chan string, 10)
	fw.AddHandler(func(events []ChangeEvent) error {
		for _, e := range events {
			seen <- e.Path
		}
		return nil
	})
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	sub := filepath.Join(root, "partials")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return len(fw.WatchList()) == 2 }, 3*time.Second, 10*time.Millisecond)

	target := filepath.Join(sub, "nav.html")
	require.NoError(t, os.WriteFile(target, []byte("nav"), 0o644))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case path := <-seen:
			if path == target {
				return
			}
		case <-deadline:
			t.Fatal("change inside new directory not reported")
		}
	}
}

package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo, version, commit, buildTime string) {
	t.Helper()
	oldRead, oldVersion, oldCommit, oldTime := readBuildInfo, Version, Commit, BuildTime
	t.Cleanup(func() {
		readBuildInfo, Version, Commit, BuildTime = oldRead, oldVersion, oldCommit, oldTime
	})
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	Version, Commit, BuildTime = version, commit, buildTime
}

func TestGet_LdflagsWin(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "ffffffffffffffff"},
	}}, "v1.2.3", "abcdef0123", "2024-05-01T10:00:00Z")

	info := Get()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "abcdef0123", info.Commit)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.True(t, info.IsRelease())
	assert.Equal(t, "v1.2.3 (abcdef0)", Short())
}

func TestGet_FallsBackToVCS(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: "2024-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}, "dev", "unknown", "unknown")

	info := Get()
	assert.Equal(t, "dev-1234567", info.Version)
	assert.Equal(t, "1234567890abcdef", info.Commit)
	assert.True(t, info.Dirty)
	assert.False(t, info.IsRelease())
	assert.Equal(t, 2024, info.BuildTime.Year())
	assert.Equal(t, "dev-1234567", Short())

	s := info.String()
	assert.True(t, strings.HasPrefix(s, "Version: dev-1234567\n"))
	assert.Contains(t, s, "Commit: 1234567890abcdef (dirty)")
	assert.Contains(t, s, "Built: 2024-01-02T03:04:05Z")
}

func TestGet_NoBuildInfo(t *testing.T) {
	withBuildInfo(t, nil, "dev", "unknown", "garbage")

	info := Get()
	assert.Equal(t, "dev", info.Version)
	assert.True(t, info.BuildTime.IsZero())
	assert.NotContains(t, info.String(), "Commit:")
	assert.Equal(t, "dev", Short())
}

package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmoxy/moxy/pkg/logging"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"request": {"/a": {"respond": "v1"}}}`), 0o644))

	var loads atomic.Int32
	var lastRS atomic.Pointer[RuleSet]
	w := NewWatcher(path, 20*time.Millisecond, func(rs *RuleSet) {
		lastRS.Store(rs)
		loads.Add(1)
	}, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher a moment to record the initial mtime, then
	// rewrite the file with a different timestamp.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"request": {"/a": {"respond": "v2"}}}`), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))

	require.Eventually(t, func() bool { return loads.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NotNil(t, lastRS.Load())
	assert.Contains(t, lastRS.Load().Request.Exact, "/a")
}

func TestWatcherKeepsRulesOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"request": {}}`), 0o644))

	var loads atomic.Int32
	w := NewWatcher(path, 20*time.Millisecond, func(*RuleSet) { loads.Add(1) }, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))

	// The broken document must never reach the callback.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), loads.Load())
}

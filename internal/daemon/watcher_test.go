package daemon

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestWatcher(t *testing.T, debounce time.Duration) (string, *PluginWatcher, *atomic.Int64) {
	t.Helper()

	dir := t.TempDir()
	var settles atomic.Int64

	w, err := NewPluginWatcher(dir, debounce, func() {
		settles.Add(1)
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })

	return dir, w, &settles
}

func TestPluginWatcher(t *testing.T) {
	t.Run("fires after an archive lands", func(t *testing.T) {
		dir, _, settles := newTestWatcher(t, 50*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.plugin"), []byte("zip"), 0o644))

		waitFor(t, 2*time.Second, func() bool { return settles.Load() >= 1 })
	})

	t.Run("coalesces a burst into one settle", func(t *testing.T) {
		dir, _, settles := newTestWatcher(t, 200*time.Millisecond)

		path := filepath.Join(dir, "echo.plugin")
		for i := 0; i < 3; i++ {
			require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))
		}

		waitFor(t, 2*time.Second, func() bool { return settles.Load() >= 1 })
		time.Sleep(300 * time.Millisecond)
		assert.Equal(t, int64(1), settles.Load())
	})

	t.Run("disabled archives count", func(t *testing.T) {
		dir, _, settles := newTestWatcher(t, 50*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.plugin.disabled"), []byte("zip"), 0o644))

		waitFor(t, 2*time.Second, func() bool { return settles.Load() >= 1 })
	})

	t.Run("ignores unrelated files", func(t *testing.T) {
		dir, _, settles := newTestWatcher(t, 50*time.Millisecond)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

		time.Sleep(300 * time.Millisecond)
		assert.Equal(t, int64(0), settles.Load())
	})

	t.Run("no settles after stop", func(t *testing.T) {
		dir, w, settles := newTestWatcher(t, 50*time.Millisecond)

		require.NoError(t, w.Stop())
		_ = os.WriteFile(filepath.Join(dir, "echo.plugin"), []byte("zip"), 0o644)

		time.Sleep(300 * time.Millisecond)
		assert.Equal(t, int64(0), settles.Load())
	})
}

func TestIsArchiveName(t *testing.T) {
	assert.True(t, isArchiveName("plugins/echo.plugin"))
	assert.True(t, isArchiveName("plugins/echo.plugin.disabled"))
	assert.False(t, isArchiveName("plugins/echo.zip"))
	assert.False(t, isArchiveName("plugins/notes.txt"))
}

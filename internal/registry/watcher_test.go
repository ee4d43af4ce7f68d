package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDebouncer(t *testing.T) {
	base := time.Now()

	t.Run("second event inside the window is dropped", func(t *testing.T) {
		d := newDebouncer(time.Second)
		assert.True(t, d.allow("/tools/get_now.go", base))
		assert.False(t, d.allow("/tools/get_now.go", base.Add(300*time.Millisecond)))
		assert.False(t, d.allow("/tools/get_now.go", base.Add(999*time.Millisecond)))
	})

	t.Run("event after the window passes", func(t *testing.T) {
		d := newDebouncer(time.Second)
		assert.True(t, d.allow("/tools/get_now.go", base))
		assert.True(t, d.allow("/tools/get_now.go", base.Add(time.Second)))
	})

	t.Run("paths are debounced independently", func(t *testing.T) {
		d := newDebouncer(time.Second)
		assert.True(t, d.allow("/tools/a.go", base))
		assert.True(t, d.allow("/tools/b.go", base.Add(10*time.Millisecond)))
		assert.False(t, d.allow("/tools/a.go", base.Add(20*time.Millisecond)))
	})
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	reg := New("", nil)

	reloads := make(chan string, 8)
	w := NewWatcher(reg, dir, nil)
	w.reload = func(path string) { reloads <- path }

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "get_now.go")
	require.NoError(t, os.WriteFile(path, []byte(goodTool), 0o644))

	select {
	case got := <-reloads:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after file write")
	}
}

func TestWatcherStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := NewWatcher(New("", nil), dir, nil)

	require.NoError(t, w.Start(context.Background()))
	// Second start is a no-op, not a second goroutine pair.
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	// Stop is idempotent.
	w.Stop()
}

func TestWatcherStartMissingDir(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := NewWatcher(New("", nil), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, w.Start(context.Background()))
}

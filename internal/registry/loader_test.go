package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodTool = `package main

import "fmt"

// GetNow returns a fixed timestamp.
func GetNow(args map[string]any) (string, error) {
	return fmt.Sprintf("now:%v", args["zone"]), nil
}
`

const twoHandlers = `package main

func First(args map[string]any) (string, error)  { return "first", nil }
func Second(args map[string]any) (string, error) { return "second", nil }
`

const noHandler = `package main

// helper is unexported and invisible to discovery.
func helper(args map[string]any) (string, error) { return "", nil }

// WrongShape has the wrong signature.
func WrongShape(s string) string { return s }
`

const brokenSyntax = `package main

func GetNow(args map[string]any (string, error) {
`

func writeTool(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("single exported handler becomes usable", func(t *testing.T) {
		r := New("", nil)
		r.LoadFile(writeTool(t, t.TempDir(), "get_now.go", goodTool))

		require.True(t, r.Has("get_now"))
		out, err := r.Get("get_now").Invoke(map[string]any{"zone": "UTC"})
		require.NoError(t, err)
		assert.Equal(t, "now:UTC", out)
	})

	t.Run("two exported handlers is ambiguous", func(t *testing.T) {
		r := New("", nil)
		r.LoadFile(writeTool(t, t.TempDir(), "twins.go", twoHandlers))

		assert.False(t, r.Has("twins"))
		assert.Contains(t, r.FailureFor("twins"), "ambiguous module")
	})

	t.Run("no exported handler is broken", func(t *testing.T) {
		r := New("", nil)
		r.LoadFile(writeTool(t, t.TempDir(), "empty.go", noHandler))

		assert.False(t, r.Has("empty"))
		assert.Contains(t, r.FailureFor("empty"), "no exported tool handler")
	})

	t.Run("syntax error is broken with detail", func(t *testing.T) {
		r := New("", nil)
		r.LoadFile(writeTool(t, t.TempDir(), "bad.go", brokenSyntax))

		assert.False(t, r.Has("bad"))
		assert.Contains(t, r.FailureFor("bad"), "import failed")
	})

	t.Run("fixing a broken tool moves it back to usable", func(t *testing.T) {
		dir := t.TempDir()
		r := New("", nil)

		path := writeTool(t, dir, "get_now.go", brokenSyntax)
		r.LoadFile(path)
		require.False(t, r.Has("get_now"))
		require.NotEmpty(t, r.FailureFor("get_now"))

		writeTool(t, dir, "get_now.go", goodTool)
		r.LoadFile(path)
		assert.True(t, r.Has("get_now"))
		assert.Empty(t, r.FailureFor("get_now"))
	})

	t.Run("deleted file evicts stale entries", func(t *testing.T) {
		dir := t.TempDir()
		r := New("", nil)

		path := writeTool(t, dir, "get_now.go", goodTool)
		r.LoadFile(path)
		require.True(t, r.Has("get_now"))

		require.NoError(t, os.Remove(path))
		r.LoadFile(path)
		assert.False(t, r.Has("get_now"))
		assert.Empty(t, r.FailureFor("get_now"))
	})

	t.Run("non-tool files are ignored", func(t *testing.T) {
		dir := t.TempDir()
		r := New("", nil)
		for _, name := range []string{"notes.txt", "get_now_test.go", ".hidden.go", "_draft.go", "get_now.go~"} {
			r.LoadFile(writeTool(t, dir, name, brokenSyntax))
		}
		assert.Empty(t, r.UsableNames())
		assert.Empty(t, r.Broken())
	})
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "get_now.go", goodTool)
	writeTool(t, dir, "bad.go", brokenSyntax)

	r := New("", nil)
	r.MarkBroken("ghost", "left over from a previous scan")
	r.Reload(dir)

	assert.Equal(t, []string{"get_now"}, r.UsableNames())
	assert.NotEmpty(t, r.FailureFor("bad"))
	// Full reload drops entries whose files no longer exist.
	assert.Empty(t, r.FailureFor("ghost"))
}

func TestReloadMissingDir(t *testing.T) {
	r := New("", nil)
	r.Reload(filepath.Join(t.TempDir(), "nope"))
	assert.Empty(t, r.UsableNames())
}

func TestLoadFileReadsMetadataDescription(t *testing.T) {
	dir := t.TempDir()
	metaDir := filepath.Join(dir, "metadata")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(metaDir, "get_now.json"),
		[]byte(`{"name": "get_now", "description": "Returns the current time."}`),
		0o644))

	r := New(metaDir, nil)
	r.LoadFile(writeTool(t, dir, "get_now.go", goodTool))

	require.True(t, r.Has("get_now"))
	assert.Equal(t, "Returns the current time.", r.Get("get_now").Description)
}

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsableBrokenExclusion(t *testing.T) {
	r := New("", nil)

	r.record(&LoadedTool{Name: "get_now", Invoke: func(map[string]any) (string, error) { return "", nil }})
	assert.True(t, r.Has("get_now"))
	assert.Empty(t, r.FailureFor("get_now"))

	t.Run("marking broken evicts from usable", func(t *testing.T) {
		r.MarkBroken("get_now", "runtime panic")
		assert.False(t, r.Has("get_now"))
		assert.Nil(t, r.Get("get_now"))
		assert.Equal(t, "runtime panic", r.FailureFor("get_now"))
	})

	t.Run("recording usable evicts from broken", func(t *testing.T) {
		r.record(&LoadedTool{Name: "get_now", Invoke: func(map[string]any) (string, error) { return "", nil }})
		assert.True(t, r.Has("get_now"))
		assert.Empty(t, r.FailureFor("get_now"))
		assert.Empty(t, r.Broken())
	})
}

func TestUsableNamesSorted(t *testing.T) {
	r := New("", nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.record(&LoadedTool{Name: name})
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.UsableNames())
}

func TestDescribe(t *testing.T) {
	r := New("", nil)
	r.record(&LoadedTool{Name: "get_now", Description: "Returns the current time."})
	r.MarkBroken("fetch_url", "import failed: syntax error")

	out := r.Describe()
	require.Contains(t, out, "Tool_Name: get_now")
	require.Contains(t, out, "Description: Returns the current time.")
	require.Contains(t, out, "The following tools have errors that need to be fixed:")
	require.Contains(t, out, "Tool_Name: fetch_url")
	require.Contains(t, out, "Error: import failed: syntax error")
}

func TestDescribeEmpty(t *testing.T) {
	r := New("", nil)
	assert.Empty(t, r.Describe())
}

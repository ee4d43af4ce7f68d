package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolforge/internal/llm"
	"toolforge/internal/registry"
	"toolforge/internal/tool"
)

func TestCoerceEnvelope(t *testing.T) {
	ctx := context.Background()

	t.Run("strict parse needs no model call", func(t *testing.T) {
		client := &fakeClient{} // any call errors
		env, err := CoerceEnvelope(ctx, client, `{"final_result": "42"}`)
		require.NoError(t, err)
		assert.Equal(t, "42", env.FinalResult)
	})

	t.Run("prose falls back to extraction", func(t *testing.T) {
		client := &fakeClient{extract: func(raw string) (*llm.ResultEnvelope, error) {
			assert.Equal(t, "The answer is 42.", raw)
			return &llm.ResultEnvelope{FinalResult: "42"}, nil
		}}
		env, err := CoerceEnvelope(ctx, client, "The answer is 42.")
		require.NoError(t, err)
		assert.Equal(t, "42", env.FinalResult)
	})

	t.Run("double failure preserves the raw output", func(t *testing.T) {
		client := &fakeClient{extract: func(string) (*llm.ResultEnvelope, error) {
			return nil, errors.New("model unavailable")
		}}
		_, err := CoerceEnvelope(ctx, client, "garbled ***")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "garbled ***")
		assert.Contains(t, err.Error(), "model unavailable")
	})
}

func TestAttribute(t *testing.T) {
	newState := func() (*RunState, *registry.Registry) {
		reg := registry.New("", nil)
		st := &RunState{NeededTools: []*tool.Description{
			{Name: "get_now"},
			{Name: "fetch_url"},
		}}
		return st, reg
	}

	t.Run("reviewable failure flags the matching tool and the registry", func(t *testing.T) {
		st, reg := newState()
		Attribute(&llm.ResultEnvelope{Error: &llm.ResultError{
			ToolName:    "fetch_url",
			Message:     "connection refused",
			NeedsReview: true,
		}}, st, reg)

		assert.False(t, st.NeededTools[0].NeedsReview)
		assert.True(t, st.NeededTools[1].NeedsReview)
		assert.Equal(t, "connection refused", reg.FailureFor("fetch_url"))
	})

	t.Run("non-reviewable failure flags nothing", func(t *testing.T) {
		st, reg := newState()
		Attribute(&llm.ResultEnvelope{Error: &llm.ResultError{
			ToolName: "fetch_url",
			Message:  "limit must be positive",
		}}, st, reg)

		assert.False(t, st.NeededTools[1].NeedsReview)
		assert.Empty(t, reg.FailureFor("fetch_url"))
	})

	t.Run("success envelope is a no-op", func(t *testing.T) {
		st, reg := newState()
		Attribute(&llm.ResultEnvelope{FinalResult: "42"}, st, reg)
		assert.False(t, st.NeededTools[0].NeedsReview)
		assert.Empty(t, reg.Broken())
	})
}

package workflow

import (
	"context"
	"fmt"

	"toolforge/internal/llm"
	"toolforge/internal/registry"
)

// CoerceEnvelope turns raw executor output into a result envelope: strict
// structured parse first, then best-effort LLM extraction. When both fail
// the raw text is returned inside the error so nothing is discarded.
func CoerceEnvelope(ctx context.Context, client llm.Client, raw string) (*llm.ResultEnvelope, error) {
	env, strictErr := llm.ParseEnvelope(raw)
	if strictErr == nil {
		return env, nil
	}
	env, extractErr := client.ExtractResult(ctx, raw)
	if extractErr == nil {
		return env, nil
	}
	return nil, fmt.Errorf("result output could not be classified (strict: %v; fallback: %v); raw output:\n%s",
		strictErr, extractErr, raw)
}

// Attribute routes a classified failure back to its tool: the matching
// description is flagged for review and the registry records the message so
// subsequent review prompts can see what went wrong at runtime.
func Attribute(env *llm.ResultEnvelope, st *RunState, reg *registry.Registry) {
	if env == nil || env.Error == nil || env.Error.ToolName == "" {
		return
	}
	if !env.Error.NeedsReview {
		return
	}
	for _, td := range st.NeededTools {
		if td.Name == env.Error.ToolName {
			td.NeedsReview = true
			break
		}
	}
	reg.MarkBroken(env.Error.ToolName, env.Error.Message)
}

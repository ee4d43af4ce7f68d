// Package llm defines the language-model collaborator: planning, tool
// generation, code review, agentic execution and result extraction. The
// workflow engine only depends on the Client interface; the Gemini
// implementation lives in gemini.go.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyPlan is returned when the planner yields no usable plan.
var ErrEmptyPlan = errors.New("planner returned an empty plan")

// ToolBinding hands a callable tool to the execution step without exposing
// registry internals.
type ToolBinding struct {
	Name        string
	Description string
	Invoke      func(args map[string]any) (string, error)
}

// Client is the boundary to the model provider. Every call is a blocking
// round-trip with no partial results; timeouts ride on ctx.
type Client interface {
	// Plan enumerates steps and needed tools for the user request.
	// availableTools is a rendered catalogue of usable and broken tools;
	// feedback carries free-text human input from a rejected plan.
	Plan(ctx context.Context, userRequest, availableTools, feedback string) (*PlanResponse, error)

	// GenerateTool writes source for a missing tool.
	GenerateTool(ctx context.Context, name, description, planExplanation string) (*CodeResponse, error)

	// ReviewTool assesses tool source; failureText carries the last
	// recorded runtime or load failure for the tool, userIssues carries
	// human-requested changes. Both may be empty.
	ReviewTool(ctx context.Context, code, planExplanation, failureText, userIssues string) (*ReviewResponse, error)

	// Answer runs the tool-calling loop against the user request and
	// returns the raw model output, which the caller classifies.
	Answer(ctx context.Context, userRequest string, tools []ToolBinding) (string, error)

	// ExtractResult is the best-effort fallback that coerces free text
	// into a result envelope when the strict parse fails.
	ExtractResult(ctx context.Context, raw string) (*ResultEnvelope, error)

	// FormatOutput re-renders data in the requested output format.
	FormatOutput(ctx context.Context, userRequest, data, format string) (string, error)
}

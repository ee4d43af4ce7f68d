package workflow

import (
	"context"
	"errors"

	"toolforge/internal/llm"
	"toolforge/internal/sandbox"
	"toolforge/internal/tool"
)

// fakeClient scripts the model boundary with per-call function fields.
// Unset fields return an error so a test fails loudly on an unexpected call.
type fakeClient struct {
	plan     func(userRequest, availableTools, feedback string) (*llm.PlanResponse, error)
	generate func(name, description, explanation string) (*llm.CodeResponse, error)
	review   func(code, explanation, failureText, userIssues string) (*llm.ReviewResponse, error)
	answer   func(userRequest string, tools []llm.ToolBinding) (string, error)
	extract  func(raw string) (*llm.ResultEnvelope, error)
	format   func(userRequest, data, format string) (string, error)
}

var errUnexpectedCall = errors.New("unexpected model call")

func (f *fakeClient) Plan(_ context.Context, userRequest, availableTools, feedback string) (*llm.PlanResponse, error) {
	if f.plan == nil {
		return nil, errUnexpectedCall
	}
	return f.plan(userRequest, availableTools, feedback)
}

func (f *fakeClient) GenerateTool(_ context.Context, name, description, explanation string) (*llm.CodeResponse, error) {
	if f.generate == nil {
		return nil, errUnexpectedCall
	}
	return f.generate(name, description, explanation)
}

func (f *fakeClient) ReviewTool(_ context.Context, code, explanation, failureText, userIssues string) (*llm.ReviewResponse, error) {
	if f.review == nil {
		return nil, errUnexpectedCall
	}
	return f.review(code, explanation, failureText, userIssues)
}

func (f *fakeClient) Answer(_ context.Context, userRequest string, tools []llm.ToolBinding) (string, error) {
	if f.answer == nil {
		return "", errUnexpectedCall
	}
	return f.answer(userRequest, tools)
}

func (f *fakeClient) ExtractResult(_ context.Context, raw string) (*llm.ResultEnvelope, error) {
	if f.extract == nil {
		return nil, errUnexpectedCall
	}
	return f.extract(raw)
}

func (f *fakeClient) FormatOutput(_ context.Context, userRequest, data, format string) (string, error) {
	if f.format == nil {
		return "", errUnexpectedCall
	}
	return f.format(userRequest, data, format)
}

// stubRunner answers every git/go subprocess with success and an empty
// working tree, so sandbox operations become no-ops in workflow tests.
type stubRunner struct {
	commands [][]string
}

func (s *stubRunner) Run(_ context.Context, _, name string, args ...string) (*sandbox.Result, error) {
	s.commands = append(s.commands, append([]string{name}, args...))
	return &sandbox.Result{}, nil
}

// fakeInteractor scripts the human decision points.
type fakeInteractor struct {
	confirmPlan func(plan *llm.PlanResponse) (bool, string, error)
	reviewTool  func(t *tool.Description, review *llm.ReviewResponse) (ReviewDecision, error)
}

func (f *fakeInteractor) ConfirmPlan(plan *llm.PlanResponse) (bool, string, error) {
	if f.confirmPlan == nil {
		return true, "", nil
	}
	return f.confirmPlan(plan)
}

func (f *fakeInteractor) ReviewTool(t *tool.Description, review *llm.ReviewResponse) (ReviewDecision, error) {
	if f.reviewTool == nil {
		return ReviewAccept, nil
	}
	return f.reviewTool(t, review)
}

package workflow

import (
	"toolforge/internal/llm"
	"toolforge/internal/tool"
)

// ReviewDecision is a human verdict on a tool the reviewer wants to change.
type ReviewDecision int

const (
	// ReviewAccept keeps the reviewer's updated code.
	ReviewAccept ReviewDecision = iota
	// ReviewReject deletes the tool outright, forcing the planner to
	// reconsider on the next pre-check.
	ReviewReject
	// ReviewAbort ends the whole run.
	ReviewAbort
)

// Interactor is the human-in-the-loop collaborator. The interactive
// terminal UI lives outside the engine; the engine only needs these
// decision points.
type Interactor interface {
	// ConfirmPlan presents the plan. A rejection with feedback makes the
	// planner loop on itself with that feedback; a rejection without
	// feedback is treated as an abort.
	ConfirmPlan(plan *llm.PlanResponse) (accepted bool, feedback string, err error)

	// ReviewTool intercepts a tool the AI reviewer updated.
	ReviewTool(t *tool.Description, review *llm.ReviewResponse) (ReviewDecision, error)
}

// AutoInteractor accepts everything; used for non-interactive runs.
type AutoInteractor struct{}

func (AutoInteractor) ConfirmPlan(*llm.PlanResponse) (bool, string, error) {
	return true, "", nil
}

func (AutoInteractor) ReviewTool(*tool.Description, *llm.ReviewResponse) (ReviewDecision, error) {
	return ReviewAccept, nil
}

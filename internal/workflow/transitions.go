package workflow

import (
	"toolforge/internal/llm"
	"toolforge/internal/registry"
)

// afterPlan decides where an accepted plan goes. Building always precedes
// reviewing: a run never reaches execution while a needed tool is missing
// from disk or still flagged.
func afterPlan(st *RunState, sandboxDir string) Node {
	for _, td := range st.NeededTools {
		if !td.Exists(sandboxDir) {
			return NodeBuildTool
		}
	}
	for _, td := range st.NeededTools {
		if td.NeedsReview {
			return NodeReviewTools
		}
	}
	return NodeResultsPreCheck
}

// afterPreCheck gates execution on the freshly reloaded registry: flagged
// tools go back to review, tools the reload rejected send the run back to
// the planner, and only a fully usable set reaches execution.
func afterPreCheck(st *RunState, reg *registry.Registry) Node {
	for _, td := range st.NeededTools {
		if td.NeedsReview {
			return NodeReviewTools
		}
	}
	for _, td := range st.NeededTools {
		if !reg.Has(td.Name) {
			return NodePlanProject
		}
	}
	return NodeGetResults
}

// afterResults classifies the execution envelope. Authentication failures
// end the run unconditionally: no code change can mint credentials.
func afterResults(env *llm.ResultEnvelope) Node {
	if env == nil || env.Error == nil {
		return NodeFormatOutput
	}
	if env.Error.Classifier == llm.ClassifierAuthentication {
		return NodeSaveState
	}
	if env.Error.NeedsReview {
		return NodeReviewTools
	}
	return NodeFormatOutput
}

// Package workflow is the task orchestration engine: a directed state
// machine sequencing planning, code generation, review, dependency sync,
// execution and result classification, with retry and human-intervention
// points. One mutable RunState threads through every node.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"toolforge/internal/llm"
	"toolforge/internal/tool"
)

// Node names one state of the workflow graph. Transition functions return
// Node values, so the transition table is checked at compile time instead
// of resolving strings against a node registry.
type Node string

const (
	NodeSetupSandbox    Node = "setup_sandbox"
	NodePlanProject     Node = "plan_project"
	NodeBuildTool       Node = "build_tool"
	NodeReviewTools     Node = "review_tools"
	NodeResultsPreCheck Node = "get_results_pre_check"
	NodeGetResults      Node = "get_results"
	NodeFormatOutput    Node = "format_output"
	NodeSaveState       Node = "save_state"
	NodeEnd             Node = "end"
)

// Run-aborting conditions. Everything wrapped in one of these unwinds to
// save_state and terminates the run without further recovery.
var (
	ErrUserAbort        = errors.New("user aborted the run")
	ErrIterationCeiling = errors.New("iteration ceiling exceeded")
	ErrMissingPlan      = errors.New("plan is missing or empty")
	ErrAuthFailure      = errors.New("authentication failure")
	ErrSnapshotSchema   = errors.New("incompatible snapshot schema")
)

// SnapshotSchemaVersion guards resumption: snapshots written by an
// incompatible engine are rejected rather than silently misread.
const SnapshotSchemaVersion = 1

// RunState is the single value threaded through the workflow for one
// end-to-end request. Nodes read what they need, perform their effect and
// mutate their slice of the state; conditional edges inspect the result.
type RunState struct {
	SchemaVersion int    `json:"schema_version"`
	SessionID     string `json:"session_id"`

	// CallHistory is an append-only audit log of executed node names.
	// It is never consulted for control flow.
	CallHistory []string `json:"call_history"`

	CleanRun    bool   `json:"clean_run"`
	SandboxPath string `json:"sandbox_path"`
	UserRequest string `json:"user_request"`

	Plan         *llm.PlanResponse   `json:"plan,omitempty"`
	Dependencies []string            `json:"dependencies"`
	NeededTools  []*tool.Description `json:"needed_tools"`
	FinalResult  *llm.ResultEnvelope `json:"final_result,omitempty"`
	UserFeedback string              `json:"user_feedback,omitempty"`
}

// SaveSnapshot serializes the state to path. Called on every save_state
// visit and after every tool-lifecycle mutation so a crash loses nothing.
func SaveSnapshot(path string, st *RunState) error {
	st.SchemaVersion = SnapshotSchemaVersion
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a prior snapshot, rejecting incompatible schemas.
func LoadSnapshot(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if st.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: snapshot is v%d, engine wants v%d",
			ErrSnapshotSchema, st.SchemaVersion, SnapshotSchemaVersion)
	}
	return &st, nil
}

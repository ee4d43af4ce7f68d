package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"toolforge/internal/config"
	"toolforge/internal/llm"
	"toolforge/internal/logging"
	"toolforge/internal/registry"
	"toolforge/internal/sandbox"
	"toolforge/internal/tool"
)

// ToolWatcher is the optional hot-reload companion. The engine starts it
// once the sandbox exists and stops it when the run ends.
type ToolWatcher interface {
	Start(ctx context.Context) error
	Stop()
}

// Engine owns the node graph, the transition functions, the call history
// and the run lifecycle. It executes single-threaded: one node at a time,
// each to completion, no re-entrancy. The watcher is the only concurrent
// element and only touches the registry, which carries its own lock.
type Engine struct {
	settings   config.Settings
	client     llm.Client
	registry   *registry.Registry
	sandbox    *sandbox.Manager
	lifecycle  *Lifecycle
	interactor Interactor
	watcher    ToolWatcher
	logger     *zap.Logger

	state          *RunState
	steps          int
	watcherStarted bool
}

// NewEngine composes a run. The previous snapshot, when compatible, seeds
// the dependency set so the sandbox carries over between runs.
func NewEngine(settings config.Settings, userRequest string, client llm.Client, reg *registry.Registry, mgr *sandbox.Manager, interactor Interactor, logger *zap.Logger) *Engine {
	if interactor == nil {
		interactor = AutoInteractor{}
	}
	logger = logging.OrNop(logger)

	deps := append([]string{}, settings.BaseDependencies...)
	if prior, err := LoadSnapshot(settings.StatePath); err == nil && len(prior.Dependencies) > 0 {
		deps = prior.Dependencies
	} else if err != nil && errors.Is(err, ErrSnapshotSchema) {
		logger.Warn("ignoring incompatible snapshot", zap.Error(err))
	}
	sort.Strings(deps)

	return &Engine{
		settings:   settings,
		client:     client,
		registry:   reg,
		sandbox:    mgr,
		lifecycle:  NewLifecycle(client, mgr, reg, interactor, settings.BaseDependencies, logger),
		interactor: interactor,
		logger:     logger,
		state: &RunState{
			SchemaVersion: SnapshotSchemaVersion,
			SessionID:     mgr.Session(),
			CleanRun:      settings.CleanRun,
			SandboxPath:   settings.SandboxPath,
			UserRequest:   userRequest,
			Dependencies:  deps,
		},
	}
}

// SetWatcher attaches a hot-reload watcher. Must be called before Run.
func (e *Engine) SetWatcher(w ToolWatcher) { e.watcher = w }

// State exposes the run state, chiefly for tests and post-run inspection.
func (e *Engine) State() *RunState { return e.state }

// Run drives the graph from setup_sandbox to the terminal state. Fatal
// errors and user aborts short-circuit to save_state so the snapshot always
// reflects the last completed node; the error is still returned.
func (e *Engine) Run(ctx context.Context) (*RunState, error) {
	defer func() {
		if e.watcherStarted {
			e.watcher.Stop()
		}
	}()

	node := NodeSetupSandbox
	var runErr error
	for node != NodeEnd {
		if node != NodeSaveState && e.steps >= e.settings.MaxIterations {
			runErr = fmt.Errorf("%w: %d node executions", ErrIterationCeiling, e.steps)
			e.logger.Error("run aborted", zap.Error(runErr))
			node = NodeSaveState
			continue
		}

		e.state.CallHistory = append(e.state.CallHistory, string(node))
		e.steps++
		e.logger.Debug("executing node", zap.String("node", string(node)))

		next, err := e.step(ctx, node)
		if err != nil {
			if node == NodeSaveState {
				// Persistence itself failed; nothing left to unwind to.
				return e.state, errors.Join(runErr, err)
			}
			if errors.Is(err, ErrUserAbort) {
				e.logger.Warn("run aborted by user", zap.Error(err))
			} else {
				e.logger.Error("fatal error, unwinding to save_state", zap.Error(err))
			}
			runErr = err
			node = NodeSaveState
			continue
		}
		node = next
	}
	return e.state, runErr
}

func (e *Engine) step(ctx context.Context, node Node) (Node, error) {
	switch node {
	case NodeSetupSandbox:
		return e.setupSandbox(ctx)
	case NodePlanProject:
		return e.planProject(ctx)
	case NodeBuildTool:
		return e.buildTool(ctx)
	case NodeReviewTools:
		return e.reviewTools(ctx)
	case NodeResultsPreCheck:
		return e.resultsPreCheck(ctx)
	case NodeGetResults:
		return e.getResults(ctx)
	case NodeFormatOutput:
		return e.formatOutput(ctx)
	case NodeSaveState:
		return e.saveState()
	}
	return NodeEnd, fmt.Errorf("unknown node %q", node)
}

// setupSandbox prepares the isolated environment and loads whatever tools
// survive from previous runs.
func (e *Engine) setupSandbox(ctx context.Context) (Node, error) {
	if err := e.sandbox.EnsureSandbox(ctx, e.settings.CleanRun); err != nil {
		return NodeEnd, err
	}
	if err := e.sandbox.EnsureScaffold(ctx); err != nil {
		return NodeEnd, err
	}
	if err := e.sandbox.EnsureBranch(ctx, e.settings.Branch); err != nil {
		return NodeEnd, err
	}
	e.registry.Reload(e.sandbox.ToolsDir())
	if e.watcher != nil {
		if err := e.watcher.Start(ctx); err != nil {
			return NodeEnd, err
		}
		e.watcherStarted = true
	}
	return NodePlanProject, nil
}

// planProject asks the planner which tools the request needs. The planner
// is the one node that may repeat itself: a rejected plan with feedback
// loops straight back here, bounded by the overall iteration ceiling.
func (e *Engine) planProject(ctx context.Context) (Node, error) {
	plan, err := e.client.Plan(ctx, e.state.UserRequest, e.registry.Describe(), e.state.UserFeedback)
	if err != nil {
		return NodeEnd, err
	}
	e.state.UserFeedback = ""

	broken := e.registry.Broken()
	seen := make(map[string]bool, len(plan.NeededTools))
	needed := make([]*tool.Description, 0, len(plan.NeededTools))
	for i := range plan.NeededTools {
		td := plan.NeededTools[i]
		if !tool.ValidName(td.Name) {
			return NodeEnd, fmt.Errorf("planner produced invalid tool name %q", td.Name)
		}
		if seen[td.Name] {
			e.logger.Warn("planner repeated a tool, dropping duplicate", zap.String("tool", td.Name))
			continue
		}
		seen[td.Name] = true
		if _, err := td.Refresh(e.sandbox.Dir()); err != nil {
			return NodeEnd, err
		}
		if _, bad := broken[td.Name]; bad {
			td.NeedsReview = true
		}
		if e.settings.ReviewTools {
			td.NeedsReview = true
		}
		needed = append(needed, &td)
	}
	e.state.Plan = plan
	e.state.NeededTools = needed

	e.logger.Info("plan ready",
		zap.Int("steps", len(plan.Steps)),
		zap.Strings("needed_tools", toolNames(needed)))

	accepted, feedback, err := e.interactor.ConfirmPlan(plan)
	if err != nil {
		return NodeEnd, err
	}
	if !accepted {
		if strings.TrimSpace(feedback) == "" {
			return NodeEnd, fmt.Errorf("%w: plan rejected", ErrUserAbort)
		}
		e.state.UserFeedback = feedback
		return NodePlanProject, nil
	}
	return afterPlan(e.state, e.sandbox.Dir()), nil
}

func (e *Engine) buildTool(ctx context.Context) (Node, error) {
	if err := e.lifecycle.Build(ctx, e.state); err != nil {
		return NodeEnd, err
	}
	e.persist()
	return NodeReviewTools, nil
}

func (e *Engine) reviewTools(ctx context.Context) (Node, error) {
	err := e.lifecycle.Review(ctx, e.state)
	e.persist()
	if err != nil {
		return NodeEnd, err
	}
	return NodeResultsPreCheck, nil
}

// resultsPreCheck is the last gate before execution: dependencies are
// reconciled and the registry is rebuilt so the usable set reflects disk.
func (e *Engine) resultsPreCheck(ctx context.Context) (Node, error) {
	if _, err := e.lifecycle.ReconcileDependencies(ctx, e.state); err != nil {
		return NodeEnd, err
	}
	e.registry.Reload(e.sandbox.ToolsDir())
	return afterPreCheck(e.state, e.registry), nil
}

// getResults executes the plan through the tool-calling loop and classifies
// the outcome.
func (e *Engine) getResults(ctx context.Context) (Node, error) {
	if err := e.sandbox.CommitLeftovers(ctx, "Request: "+e.state.UserRequest); err != nil {
		return NodeEnd, err
	}

	bindings := make([]llm.ToolBinding, 0, len(e.state.NeededTools))
	for _, td := range e.state.NeededTools {
		loaded := e.registry.Get(td.Name)
		if loaded == nil {
			return NodeEnd, fmt.Errorf("tool %q missing from registry at execution time", td.Name)
		}
		desc := td.Description
		if desc == "" {
			desc = loaded.Description
		}
		bindings = append(bindings, llm.ToolBinding{
			Name:        loaded.Name,
			Description: desc,
			Invoke:      loaded.Invoke,
		})
	}

	raw, err := e.client.Answer(ctx, e.state.UserRequest, bindings)
	if err != nil {
		return NodeEnd, err
	}

	env, err := CoerceEnvelope(ctx, e.client, raw)
	if err != nil {
		// Keep the raw output for human inspection before aborting.
		e.state.FinalResult = &llm.ResultEnvelope{FinalResult: raw}
		return NodeEnd, err
	}
	e.state.FinalResult = env
	e.persist()

	next := afterResults(env)
	if next == NodeSaveState {
		// Credentials cannot be fixed by code changes; never retry.
		return NodeEnd, fmt.Errorf("%w: tool %q: %s",
			ErrAuthFailure, env.Error.ToolName, env.Error.Message)
	}
	if next == NodeReviewTools {
		Attribute(env, e.state, e.registry)
	}
	return next, nil
}

// formatOutput re-renders the final result in the requested format.
func (e *Engine) formatOutput(ctx context.Context) (Node, error) {
	env := e.state.FinalResult
	if env == nil || env.FinalResult == "" {
		return NodeSaveState, nil
	}
	formatted, err := e.client.FormatOutput(ctx, e.state.UserRequest, env.FinalResult, string(e.settings.OutputFormat))
	if err != nil {
		return NodeEnd, err
	}
	e.state.FinalResult = &llm.ResultEnvelope{FinalResult: formatted, Error: env.Error}
	e.persist()
	return NodeSaveState, nil
}

// saveState is the terminal persistence node, reached normally or through
// any abort.
func (e *Engine) saveState() (Node, error) {
	if err := SaveSnapshot(e.settings.StatePath, e.state); err != nil {
		return NodeEnd, err
	}
	if env := e.state.FinalResult; env != nil && env.FinalResult != "" {
		if err := os.WriteFile(e.settings.AnswerPath(), []byte(env.FinalResult), 0o644); err != nil {
			return NodeEnd, fmt.Errorf("write answer file: %w", err)
		}
	}
	e.writeRunManifest()
	return NodeEnd, nil
}

// writeRunManifest records which tools served this request next to the
// tools themselves, for replay outside the engine. Best effort.
func (e *Engine) writeRunManifest() {
	names := strings.Join(toolNames(e.state.NeededTools), ",")
	if err := os.WriteFile(filepath.Join(e.sandbox.Dir(), "tools.txt"), []byte(names), 0o644); err != nil {
		e.logger.Warn("cannot write tools.txt", zap.Error(err))
	}
	if err := os.WriteFile(filepath.Join(e.sandbox.Dir(), "prompt.md"), []byte(e.state.UserRequest), 0o644); err != nil {
		e.logger.Warn("cannot write prompt.md", zap.Error(err))
	}
}

// persist snapshots the run state after a mutation. Mid-run snapshot
// failures are surfaced but do not abort: the terminal save will fail
// loudly if the problem persists.
func (e *Engine) persist() {
	if err := SaveSnapshot(e.settings.StatePath, e.state); err != nil {
		e.logger.Warn("snapshot failed", zap.Error(err))
	}
}

func toolNames(tools []*tool.Description) []string {
	names := make([]string, 0, len(tools))
	for _, td := range tools {
		names = append(names, td.Name)
	}
	return names
}

package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"toolforge/internal/llm"
	"toolforge/internal/logging"
	"toolforge/internal/registry"
	"toolforge/internal/sandbox"
)

// Lifecycle drives the build and review loop for the tools a plan needs,
// feeding resulting dependency changes back into the sandbox manager.
type Lifecycle struct {
	llm        llm.Client
	sandbox    *sandbox.Manager
	registry   *registry.Registry
	interactor Interactor
	baseDeps   []string
	logger     *zap.Logger
}

// NewLifecycle wires the build/review loop to its collaborators.
func NewLifecycle(client llm.Client, mgr *sandbox.Manager, reg *registry.Registry, interactor Interactor, baseDeps []string, logger *zap.Logger) *Lifecycle {
	if interactor == nil {
		interactor = AutoInteractor{}
	}
	return &Lifecycle{
		llm:        client,
		sandbox:    mgr,
		registry:   reg,
		interactor: interactor,
		baseDeps:   baseDeps,
		logger:     logging.OrNop(logger),
	}
}

// Build generates source for every needed tool whose artifact is missing.
// Not idempotent by design: each call asks the generator afresh, but only
// for tools currently absent from disk.
func (l *Lifecycle) Build(ctx context.Context, st *RunState) error {
	if st.Plan == nil || st.Plan.Explanation == "" {
		return fmt.Errorf("%w: build requires a plan", ErrMissingPlan)
	}
	dir := l.sandbox.Dir()
	for _, td := range st.NeededTools {
		if td.Exists(dir) {
			continue
		}
		l.logger.Info("building tool", zap.String("tool", td.Name))
		code, err := l.llm.GenerateTool(ctx, td.Name, td.Description, st.Plan.Explanation)
		if err != nil {
			return err
		}
		td.Code = stripFences(code.Code)
		td.Dependencies = code.Dependencies
		td.NeedsReview = true
		if err := td.Save(dir); err != nil {
			return err
		}
		if err := l.sandbox.CommitTool(ctx, td, "New tool: "+td.Name); err != nil {
			return err
		}
	}
	return nil
}

// Review runs the AI reviewer over every flagged tool. A passing review
// clears the flag; an updated tool keeps it, so the loop re-reviews the
// correction on the next visit. A human may intercept each update with
// accept, reject-and-delete, or abort.
func (l *Lifecycle) Review(ctx context.Context, st *RunState) error {
	if st.Plan == nil || st.Plan.Explanation == "" {
		return fmt.Errorf("%w: review requires a plan", ErrMissingPlan)
	}
	dir := l.sandbox.Dir()
	kept := st.NeededTools[:0]
	var abortErr error

	for _, td := range st.NeededTools {
		if abortErr != nil || !td.NeedsReview {
			kept = append(kept, td)
			continue
		}
		failure := l.registry.FailureFor(td.Name)
		td.NeedsReview = false

		review, err := l.llm.ReviewTool(ctx, td.Code, st.Plan.Explanation, failure, "")
		if err != nil {
			return err
		}
		if !review.Updated || review.UpdatedCode == "" {
			l.logger.Info("tool review passed", zap.String("tool", td.Name))
			kept = append(kept, td)
			continue
		}

		l.logger.Warn("tool review did not pass",
			zap.String("tool", td.Name),
			zap.String("issues", review.Issues))

		decision, err := l.interactor.ReviewTool(td, review)
		if err != nil {
			return err
		}
		switch decision {
		case ReviewAbort:
			abortErr = fmt.Errorf("%w: during review of %s", ErrUserAbort, td.Name)
			td.NeedsReview = true
			kept = append(kept, td)
		case ReviewReject:
			l.logger.Info("tool rejected, deleting", zap.String("tool", td.Name))
			if err := td.Delete(dir); err != nil {
				return err
			}
			// Dropped from neededTools; the pre-check will notice the
			// missing tool and return control to the planner.
		case ReviewAccept:
			td.Code = stripFences(review.UpdatedCode)
			td.NeedsReview = true
			if err := td.Save(dir); err != nil {
				return err
			}
			msg := "Revised tool: " + td.Name
			if review.Issues != "" {
				msg += "\n" + review.Issues
			}
			if err := l.sandbox.CommitTool(ctx, td, msg); err != nil {
				return err
			}
			kept = append(kept, td)
		}
	}
	st.NeededTools = kept
	return abortErr
}

// ReconcileDependencies recomputes the union of base dependencies and every
// tool's declared dependencies, then asks the sandbox to sync. The sync
// itself compares against the manifest, so an unchanged union is free.
func (l *Lifecycle) ReconcileDependencies(ctx context.Context, st *RunState) (bool, error) {
	union := make(map[string]bool, len(l.baseDeps))
	for _, dep := range l.baseDeps {
		union[dep] = true
	}
	for _, td := range st.NeededTools {
		for _, dep := range td.Dependencies {
			union[dep] = true
		}
	}
	deps := make([]string, 0, len(union))
	for dep := range union {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	changed := !equalStrings(deps, st.Dependencies)
	if changed {
		l.logger.Info("dependency set changed", zap.Strings("dependencies", deps))
		st.Dependencies = deps
	}
	if err := l.sandbox.SyncDependencies(ctx, st.Dependencies); err != nil {
		return changed, err
	}
	return changed, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// stripFences removes markdown code fences models sometimes emit despite
// instructions.
func stripFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return code
	}
	trimmed = strings.TrimPrefix(trimmed, "```go")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed) + "\n"
}

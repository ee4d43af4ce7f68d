package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"

	"toolforge/internal/logging"
	"toolforge/internal/tool"
)

// ErrSyncFailed marks a dependency sync that left the environment in an
// unknown state. It is fatal: a half-applied environment is unsafe to
// continue from.
var ErrSyncFailed = errors.New("dependency sync failed")

const manifestName = "go.mod"

// Manager owns the sandbox directory lifecycle: creation, project scaffold,
// dependency synchronization and commit boundaries. Every operation is
// idempotent except where noted.
type Manager struct {
	dir     string
	runner  Runner
	git     *Git
	session string
	logger  *zap.Logger
}

// NewManager creates a sandbox manager for dir. session is stamped into
// every commit message for cross-run audit.
func NewManager(dir string, runner Runner, session string, logger *zap.Logger) *Manager {
	logger = logging.OrNop(logger)
	return &Manager{
		dir:     dir,
		runner:  runner,
		git:     NewGit(runner, dir, logger),
		session: session,
		logger:  logger,
	}
}

// Dir returns the sandbox root.
func (m *Manager) Dir() string { return m.dir }

// ToolsDir returns the directory holding generated tool sources.
func (m *Manager) ToolsDir() string { return filepath.Join(m.dir, tool.SourceDirName) }

// MetadataDir returns the directory holding tool metadata twins.
func (m *Manager) MetadataDir() string { return filepath.Join(m.dir, tool.MetadataDirName) }

// Git exposes the version-control collaborator.
func (m *Manager) Git() *Git { return m.git }

// Session returns the run identifier stamped into commit messages.
func (m *Manager) Session() string { return m.session }

// EnsureSandbox makes the sandbox directory exist. When clean is set an
// existing sandbox is destroyed first.
func (m *Manager) EnsureSandbox(ctx context.Context, clean bool) error {
	if clean {
		if _, err := os.Stat(m.dir); err == nil {
			m.logger.Info("removing old sandbox", zap.String("dir", m.dir))
			if err := os.RemoveAll(m.dir); err != nil {
				return fmt.Errorf("remove sandbox: %w", err)
			}
		}
	}
	if _, err := os.Stat(m.dir); os.IsNotExist(err) {
		m.logger.Info("creating sandbox", zap.String("dir", m.dir))
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return fmt.Errorf("create sandbox: %w", err)
		}
	}
	return nil
}

// EnsureScaffold initializes the module manifest, the tool directories, and
// the local repository with its initial commit. Calling it on an already
// scaffolded sandbox is a no-op.
func (m *Manager) EnsureScaffold(ctx context.Context) error {
	for _, dir := range []string{m.ToolsDir(), m.MetadataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(m.manifestPath()); os.IsNotExist(err) {
		m.logger.Info("initializing sandbox module")
		res, err := m.runner.Run(ctx, m.dir, "go", "mod", "init", "sandbox")
		if err != nil {
			return fmt.Errorf("go mod init: %w", err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("go mod init exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
	}

	if !m.git.IsRepo() {
		m.logger.Info("initializing sandbox repository")
		if err := m.git.Init(ctx); err != nil {
			return err
		}
		// The initial commit anchors the history for every later
		// leftover commit.
		if err := m.CommitLeftovers(ctx, "Initial sandbox scaffold"); err != nil {
			return err
		}
	}
	return nil
}

// DeclaredDependencies reads the manifest's current requirement list.
func (m *Manager) DeclaredDependencies() ([]string, error) {
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	f, err := modfile.Parse(manifestName, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	deps := make([]string, 0, len(f.Require))
	for _, req := range f.Require {
		deps = append(deps, req.Mod.Path)
	}
	sort.Strings(deps)
	return deps, nil
}

// SyncDependencies reconciles the manifest against the requested set.
// The second call with an unchanged set performs zero subprocess work.
// Any non-zero exit is ErrSyncFailed and must abort the run.
func (m *Manager) SyncDependencies(ctx context.Context, requested []string) error {
	declared, err := m.DeclaredDependencies()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	have := make(map[string]bool, len(declared))
	for _, dep := range declared {
		have[dep] = true
	}
	want := make(map[string]bool, len(requested))
	var toAdd []string
	for _, dep := range requested {
		want[dep] = true
		if !have[dep] {
			toAdd = append(toAdd, dep)
		}
	}
	var toRemove []string
	for _, dep := range declared {
		if !want[dep] {
			toRemove = append(toRemove, dep)
		}
	}

	if len(toAdd) == 0 && len(toRemove) == 0 {
		m.logger.Debug("dependencies already in sync", zap.Int("count", len(declared)))
		return nil
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)

	if len(toAdd) > 0 {
		m.logger.Info("adding dependencies", zap.Strings("modules", toAdd))
		args := []string{"get"}
		for _, dep := range toAdd {
			args = append(args, dep+"@latest")
		}
		if err := m.runGo(ctx, args...); err != nil {
			return err
		}
	}
	if len(toRemove) > 0 {
		m.logger.Info("removing dependencies", zap.Strings("modules", toRemove))
		args := []string{"mod", "edit"}
		for _, dep := range toRemove {
			args = append(args, "-droprequire="+dep)
		}
		if err := m.runGo(ctx, args...); err != nil {
			return err
		}
	}
	// No tidy here: tidy prunes requirements nothing in the sandbox imports
	// yet, which would erase the additions and break sync idempotence.
	return nil
}

func (m *Manager) runGo(ctx context.Context, args ...string) error {
	res, err := m.runner.Run(ctx, m.dir, "go", args...)
	if err != nil {
		return fmt.Errorf("%w: go %s: %v", ErrSyncFailed, args[0], err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: go %s exited %d: %s",
			ErrSyncFailed, strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// CommitLeftovers stages and commits anything untracked or modified in the
// working tree under one commit. A clean tree is a no-op.
func (m *Manager) CommitLeftovers(ctx context.Context, message string) error {
	status, err := m.git.Status(ctx)
	if err != nil {
		return err
	}
	if status.Empty() {
		return nil
	}
	paths := append(append([]string{}, status.Untracked...), status.Modified...)
	if err := m.git.Add(ctx, paths...); err != nil {
		return err
	}
	return m.git.Commit(ctx, m.commitMessage(message))
}

// CommitTool stages and commits one tool's artifact pair.
func (m *Manager) CommitTool(ctx context.Context, t *tool.Description, message string) error {
	if err := m.git.Add(ctx, t.SourcePath(m.dir), t.MetadataPath(m.dir)); err != nil {
		return err
	}
	return m.git.Commit(ctx, m.commitMessage(message))
}

// EnsureBranch checks out the named branch, creating it from the current
// branch when it does not exist yet.
func (m *Manager) EnsureBranch(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	branches, err := m.git.Branches(ctx)
	if err != nil {
		return err
	}
	for _, branch := range branches {
		if branch == name {
			return m.git.Checkout(ctx, name, false)
		}
	}
	return m.git.Checkout(ctx, name, true)
}

func (m *Manager) commitMessage(message string) string {
	return fmt.Sprintf("Session: %s - %s", m.session, message)
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.dir, manifestName)
}

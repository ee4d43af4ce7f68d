package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"toolforge/internal/logging"
)

// Commits are authored by the agent itself, never the operator's identity.
const (
	gitAuthorName  = "toolforge"
	gitAuthorEmail = "toolforge@localhost"
)

// Status is the parsed porcelain status of the working tree.
type Status struct {
	Untracked []string
	Modified  []string
}

// Empty reports whether the working tree is clean.
func (s *Status) Empty() bool {
	return len(s.Untracked) == 0 && len(s.Modified) == 0
}

// Git is the version-control collaborator. Only additive operations are
// exposed; nothing here can rewrite history.
type Git struct {
	runner Runner
	dir    string
	logger *zap.Logger
}

// NewGit creates a git collaborator rooted at dir.
func NewGit(runner Runner, dir string, logger *zap.Logger) *Git {
	return &Git{runner: runner, dir: dir, logger: logging.OrNop(logger)}
}

func (g *Git) run(ctx context.Context, args ...string) (*Result, error) {
	res, err := g.runner.Run(ctx, g.dir, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("git %s exited %d: %s", args[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

// IsRepo reports whether dir already has a repository.
func (g *Git) IsRepo() bool {
	info, err := os.Stat(filepath.Join(g.dir, ".git"))
	return err == nil && info.IsDir()
}

// Init creates the local repository.
func (g *Git) Init(ctx context.Context) error {
	_, err := g.run(ctx, "init")
	return err
}

// Status parses `git status --porcelain` into untracked and modified paths.
func (g *Git) Status(ctx context.Context) (*Status, error) {
	res, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	status := &Status{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if strings.HasPrefix(line, "??") {
			status.Untracked = append(status.Untracked, path)
		} else {
			status.Modified = append(status.Modified, path)
		}
	}
	return status, nil
}

// Add stages the given paths.
func (g *Git) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := g.run(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Commit records staged changes under the fixed agent author.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx,
		"-c", "user.name="+gitAuthorName,
		"-c", "user.email="+gitAuthorEmail,
		"commit", "-m", message)
	if err == nil {
		g.logger.Debug("committed", zap.String("message", message))
	}
	return err
}

// Checkout switches branches, creating the branch first when create is set.
func (g *Git) Checkout(ctx context.Context, branch string, create bool) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)
	_, err := g.run(ctx, args...)
	return err
}

// Branches lists local branch names.
func (g *Git) Branches(ctx context.Context) ([]string, error) {
	res, err := g.run(ctx, "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			branches = append(branches, name)
		}
	}
	return branches, nil
}

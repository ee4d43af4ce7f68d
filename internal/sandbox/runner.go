// Package sandbox manages the isolated execution environment: one directory
// holding a Go module manifest, a local git repository, and the generated
// tool sources. All external effects go through subprocess collaborators
// (git and the go tool) so state stays inspectable and idempotent.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"go.uber.org/zap"

	"toolforge/internal/logging"
)

// Result captures a finished subprocess invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external commands. Injectable so tests can intercept
// every git/go invocation.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (*Result, error)
}

// ExecRunner runs commands on the host with exec.CommandContext.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates the real subprocess runner.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logging.OrNop(logger)}
}

// Run blocks until the command exits. A non-zero exit code is not an error
// here; callers decide what failure means.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.String("dir", dir))

	err := cmd.Run()
	result := &Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

package sandbox

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func (c call) String() string { return c.name + " " + strings.Join(c.args, " ") }

// fakeRunner records every subprocess invocation and answers from a script.
type fakeRunner struct {
	calls   []call
	respond func(name string, args []string) (*Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (*Result, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.respond != nil {
		return f.respond(name, args)
	}
	return &Result{}, nil
}

func (f *fakeRunner) commandLines() []string {
	lines := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		lines = append(lines, c.String())
	}
	return lines
}

func TestGitStatus(t *testing.T) {
	runner := &fakeRunner{respond: func(name string, args []string) (*Result, error) {
		return &Result{Stdout: "?? tools/get_now.go\n?? metadata/get_now.json\n M go.mod\n"}, nil
	}}
	g := NewGit(runner, t.TempDir(), nil)

	status, err := g.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tools/get_now.go", "metadata/get_now.json"}, status.Untracked)
	assert.Equal(t, []string{"go.mod"}, status.Modified)
	assert.False(t, status.Empty())
}

func TestGitStatusCleanTree(t *testing.T) {
	runner := &fakeRunner{respond: func(string, []string) (*Result, error) {
		return &Result{Stdout: ""}, nil
	}}
	g := NewGit(runner, t.TempDir(), nil)

	status, err := g.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Empty())
}

func TestGitCommitUsesAgentAuthor(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGit(runner, t.TempDir(), nil)

	require.NoError(t, g.Commit(context.Background(), "New tool: get_now"))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"-c", "user.name=toolforge",
		"-c", "user.email=toolforge@localhost",
		"commit", "-m", "New tool: get_now",
	}, runner.calls[0].args)
}

func TestGitNonZeroExitIsError(t *testing.T) {
	runner := &fakeRunner{respond: func(string, []string) (*Result, error) {
		return &Result{ExitCode: 128, Stderr: "fatal: not a git repository"}, nil
	}}
	g := NewGit(runner, t.TempDir(), nil)

	err := g.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestGitBranches(t *testing.T) {
	runner := &fakeRunner{respond: func(string, []string) (*Result, error) {
		return &Result{Stdout: "main\nrequests/get-time\n\n"}, nil
	}}
	g := NewGit(runner, t.TempDir(), nil)

	branches, err := g.Branches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "requests/get-time"}, branches)
}

func TestGitAddNothingIsNoop(t *testing.T) {
	runner := &fakeRunner{respond: func(string, []string) (*Result, error) {
		return nil, fmt.Errorf("should not run")
	}}
	g := NewGit(runner, t.TempDir(), nil)

	assert.NoError(t, g.Add(context.Background()))
	assert.Empty(t, runner.calls)
}

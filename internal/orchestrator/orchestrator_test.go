// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/artifacts"
	"conductor/internal/engine"
	"conductor/internal/failure"
	"conductor/internal/filelock"
	"conductor/internal/integration"
	"conductor/internal/scheduler"
	"conductor/internal/supervisor"
	"conductor/internal/taskgraph"
	"conductor/internal/worktree"
)

// gitWorktreeVCS provisions real, minimal git repositories for each task so
// the supervisor's commit-count gate (which shells out to git) has
// something genuine to count, without needing a real shared repository.
type gitWorktreeVCS struct {
	commitsPerTask map[string]int
}

func (v *gitWorktreeVCS) runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com")
	return cmd.Run()
}

func (v *gitWorktreeVCS) Add(taskID, branch, baseBranch, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	steps := [][]string{
		{"init", "-q"},
		{"commit", "--allow-empty", "-q", "-m", "base"},
		{"branch", baseBranch},
		{"checkout", "-q", "-b", branch},
	}
	for _, args := range steps {
		if err := v.runGit(path, args...); err != nil {
			return err
		}
	}
	commits, ok := v.commitsPerTask[taskID]
	if !ok {
		commits = 1
	}
	for i := 0; i < commits; i++ {
		if err := v.runGit(path, "commit", "--allow-empty", "-q", "-m", "work"); err != nil {
			return err
		}
	}
	return nil
}

func (v *gitWorktreeVCS) Remove(path string) error { return os.RemoveAll(path) }
func (v *gitWorktreeVCS) Prune() error              { return nil }
func (v *gitWorktreeVCS) List() ([]worktree.Info, error) { return nil, nil }

// fakeAgentEngine drives the supervisor with per-task scripted behavior,
// keyed off the "Task ID: <id>" line BuildPrompt always emits.
type fakeAgentEngine struct {
	failWith map[string]string
	block    map[string]bool
}

func taskIDFromPrompt(prompt string) string {
	const marker = "Task ID: "
	idx := strings.Index(prompt, marker)
	if idx < 0 {
		return ""
	}
	rest := prompt[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return rest
}

func (f *fakeAgentEngine) Execute(ctx context.Context, prompt, _ string, _ engine.Options) (engine.Result, error) {
	taskID := taskIDFromPrompt(prompt)
	if f.block != nil && f.block[taskID] {
		<-ctx.Done()
		return engine.Result{}, ctx.Err()
	}
	if f.failWith != nil {
		if msg, ok := f.failWith[taskID]; ok {
			return engine.Result{Success: false, Output: "partial", ExitError: fakeErr(msg)}, nil
		}
	}
	return engine.Result{Success: true, Output: "did the work"}, nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

type fakeIntegrationVCS struct {
	merged         []string
	deleted        []string
	mergedIntoBase bool
}

func (f *fakeIntegrationVCS) CreateBranch(name, fromBase string) error { return nil }
func (f *fakeIntegrationVCS) Merge(branch string) error {
	f.merged = append(f.merged, branch)
	return nil
}
func (f *fakeIntegrationVCS) MergeAbort() error                       { return nil }
func (f *fakeIntegrationVCS) ConflictedPaths() ([]string, error)      { return nil, nil }
func (f *fakeIntegrationVCS) IsClean() (bool, error)                  { return true, nil }
func (f *fakeIntegrationVCS) CommitCount(string) (int, error)         { return 1, nil }
func (f *fakeIntegrationVCS) ChangedFiles(string) ([]string, error)   { return nil, nil }
func (f *fakeIntegrationVCS) DeleteBranch(name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}
func (f *fakeIntegrationVCS) MergeIntoBase(string, string) error {
	f.mergedIntoBase = true
	return nil
}

type fakeReviewEngine struct {
	reviewJSON string
}

func (f *fakeReviewEngine) Execute(_ context.Context, _ string, outputFile string, _ engine.Options) (engine.Result, error) {
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(f.reviewJSON), 0o644); err != nil {
			return engine.Result{}, err
		}
	}
	return engine.Result{Success: true, Output: "ok"}, nil
}

// harness bundles one fully wired Orchestrator plus the fakes a test wants
// to assert against.
type harness struct {
	orch *Orchestrator
	vcs  *gitWorktreeVCS
	ivcs *fakeIntegrationVCS
}

func newHarness(t *testing.T, tasks []taskgraph.Task, agentEngine *fakeAgentEngine, reviewJSON string) *harness {
	t.Helper()

	doc := taskgraph.Document{Version: taskgraph.SchemaVersion, Tasks: tasks}
	graph, err := taskgraph.NewStore(doc)
	require.NoError(t, err)

	locks := filelock.NewMemoryRegistry()
	sched, err := scheduler.New(graph, locks)
	require.NoError(t, err)

	gitVCS := &gitWorktreeVCS{commitsPerTask: map[string]int{}}
	wtManager := worktree.NewManager(gitVCS, t.TempDir())

	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)

	sup := supervisor.New(agentEngine, store, supervisor.Config{BaseBranch: "main"}, nil)

	failures := failure.NewController()

	ivcs := &fakeIntegrationVCS{}
	pipeline := integration.New(ivcs, &fakeReviewEngine{reviewJSON: reviewJSON}, store, graph,
		integration.Config{BaseBranch: "main", IntegrationBranch: "integration"}, t.TempDir())

	orch := New(graph, sched, wtManager, sup, store, failures, pipeline, Config{
		MaxConcurrent:           4,
		BaseBranch:              "main",
		ExternalFailureDeadline: 20 * time.Millisecond,
		ExternalFailureGrace:    500 * time.Millisecond,
	})

	return &harness{orch: orch, vcs: gitVCS, ivcs: ivcs}
}

func TestRunCompletesAllTasksAndRunsIntegration(t *testing.T) {
	tasks := []taskgraph.Task{
		{ID: "A", Title: "first"},
		{ID: "B", Title: "second", DependsOn: []string{"A"}},
	}
	h := newHarness(t, tasks, &fakeAgentEngine{}, `{"issues":[]}`)

	result, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Failed)
	assert.ElementsMatch(t, []string{"A", "B"}, result.CompletedTasks)
	assert.Empty(t, result.FailedTasks)
	require.NotNil(t, result.Integration)
	assert.True(t, result.Integration.PromotedToBase)
	assert.True(t, h.ivcs.mergedIntoBase)
}

func TestRunContinuesAfterInternalFailureOfOneTask(t *testing.T) {
	tasks := []taskgraph.Task{
		{ID: "A", Title: "fails"},
		{ID: "B", Title: "independent"},
	}
	agent := &fakeAgentEngine{failWith: map[string]string{"A": "assertion failed: expected 2 got 3"}}
	h := newHarness(t, tasks, agent, `{"issues":[]}`)

	result, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Failed)
	assert.Contains(t, result.FailedTasks, "A")
	assert.Contains(t, result.CompletedTasks, "B")
	require.NotNil(t, result.Integration)
}

func TestRunLatchesAndDrainsOnExternalFailure(t *testing.T) {
	tasks := []taskgraph.Task{
		{ID: "A", Title: "fails externally"},
		{ID: "B", Title: "blocks until canceled"},
	}
	agent := &fakeAgentEngine{
		failWith: map[string]string{"A": "network unreachable"},
		block:    map[string]bool{"B": true},
	}
	h := newHarness(t, tasks, agent, `{"issues":[]}`)

	result, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Failed)
	require.NotNil(t, result.FailureLatch)
	assert.Equal(t, "A", result.FailureLatch.TaskID)
	assert.Contains(t, result.FailedTasks, "A")
	assert.Contains(t, result.FailedTasks, "B")
	assert.Contains(t, result.ExternallyTimedOut, "B")
	assert.Nil(t, result.Integration)
}

func TestRunReportsDeadlockWhenDependencyNeverCompletes(t *testing.T) {
	tasks := []taskgraph.Task{
		{ID: "A", Title: "zero commits"},
		{ID: "B", Title: "depends on A", DependsOn: []string{"A"}},
	}
	h := newHarness(t, tasks, &fakeAgentEngine{}, `{"issues":[]}`)
	h.vcs.commitsPerTask["A"] = 0

	result, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Deadlocked)
	assert.Contains(t, result.FailedTasks, "A")
	assert.Empty(t, result.CompletedTasks)
	assert.Nil(t, result.Integration)
}

func TestOrchestratorPipelineWritesReportsToSharedStore(t *testing.T) {
	tasks := []taskgraph.Task{{ID: "A", Title: "only task"}}
	h := newHarness(t, tasks, &fakeAgentEngine{}, `{"issues":[]}`)

	result, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.CompletedTasks, "A")

	reportPath := filepath.Join(h.orch.Artifacts.Root, "reports", "A.json")
	_, statErr := os.Stat(reportPath)
	assert.NoError(t, statErr)
}

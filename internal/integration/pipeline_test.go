// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/artifacts"
	"conductor/internal/engine"
	"conductor/internal/taskgraph"
)

type fakeVCS struct {
	conflictOnBranch map[string]bool
	merged           []string
	deletedBranches  []string
	branchesCreated  []string
	mergedIntoBase   bool
	// stillConflicted controls whether ConflictedPaths keeps reporting
	// conflicts after the resolver agent has run once.
	stillConflicted map[string]bool
	conflictSeen    map[string]bool
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{
		conflictOnBranch: map[string]bool{},
		stillConflicted:  map[string]bool{},
		conflictSeen:     map[string]bool{},
	}
}

func (f *fakeVCS) CreateBranch(name, fromBase string) error {
	f.branchesCreated = append(f.branchesCreated, name)
	return nil
}

func (f *fakeVCS) Merge(branch string) error {
	if f.conflictOnBranch[branch] {
		f.conflictSeen[branch] = true
		return assertErr("CONFLICT (content): merge conflict in " + branch)
	}
	f.merged = append(f.merged, branch)
	return nil
}

func (f *fakeVCS) MergeAbort() error { return nil }

func (f *fakeVCS) ConflictedPaths() ([]string, error) {
	for branch, seen := range f.conflictSeen {
		if !seen {
			continue
		}
		if f.stillConflicted[branch] {
			return []string{"internal/handler.go"}, nil
		}
		// The resolver agent has now run once for this branch; report it
		// resolved and stop treating it as conflicted on the next check.
		f.conflictSeen[branch] = false
		return []string{"internal/handler.go"}, nil
	}
	return nil, nil
}

func (f *fakeVCS) IsClean() (bool, error) { return true, nil }

func (f *fakeVCS) CommitCount(rangeSpec string) (int, error) { return 1, nil }

func (f *fakeVCS) ChangedFiles(rangeSpec string) ([]string, error) {
	return []string{"internal/handler.go"}, nil
}

func (f *fakeVCS) DeleteBranch(name string) error {
	f.deletedBranches = append(f.deletedBranches, name)
	return nil
}

func (f *fakeVCS) MergeIntoBase(integrationBranch, base string) error {
	f.mergedIntoBase = true
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeReviewEngine struct {
	reviewJSON string
	calls      int
}

func (f *fakeReviewEngine) Execute(_ context.Context, _ string, outputFile string, _ engine.Options) (engine.Result, error) {
	f.calls++
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(f.reviewJSON), 0o644); err != nil {
			return engine.Result{}, err
		}
	}
	return engine.Result{Success: true, Output: "ok"}, nil
}

func TestRunMergesAllBranchesAndPromotesOnZeroBlockers(t *testing.T) {
	vcs := newFakeVCS()
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	eng := &fakeReviewEngine{reviewJSON: `{"issues":[]}`}
	dir := t.TempDir()

	p := New(vcs, eng, store, nil, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: true, FailOnBlocker: true}, dir)
	tasks := []taskgraph.Task{
		{ID: "t1", BranchName: "task/t1"},
		{ID: "t2", BranchName: "task/t2", DependsOn: []string{"t1"}},
	}

	result, err := p.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, result.Merged)
	assert.Empty(t, result.Unresolved)
	assert.True(t, result.PromotedToBase)
	assert.True(t, vcs.mergedIntoBase)
	assert.Contains(t, vcs.deletedBranches, "integration")
}

func TestRunSynthesizesFixTasksOnBlockers(t *testing.T) {
	vcs := newFakeVCS()
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	reviewJSON, _ := json.Marshal(ReviewReport{Issues: []Issue{
		{Severity: SeverityBlocker, Description: "missing nil check", Path: "internal/handler.go"},
		{Severity: SeverityWarning, Description: "unused import"},
	}})
	eng := &fakeReviewEngine{reviewJSON: string(reviewJSON)}
	dir := t.TempDir()

	doc := taskgraph.Document{Version: taskgraph.SchemaVersion, Tasks: []taskgraph.Task{
		{ID: "t1", BranchName: "task/t1"},
	}}
	graph, err := taskgraph.NewStore(doc)
	require.NoError(t, err)

	p := New(vcs, eng, store, graph, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: true, FailOnBlocker: true}, dir)
	result, err := p.Run(context.Background(), doc.Tasks)
	require.NoError(t, err)

	assert.False(t, result.PromotedToBase)
	assert.Equal(t, []string{"FIX-001"}, result.FixTasksAppended)
	assert.False(t, vcs.mergedIntoBase)

	added, err := graph.Get("FIX-001")
	require.NoError(t, err)
	assert.Contains(t, added.Title, "missing nil check")
}

func TestRunPromotesDespiteBlockersWhenFailOnBlockerDisabled(t *testing.T) {
	vcs := newFakeVCS()
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	reviewJSON, _ := json.Marshal(ReviewReport{Issues: []Issue{
		{Severity: SeverityBlocker, Description: "missing nil check", Path: "internal/handler.go"},
	}})
	eng := &fakeReviewEngine{reviewJSON: string(reviewJSON)}
	dir := t.TempDir()

	p := New(vcs, eng, store, nil, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: true, FailOnBlocker: false}, dir)
	result, err := p.Run(context.Background(), []taskgraph.Task{{ID: "t1", BranchName: "task/t1"}})
	require.NoError(t, err)

	assert.True(t, result.PromotedToBase)
	assert.True(t, vcs.mergedIntoBase)
	assert.Empty(t, result.FixTasksAppended)
	assert.NotNil(t, result.Review)
}

func TestRunSkipsReviewWhenRunReviewDisabled(t *testing.T) {
	vcs := newFakeVCS()
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	eng := &fakeReviewEngine{reviewJSON: `{"issues":[]}`}
	dir := t.TempDir()

	p := New(vcs, eng, store, nil, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: false, FailOnBlocker: true}, dir)
	result, err := p.Run(context.Background(), []taskgraph.Task{{ID: "t1", BranchName: "task/t1"}})
	require.NoError(t, err)

	assert.True(t, result.PromotedToBase)
	assert.Nil(t, result.Review)
	assert.Equal(t, 0, eng.calls)
}

func TestRunLeavesBranchUnresolvedWhenAgentCannotResolveConflict(t *testing.T) {
	vcs := newFakeVCS()
	vcs.conflictOnBranch["task/t1"] = true
	vcs.stillConflicted["task/t1"] = true
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	eng := &fakeReviewEngine{reviewJSON: `{"issues":[]}`}
	dir := t.TempDir()

	p := New(vcs, eng, store, nil, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: true, FailOnBlocker: true}, dir)
	result, err := p.Run(context.Background(), []taskgraph.Task{{ID: "t1", BranchName: "task/t1"}})
	require.NoError(t, err)

	assert.Contains(t, result.Unresolved, "t1")
	assert.Empty(t, result.Merged)
	assert.Nil(t, result.Review)
	// Only the conflict-resolution attempt ran; the review agent is never
	// invoked once any branch is left unresolved.
	assert.Equal(t, 1, eng.calls)
}

func TestRunResolvesConflictViaAgentThenMerges(t *testing.T) {
	vcs := newFakeVCS()
	vcs.conflictOnBranch["task/t1"] = true
	vcs.stillConflicted["task/t1"] = false
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	eng := &fakeReviewEngine{reviewJSON: `{"issues":[]}`}
	dir := t.TempDir()

	p := New(vcs, eng, store, nil, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: true, FailOnBlocker: true}, dir)
	result, err := p.Run(context.Background(), []taskgraph.Task{{ID: "t1", BranchName: "task/t1"}})
	require.NoError(t, err)

	assert.Contains(t, result.Merged, "t1")
	assert.Empty(t, result.Unresolved)
	assert.True(t, result.PromotedToBase)
}

func TestReviewReportIsPersistedToRunDirectory(t *testing.T) {
	vcs := newFakeVCS()
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	eng := &fakeReviewEngine{reviewJSON: `{"issues":[{"severity":"info","description":"note"}]}`}
	dir := t.TempDir()

	p := New(vcs, eng, store, nil, Config{BaseBranch: "main", IntegrationBranch: "integration", RunReview: true, FailOnBlocker: true}, dir)
	_, err = p.Run(context.Background(), []taskgraph.Task{{ID: "t1", BranchName: "task/t1"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.Root, "review-report.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "info")
}

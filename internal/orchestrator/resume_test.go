// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/artifacts"
	"conductor/internal/taskgraph"
)

func TestResumeMarksDoneReportsCompletedAndLeavesOthersAlone(t *testing.T) {
	doc := taskgraph.Document{Version: taskgraph.SchemaVersion, Tasks: []taskgraph.Task{
		{ID: "A", Title: "done already"},
		{ID: "B", Title: "failed before"},
		{ID: "C", Title: "never attempted"},
	}}
	graph, err := taskgraph.NewStore(doc)
	require.NoError(t, err)

	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteReport(artifacts.Report{TaskID: "A", Status: artifacts.StatusDone, Branch: "task/a"}))
	require.NoError(t, store.WriteReport(artifacts.Report{TaskID: "B", Status: artifacts.StatusFailed}))

	require.NoError(t, Resume(graph, store))

	a, err := graph.Get("A")
	require.NoError(t, err)
	assert.True(t, a.Completed)
	assert.Equal(t, "task/a", a.BranchName)

	b, err := graph.Get("B")
	require.NoError(t, err)
	assert.False(t, b.Completed)

	c, err := graph.Get("C")
	require.NoError(t, err)
	assert.False(t, c.Completed)
}

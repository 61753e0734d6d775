// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package worktree

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Manager owns the provision/reclaim lifecycle of one worktree per task. A
// task's branch name belongs to Manager only until the task completes or
// fails; from that point on internal/integration owns it.
type Manager struct {
	vcs     VCS
	baseDir string
}

// NewManager creates a Manager that provisions worktrees under baseDir
// using vcs.
func NewManager(vcs VCS, baseDir string) *Manager {
	return &Manager{vcs: vcs, baseDir: baseDir}
}

// Provision creates a fresh branch and worktree for taskID off baseBranch.
// The branch name is derived from taskID with a short random suffix so
// repeated provisioning of the same task (for example after a retry)
// never collides with a worktree directory left behind by a prior attempt.
func (m *Manager) Provision(taskID, baseBranch string) (Info, error) {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return Info{}, fmt.Errorf("worktree: create base dir: %w", err)
	}

	suffix := uuid.New().String()[:8]
	branch := fmt.Sprintf("task/%s-%s", taskID, suffix)
	path := filepath.Join(m.baseDir, fmt.Sprintf("%s-%s", taskID, suffix))

	if err := m.vcs.Add(taskID, branch, baseBranch, path); err != nil {
		return Info{}, err
	}

	return Info{TaskID: taskID, Branch: branch, Path: path}, nil
}

// Reclaim removes the worktree at info.Path. The branch itself is left
// intact: ownership of it passes to the integration pipeline, which merges
// or discards it.
func (m *Manager) Reclaim(info Info) error {
	return m.vcs.Remove(info.Path)
}

// Prune asks the underlying VCS to drop administrative records for
// worktrees whose directories no longer exist.
func (m *Manager) Prune() error {
	return m.vcs.Prune()
}

// List returns every worktree currently tracked under the manager's base
// directory.
func (m *Manager) List() ([]Info, error) {
	return m.vcs.List()
}

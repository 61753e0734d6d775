// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitfield/script"
)

// taskSpecFile and progressFile are the two files stageWorktree ensures
// exist before an engine ever runs, per the task's own worktree-staging
// step.
const (
	taskSpecFile = ".conductor-task.md"
	progressFile = ".conductor-progress.log"
)

// stageWorktree copies the task's prompt (its specification) into
// worktreeDir and makes sure a progress file exists for the agent to
// append to, before the engine is ever invoked.
func stageWorktree(worktreeDir, prompt string) error {
	specPath := filepath.Join(worktreeDir, taskSpecFile)
	if err := os.WriteFile(specPath, []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("supervisor: write task spec: %w", err)
	}

	progressPath := filepath.Join(worktreeDir, progressFile)
	f, err := os.OpenFile(progressPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("supervisor: ensure progress file: %w", err)
	}
	return f.Close()
}

// commitCount returns the number of commits reachable from HEAD but not
// from baseBranch in the worktree rooted at workDir — the commit gate's
// data source.
func commitCount(workDir, baseBranch string) (int, error) {
	out, err := script.Exec(fmt.Sprintf("git -C %q rev-list --count %q..HEAD", workDir, baseBranch)).String()
	if err != nil {
		return 0, fmt.Errorf("supervisor: commit count: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("supervisor: parse commit count %q: %w", out, err)
	}
	return n, nil
}

// changedFiles returns the comma-joined list of paths changed in workDir
// relative to baseBranch, for the report's changedFiles field.
func changedFiles(workDir, baseBranch string) (string, error) {
	out, err := script.Exec(fmt.Sprintf("git -C %q diff --name-only %q...HEAD", workDir, baseBranch)).String()
	if err != nil {
		return "", fmt.Errorf("supervisor: changed files: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return strings.Join(files, ","), nil
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package worktree

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bitfield/script"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-/]+$`)

// isValidGitIdentifier reports whether s is safe to interpolate into a
// shell command as a branch name or worktree directory component.
func isValidGitIdentifier(s string) bool {
	return s != "" && identifierPattern.MatchString(s)
}

// GitVCS runs git worktree commands against one repository via
// github.com/bitfield/script's shell pipeline.
type GitVCS struct {
	RepoDir string
	BaseDir string
}

// NewGitVCS creates a GitVCS rooted at repoDir, provisioning worktrees under
// baseDir.
func NewGitVCS(repoDir, baseDir string) *GitVCS {
	return &GitVCS{RepoDir: repoDir, BaseDir: baseDir}
}

func (g *GitVCS) run(command string) (string, error) {
	out, err := script.Exec(fmt.Sprintf("cd %q && %s", g.RepoDir, command)).String()
	if err != nil {
		return out, fmt.Errorf("worktree: git command failed: %w\noutput: %s", err, out)
	}
	return out, nil
}

// Add creates a new branch off baseBranch and a worktree checking it out at
// path. taskID and branch must both be valid git identifiers.
func (g *GitVCS) Add(taskID, branch, baseBranch, path string) error {
	if !isValidGitIdentifier(taskID) {
		return fmt.Errorf("worktree: invalid task id %q", taskID)
	}
	if !isValidGitIdentifier(branch) {
		return fmt.Errorf("worktree: invalid branch name %q", branch)
	}
	if !isValidGitIdentifier(baseBranch) {
		return fmt.Errorf("worktree: invalid base branch %q", baseBranch)
	}
	_, err := g.run(fmt.Sprintf("git worktree add -b %q %q %q", branch, path, baseBranch))
	return err
}

// Remove force-removes the worktree at path.
func (g *GitVCS) Remove(path string) error {
	_, err := g.run(fmt.Sprintf("git worktree remove %q --force", path))
	return err
}

// Prune removes administrative data for worktrees whose directories are
// gone.
func (g *GitVCS) Prune() error {
	_, err := g.run("git worktree prune")
	return err
}

// List returns every worktree under g.BaseDir known to git.
func (g *GitVCS) List() ([]Info, error) {
	out, err := g.run("git worktree list --porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelainList(out, g.BaseDir)
}

func parsePorcelainList(output, baseDir string) ([]Info, error) {
	var infos []Info
	var currentPath, currentBranch string

	flush := func() {
		if currentPath == "" || !strings.HasPrefix(currentPath, baseDir) {
			currentPath, currentBranch = "", ""
			return
		}
		infos = append(infos, Info{
			TaskID: filepath.Base(currentPath),
			Branch: currentBranch,
			Path:   currentPath,
		})
		currentPath, currentBranch = "", ""
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			if currentPath != "" {
				flush()
			}
			currentPath = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			currentBranch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()

	return infos, nil
}

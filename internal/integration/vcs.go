// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package integration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bitfield/script"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-/]+$`)

func isValidGitIdentifier(s string) bool {
	return s != "" && identifierPattern.MatchString(s)
}

// VCS is the git surface the integration pipeline needs: creating and
// finalizing the integration branch, merging completed task branches into
// it one at a time, and inspecting the result of each merge attempt.
type VCS interface {
	CreateBranch(name, fromBase string) error
	Merge(branch string) error
	MergeAbort() error
	ConflictedPaths() ([]string, error)
	IsClean() (bool, error)
	CommitCount(rangeSpec string) (int, error)
	ChangedFiles(rangeSpec string) ([]string, error)
	DeleteBranch(name string) error
	MergeIntoBase(integrationBranch, base string) error
}

// GitVCS runs the integration pipeline's git operations against one
// repository via github.com/bitfield/script, the same shell-pipeline
// library internal/worktree uses for its own git plumbing.
type GitVCS struct {
	RepoDir string
}

// NewGitVCS creates a GitVCS rooted at repoDir.
func NewGitVCS(repoDir string) *GitVCS {
	return &GitVCS{RepoDir: repoDir}
}

func (g *GitVCS) run(command string) (string, error) {
	out, err := script.Exec(fmt.Sprintf("cd %q && %s", g.RepoDir, command)).String()
	if err != nil {
		return out, fmt.Errorf("integration: git command failed: %w\noutput: %s", err, out)
	}
	return out, nil
}

// CreateBranch creates name off fromBase and checks it out.
func (g *GitVCS) CreateBranch(name, fromBase string) error {
	if !isValidGitIdentifier(name) || !isValidGitIdentifier(fromBase) {
		return fmt.Errorf("integration: invalid branch identifier %q / %q", name, fromBase)
	}
	_, err := g.run(fmt.Sprintf("git checkout -b %q %q", name, fromBase))
	return err
}

// Merge attempts a non-fast-forward merge of branch into the current
// HEAD. A conflicting merge is reported through the returned error but
// leaves the working copy in its conflicted state for the caller to
// inspect via ConflictedPaths.
func (g *GitVCS) Merge(branch string) error {
	if !isValidGitIdentifier(branch) {
		return fmt.Errorf("integration: invalid branch identifier %q", branch)
	}
	_, err := g.run(fmt.Sprintf("git merge --no-ff --no-edit %q", branch))
	return err
}

// MergeAbort aborts an in-progress conflicted merge.
func (g *GitVCS) MergeAbort() error {
	_, err := g.run("git merge --abort")
	return err
}

// ConflictedPaths returns every path git currently reports as unmerged.
func (g *GitVCS) ConflictedPaths() ([]string, error) {
	out, err := g.run("git diff --name-only --diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// IsClean reports whether the working copy has no staged or unstaged
// changes.
func (g *GitVCS) IsClean() (bool, error) {
	out, err := g.run("git status --porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// CommitCount returns the number of commits in rangeSpec (e.g. "base..HEAD").
func (g *GitVCS) CommitCount(rangeSpec string) (int, error) {
	out, err := g.run(fmt.Sprintf("git rev-list --count %s", rangeSpec))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(out))
}

// ChangedFiles returns every path touched within rangeSpec.
func (g *GitVCS) ChangedFiles(rangeSpec string) ([]string, error) {
	out, err := g.run(fmt.Sprintf("git diff --name-only %s", rangeSpec))
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// DeleteBranch force-deletes a fully-merged or abandoned branch.
func (g *GitVCS) DeleteBranch(name string) error {
	if !isValidGitIdentifier(name) {
		return fmt.Errorf("integration: invalid branch identifier %q", name)
	}
	_, err := g.run(fmt.Sprintf("git branch -D %q", name))
	return err
}

// MergeIntoBase checks out base and merges integrationBranch into it
// non-fast-forward. Pipeline.Run reaches this once every branch merged and
// no blocker holds promotion back (review disabled, zero blockers, or
// FailOnBlocker off), so a conflict here indicates base moved since the
// integration branch was cut; it is reported, not auto-resolved.
func (g *GitVCS) MergeIntoBase(integrationBranch, base string) error {
	if !isValidGitIdentifier(integrationBranch) || !isValidGitIdentifier(base) {
		return fmt.Errorf("integration: invalid branch identifier %q / %q", integrationBranch, base)
	}
	if _, err := g.run(fmt.Sprintf("git checkout %q", base)); err != nil {
		return err
	}
	_, err := g.run(fmt.Sprintf("git merge --no-ff --no-edit %q", integrationBranch))
	return err
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

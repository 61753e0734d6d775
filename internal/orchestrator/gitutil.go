// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"fmt"
	"strings"

	"github.com/bitfield/script"
)

// checkWorktreeClean reports whether the worktree at path has no staged or
// unstaged changes. Neither worktree.Manager nor worktree.VCS exposes this
// check, and Manager.Reclaim removes a worktree unconditionally, so the
// orchestrator must decide for itself whether reclaiming is safe before
// calling it. It is a package variable so tests can substitute a fake
// without a real git repository on disk.
var checkWorktreeClean = isWorktreeClean

func isWorktreeClean(path string) (bool, error) {
	out, err := script.Exec(fmt.Sprintf("git -C %q status --porcelain", path)).String()
	if err != nil {
		return false, fmt.Errorf("orchestrator: check worktree clean: %w\noutput: %s", err, out)
	}
	return strings.TrimSpace(out) == "", nil
}

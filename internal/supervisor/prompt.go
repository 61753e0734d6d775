// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package supervisor

import (
	"fmt"
	"strings"

	"conductor/internal/taskgraph"
)

const basePromptInstructions = `You are an autonomous coding agent working inside an isolated git worktree.
Make the changes described below, commit your work, and stop once the task is complete.
Do not touch files outside the declared scope unless strictly necessary.`

// BuildPrompt assembles the base instructions and task metadata into the
// single prompt string every engine sends as one shot. It does not build a
// review/architecture/testing prompt hierarchy; this design needs exactly
// one prompt shape.
func BuildPrompt(t taskgraph.Task) string {
	var b strings.Builder
	b.WriteString(basePromptInstructions)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Task ID: %s\n", t.ID)
	if t.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", t.Title)
	}
	if len(t.Touches) > 0 {
		fmt.Fprintf(&b, "Declared touches:\n")
		for _, glob := range t.Touches {
			fmt.Fprintf(&b, "  - %s\n", glob)
		}
	}
	if len(t.Locks) > 0 {
		fmt.Fprintf(&b, "Explicit locks: %s\n", strings.Join(t.Locks, ", "))
	}
	inferred := taskgraph.EffectiveLocks(t)
	if len(inferred) > 0 {
		fmt.Fprintf(&b, "Effective locks (explicit + inferred): %s\n", strings.Join(inferred, ", "))
	}
	if t.MergeNotes != "" {
		fmt.Fprintf(&b, "Merge notes: %s\n", t.MergeNotes)
	}
	if len(t.Verify) > 0 {
		fmt.Fprintf(&b, "Verification commands:\n")
		for _, cmd := range t.Verify {
			fmt.Fprintf(&b, "  - %s\n", cmd)
		}
	}
	return b.String()
}

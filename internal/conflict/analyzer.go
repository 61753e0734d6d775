// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package conflict explains why a task cannot yet be admitted: which of
// its dependencies are incomplete and which of its locks are held by
// another task.
package conflict

import "fmt"

// Block describes one reason a task is not ready.
type Block struct {
	TaskID string

	// UnsatisfiedDeps are dependency task IDs that have not completed.
	UnsatisfiedDeps []string

	// LockConflicts maps a lock name the task needs to the task ID
	// currently holding it.
	LockConflicts map[string]string
}

// Blocked reports whether this Block represents any actual obstruction.
func (b *Block) Blocked() bool {
	return b != nil && (len(b.UnsatisfiedDeps) > 0 || len(b.LockConflicts) > 0)
}

// Analyzer produces human-readable explanations for why a task is blocked.
type Analyzer struct{}

// NewAnalyzer creates a conflict Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Explain builds a Block describing why taskID cannot be admitted, given
// its unmet dependencies and the locks it needs mapped to their current
// holders (only entries for locks actually held by a different task should
// be passed in lockConflicts).
func (a *Analyzer) Explain(taskID string, unsatisfiedDeps []string, lockConflicts map[string]string) *Block {
	return &Block{
		TaskID:          taskID,
		UnsatisfiedDeps: unsatisfiedDeps,
		LockConflicts:   lockConflicts,
	}
}

// FormatReport renders a Block as a multi-line human-readable explanation.
func (a *Analyzer) FormatReport(b *Block) string {
	if !b.Blocked() {
		return fmt.Sprintf("task %s is ready: no unmet dependencies or lock conflicts", b.TaskID)
	}

	report := fmt.Sprintf("task %s is blocked\n", b.TaskID)
	if len(b.UnsatisfiedDeps) > 0 {
		report += fmt.Sprintf("  waiting on dependencies: %v\n", b.UnsatisfiedDeps)
	}
	for lock, holder := range b.LockConflicts {
		report += fmt.Sprintf("  lock %q held by task %s\n", lock, holder)
	}
	return report
}

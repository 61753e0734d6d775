// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package integration

import (
	"encoding/json"
	"fmt"

	"conductor/internal/taskgraph"
)

// Severity is how serious a review agent judged one issue to be.
type Severity string

const (
	SeverityBlocker  Severity = "blocker"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is one finding in review-report.json.
type Issue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Path        string   `json:"path,omitempty"`
}

// ReviewReport is the review agent's expected output shape.
type ReviewReport struct {
	Issues []Issue `json:"issues"`
}

// ParseReviewReport decodes raw review-report.json bytes produced by the
// review agent.
func ParseReviewReport(raw []byte) (ReviewReport, error) {
	var r ReviewReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("integration: parse review report: %w", err)
	}
	return r, nil
}

// Blockers returns every issue at blocker severity.
func (r ReviewReport) Blockers() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityBlocker {
			out = append(out, issue)
		}
	}
	return out
}

// SynthesizeFixTasks builds one fix task per blocker issue, with
// deterministic IDs FIX-001, FIX-002, ... in blocker order, empty
// dependencies and locks, and a title derived from the issue's
// description.
func SynthesizeFixTasks(blockers []Issue) []taskgraph.Task {
	tasks := make([]taskgraph.Task, 0, len(blockers))
	for i, issue := range blockers {
		title := issue.Description
		if issue.Path != "" {
			title = fmt.Sprintf("%s (%s)", title, issue.Path)
		}
		tasks = append(tasks, taskgraph.Task{
			ID:    fmt.Sprintf("FIX-%03d", i+1),
			Title: title,
		})
	}
	return tasks
}

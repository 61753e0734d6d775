// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"errors"
	"fmt"
	"os"

	"conductor/internal/artifacts"
	"conductor/internal/taskgraph"
)

// Resume replays every previously persisted report in store against graph,
// marking each task the prior run recorded as done as completed so Run
// does not re-admit it. Tasks with no report, or a report recording
// failure, are left untouched and remain eligible for (re-)admission.
func Resume(graph *taskgraph.Store, store *artifacts.Store) error {
	for _, t := range graph.All() {
		report, err := store.ReadReport(t.ID)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("orchestrator: resume: read report for %s: %w", t.ID, err)
		}
		if report.Status != artifacts.StatusDone {
			continue
		}
		if err := graph.MarkCompleted(t.ID, report.Branch); err != nil {
			return fmt.Errorf("orchestrator: resume: mark %s completed: %w", t.ID, err)
		}
	}
	return nil
}

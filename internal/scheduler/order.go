// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package scheduler

import (
	"fmt"

	"github.com/gammazero/toposort"

	"conductor/internal/taskgraph"
)

// TopoOrder computes a deterministic total ordering over tasks consistent
// with their dependency edges. It is used to break ties among equally
// ready tasks so that repeated runs over the same graph admit tasks in
// the same order.
func TopoOrder(tasks []taskgraph.Task) ([]string, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	edges := make([]toposort.Edge, 0)
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}

	if len(edges) == 0 {
		order := make([]string, 0, len(tasks))
		for _, t := range tasks {
			order = append(order, t.ID)
		}
		return order, nil
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("scheduler: toposort failed: %w", err)
	}

	inSorted := make(map[string]bool, len(sorted))
	order := make([]string, 0, len(tasks))
	for _, node := range sorted {
		id := node.(string)
		inSorted[id] = true
		order = append(order, id)
	}

	// Tasks with no dependency edges at all (pure roots with no
	// dependents either) never appear in toposort's output; prepend them
	// in declaration order so every task is represented exactly once.
	var roots []string
	for _, t := range tasks {
		if !inSorted[t.ID] {
			roots = append(roots, t.ID)
		}
	}
	order = append(roots, order...)

	return order, nil
}

// rank returns a lookup from task ID to its position in order, used to
// sort the ready set deterministically.
func rank(order []string) map[string]int {
	r := make(map[string]int, len(order))
	for i, id := range order {
		r[id] = i
	}
	return r
}

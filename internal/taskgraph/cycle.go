// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package taskgraph

import "sort"

// cycleDFSState is the three-color marker used while walking dependency
// edges: unvisited nodes have no entry, onStack nodes are still on the
// current path, done nodes have been fully explored with no cycle found
// through them.
type cycleDFSState int

const (
	stateUnvisited cycleDFSState = iota
	stateOnStack
	stateDone
)

// detectCycle walks every task's DependsOn edges and returns the first
// cycle it finds as the ordered path of task IDs that make it up, starting
// and ending on the repeated ID. Returns nil if the graph is acyclic.
func detectCycle(tasks map[string]Task) []string {
	state := make(map[string]cycleDFSState, len(tasks))

	var path []string
	var dfs func(id string) []string
	dfs = func(id string) []string {
		state[id] = stateOnStack
		path = append(path, id)

		task, ok := tasks[id]
		if ok {
			for _, depID := range task.DependsOn {
				if _, known := tasks[depID]; !known {
					continue
				}
				switch state[depID] {
				case stateOnStack:
					start := -1
					for i, p := range path {
						if p == depID {
							start = i
							break
						}
					}
					cycle := append([]string{}, path[start:]...)
					cycle = append(cycle, depID)
					return cycle
				case stateDone:
					continue
				default:
					if cycle := dfs(depID); cycle != nil {
						return cycle
					}
				}
			}
		}

		path = path[:len(path)-1]
		state[id] = stateDone
		return nil
	}

	ids := sortedIDs(tasks)
	for _, id := range ids {
		if _, visited := state[id]; visited {
			continue
		}
		path = path[:0]
		if cycle := dfs(id); cycle != nil {
			return cycle
		}
	}
	return nil
}

func sortedIDs(tasks map[string]Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

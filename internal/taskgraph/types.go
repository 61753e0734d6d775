// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package taskgraph parses, validates, and mutates the task specification:
// task identity, dependency edges, declared touches/locks, and completion
// state. It is the single source of truth for task identity; every other
// component references tasks by ID.
package taskgraph

// SchemaVersion is the only task-graph document version this package
// understands. Loading a document with a different version is a fatal
// specification error.
const SchemaVersion = 1

// Task is the unit of work tracked by the graph.
type Task struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Completed  bool     `yaml:"completed"`
	DependsOn  []string `yaml:"dependsOn,omitempty"`
	Touches    []string `yaml:"touches,omitempty"`
	Locks      []string `yaml:"locks,omitempty"`
	MergeNotes string   `yaml:"mergeNotes,omitempty"`
	Verify     []string `yaml:"verify,omitempty"`

	// BranchName is assigned on admission; it is not part of the
	// persisted document schema.
	BranchName string `yaml:"-"`
}

// rawTask mirrors Task but accepts the legacy `mutex` alias for `locks` on
// read. New writes always use `locks`.
type rawTask struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Completed  bool     `yaml:"completed"`
	DependsOn  []string `yaml:"dependsOn,omitempty"`
	Touches    []string `yaml:"touches,omitempty"`
	Locks      []string `yaml:"locks,omitempty"`
	Mutex      []string `yaml:"mutex,omitempty"`
	MergeNotes string   `yaml:"mergeNotes,omitempty"`
	Verify     []string `yaml:"verify,omitempty"`
}

func (r rawTask) toTask() Task {
	locks := r.Locks
	if len(locks) == 0 && len(r.Mutex) > 0 {
		locks = r.Mutex
	}
	return Task{
		ID:         r.ID,
		Title:      r.Title,
		Completed:  r.Completed,
		DependsOn:  r.DependsOn,
		Touches:    r.Touches,
		Locks:      locks,
		MergeNotes: r.MergeNotes,
		Verify:     r.Verify,
	}
}

func fromTask(t Task) rawTask {
	return rawTask{
		ID:         t.ID,
		Title:      t.Title,
		Completed:  t.Completed,
		DependsOn:  t.DependsOn,
		Touches:    t.Touches,
		Locks:      t.Locks,
		MergeNotes: t.MergeNotes,
		Verify:     t.Verify,
	}
}

// Document is the full persisted task-graph specification (§6).
type Document struct {
	Version    int    `yaml:"version"`
	BranchName string `yaml:"branchName,omitempty"`
	Tasks      []Task `yaml:"tasks"`
}

type rawDocument struct {
	Version    int       `yaml:"version"`
	BranchName string    `yaml:"branchName,omitempty"`
	Tasks      []rawTask `yaml:"tasks"`
}

func (r rawDocument) toDocument() Document {
	tasks := make([]Task, len(r.Tasks))
	for i, rt := range r.Tasks {
		tasks[i] = rt.toTask()
	}
	return Document{Version: r.Version, BranchName: r.BranchName, Tasks: tasks}
}

func fromDocument(d Document) rawDocument {
	tasks := make([]rawTask, len(d.Tasks))
	for i, t := range d.Tasks {
		tasks[i] = fromTask(t)
	}
	return rawDocument{Version: d.Version, BranchName: d.BranchName, Tasks: tasks}
}

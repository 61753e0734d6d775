// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package taskgraph

import (
	"fmt"
	"sync"
)

// Store holds the authoritative in-memory task graph for one run. It owns
// task identity and completion state; the scheduler consults it for
// readiness and reports completions back through it.
type Store struct {
	mu         sync.RWMutex
	branchName string
	order      []string
	tasks      map[string]*Task
}

// NewStore validates doc and builds a Store from it. Callers should treat a
// non-nil error as fatal: the document is not safe to schedule.
func NewStore(doc Document) (*Store, error) {
	if doc.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, doc.Version, SchemaVersion)
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	s := &Store{
		branchName: doc.BranchName,
		order:      make([]string, 0, len(doc.Tasks)),
		tasks:      make(map[string]*Task, len(doc.Tasks)),
	}
	for i := range doc.Tasks {
		t := doc.Tasks[i]
		s.order = append(s.order, t.ID)
		s.tasks[t.ID] = &t
	}
	return s, nil
}

// BranchName returns the document's optional branchName field.
func (s *Store) BranchName() string {
	return s.branchName
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return *t, nil
}

// All returns every task in declaration order.
func (s *Store) All() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

// MarkCompleted records a task as completed and stores its assigned branch
// name, if any.
func (s *Store) MarkCompleted(id, branchName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t.Completed = true
	if branchName != "" {
		t.BranchName = branchName
	}
	return nil
}

// SetBranchName records the branch a task was admitted onto, without
// marking it complete.
func (s *Store) SetBranchName(id, branchName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t.BranchName = branchName
	return nil
}

// DependenciesSatisfied reports whether every dependency of id is marked
// completed.
func (s *Store) DependenciesSatisfied(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	for _, dep := range t.DependsOn {
		depTask, ok := s.tasks[dep]
		if !ok || !depTask.Completed {
			return false, nil
		}
	}
	return true, nil
}

// AllCompleted reports whether every task in the store is completed.
func (s *Store) AllCompleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if !t.Completed {
			return false
		}
	}
	return true
}

// Document renders the current state back into a persistable Document.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, *s.tasks[id])
	}
	return Document{Version: SchemaVersion, BranchName: s.branchName, Tasks: tasks}
}

// AddTask appends a new task to the graph after validating it would not
// introduce a duplicate ID, a dangling dependency, or a cycle. Used by the
// integration pipeline to append fix tasks generated from review findings.
func (s *Store) AddTask(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.tasks[t.ID]; dup {
		return &duplicateIDError{id: t.ID}
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return &selfDependencyError{id: t.ID}
		}
		if _, ok := s.tasks[dep]; !ok {
			return &danglingDependencyError{taskID: t.ID, depID: dep}
		}
	}

	candidate := make(map[string]Task, len(s.tasks)+1)
	for id, existing := range s.tasks {
		candidate[id] = *existing
	}
	candidate[t.ID] = t
	if cycle := detectCycle(candidate); cycle != nil {
		return &CycleError{Path: cycle}
	}

	s.order = append(s.order, t.ID)
	s.tasks[t.ID] = &t
	return nil
}

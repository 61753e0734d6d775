// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package scheduler admits tasks from a taskgraph.Store for execution,
// enforcing two independent constraints: a task's dependencies must all be
// complete, and every lock it needs (explicit or inferred) must be free or
// already held by that same task. Two tasks with no dependency edge
// between them can still block each other through a shared lock.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"conductor/internal/conflict"
	"conductor/internal/filelock"
	"conductor/internal/taskgraph"
)

// Scheduler is the single owner of admission state: which tasks are
// running, which locks are held, and which tasks remain. All state
// mutations happen on the goroutine that calls its methods; Run serializes
// every mutation through its own loop so callers never need external
// synchronization.
type Scheduler struct {
	store *taskgraph.Store
	locks *filelock.MemoryRegistry

	mu      sync.Mutex
	running map[string]bool
	failed  map[string]bool
	order   []string
}

// New creates a Scheduler over store, computing a deterministic admission
// order up front.
func New(store *taskgraph.Store, locks *filelock.MemoryRegistry) (*Scheduler, error) {
	order, err := TopoOrder(store.All())
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return &Scheduler{
		store:   store,
		locks:   locks,
		running: make(map[string]bool),
		failed:  make(map[string]bool),
		order:   order,
	}, nil
}

// Ready returns the IDs of every task whose dependencies are satisfied,
// whose locks are currently free (or held by no one), and which is not
// already completed, running or failed — in deterministic topological-rank
// order.
func (s *Scheduler) Ready() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *Scheduler) readyLocked() ([]string, error) {
	var ready []string
	for _, t := range s.store.All() {
		if t.Completed || s.running[t.ID] || s.failed[t.ID] {
			continue
		}
		satisfied, err := s.store.DependenciesSatisfied(t.ID)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			continue
		}
		locks := taskgraph.EffectiveLocks(t)
		if !s.locksFreeForLocked(t.ID, locks) {
			continue
		}
		ready = append(ready, t.ID)
	}

	ranks := rank(s.order)
	sort.SliceStable(ready, func(i, j int) bool {
		return ranks[ready[i]] < ranks[ready[j]]
	})
	return ready, nil
}

func (s *Scheduler) locksFreeForLocked(taskID string, locks []string) bool {
	for _, name := range locks {
		if holder, held := s.locks.Holder(name); held && holder != taskID {
			return false
		}
	}
	return true
}

// Admit acquires every lock a task needs and marks it running. Callers
// must call Complete or Fail exactly once for every successful Admit.
func (s *Scheduler) Admit(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.Get(taskID)
	if err != nil {
		return err
	}
	locks := taskgraph.EffectiveLocks(t)
	if _, err := s.locks.AcquireAll(taskID, locks); err != nil {
		return fmt.Errorf("scheduler: admit %s: %w", taskID, err)
	}
	s.running[taskID] = true
	return nil
}

// Complete releases a task's locks, marks it completed with its merged
// branch name, and clears its running state.
func (s *Scheduler) Complete(taskID, branchName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks.ReleaseAll(taskID)
	delete(s.running, taskID)
	return s.store.MarkCompleted(taskID, branchName)
}

// Fail releases a task's locks, clears its running state and records it
// as failed without marking it completed. A failed task is never
// automatically re-admitted; re-entry requires an external actor to add a
// new task (for example a fix task produced by the integration pipeline).
func (s *Scheduler) Fail(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks.ReleaseAll(taskID)
	delete(s.running, taskID)
	s.failed[taskID] = true
}

// ExplainBlock reports why taskID cannot currently be admitted.
func (s *Scheduler) ExplainBlock(taskID string) (*conflict.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.Get(taskID)
	if err != nil {
		return nil, err
	}

	var unsatisfied []string
	for _, dep := range t.DependsOn {
		depTask, err := s.store.Get(dep)
		if err != nil {
			return nil, err
		}
		if !depTask.Completed {
			unsatisfied = append(unsatisfied, dep)
		}
	}

	lockConflicts := make(map[string]string)
	for _, name := range taskgraph.EffectiveLocks(t) {
		if holder, held := s.locks.Holder(name); held && holder != taskID {
			lockConflicts[name] = holder
		}
	}

	a := conflict.NewAnalyzer()
	return a.Explain(taskID, unsatisfied, lockConflicts), nil
}

// IsDeadlocked reports whether the run can make no further progress: no
// task is running, the graph is not fully complete, and nothing is ready.
// This can only happen if every incomplete task is permanently blocked —
// for example a failed task's dependent with no fix task yet added.
func (s *Scheduler) IsDeadlocked() (bool, error) {
	s.mu.Lock()
	if len(s.running) > 0 {
		s.mu.Unlock()
		return false, nil
	}
	ready, err := s.readyLocked()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if len(ready) > 0 {
		return false, nil
	}
	return !s.store.AllCompleted(), nil
}

// Outcome is the result one executed task reports back to Run.
type Outcome struct {
	TaskID     string
	BranchName string
	Err        error
}

// Executor runs a single admitted task to completion, returning the
// branch its changes landed on.
type Executor func(ctx context.Context, taskID string) (branch string, err error)

// Run drives the admission loop to completion: repeatedly admitting every
// ready task (bounded by maxConcurrent concurrent executions), waiting for
// at least one to finish, and applying its outcome, until every task is
// completed or the graph deadlocks. It is the single coordinator that owns
// every state mutation; Executor calls run on worker goroutines but report
// back over a channel so Admit/Complete/Fail are only ever called from
// this loop's own goroutine.
func (s *Scheduler) Run(ctx context.Context, maxConcurrent int, exec Executor) error {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	results := make(chan Outcome)
	semaphore := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	inFlight := 0

	launch := func(taskID string) {
		inFlight++
		wg.Add(1)
		go func() {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			branch, err := exec(ctx, taskID)
			results <- Outcome{TaskID: taskID, BranchName: branch, Err: err}
		}()
	}

	for {
		if s.store.AllCompleted() {
			break
		}

		ready, err := s.Ready()
		if err != nil {
			return err
		}
		for _, taskID := range ready {
			if err := s.Admit(taskID); err != nil {
				// Another task claimed a shared lock between Ready and
				// Admit; it will be reconsidered on the next pass.
				continue
			}
			launch(taskID)
		}

		if inFlight == 0 {
			deadlocked, err := s.IsDeadlocked()
			if err != nil {
				return err
			}
			if deadlocked {
				return fmt.Errorf("scheduler: deadlocked with %d task(s) incomplete", s.incompleteCount())
			}
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case outcome := <-results:
			inFlight--
			if outcome.Err != nil {
				s.Fail(outcome.TaskID)
				return fmt.Errorf("scheduler: task %s failed: %w", outcome.TaskID, outcome.Err)
			}
			if err := s.Complete(outcome.TaskID, outcome.BranchName); err != nil {
				return err
			}
		}
	}

	wg.Wait()
	return nil
}

func (s *Scheduler) incompleteCount() int {
	n := 0
	for _, t := range s.store.All() {
		if !t.Completed {
			n++
		}
	}
	return n
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package orchestrator drives one run end to end: repeatedly asking the
// scheduler for admissible tasks, provisioning a worktree and supervising
// an agent for each, applying outcomes back to the scheduler, latching and
// draining on the first external failure, and handing the surviving work
// to the integration pipeline once the graph drains. It deliberately does
// not reuse scheduler.Scheduler.Run: that convenience loop aborts the
// whole run on a single task's failure, which would turn one internal
// failure into a run-wide abort instead of leaving independent siblings to
// keep going.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conductor/internal/artifacts"
	"conductor/internal/failure"
	"conductor/internal/integration"
	"conductor/internal/scheduler"
	"conductor/internal/supervisor"
	"conductor/internal/taskgraph"
	"conductor/internal/telemetry"
	"conductor/internal/worktree"
)

// Config controls concurrency and the external-failure drain timing.
type Config struct {
	MaxConcurrent           int
	BaseBranch              string
	ExternalFailureDeadline time.Duration
	ExternalFailureGrace    time.Duration
}

// RunResult summarizes one orchestrator run for the caller (typically
// cmd/conductor) to report to the operator.
type RunResult struct {
	CompletedTasks     []string
	FailedTasks        []string
	SetupFailures      []string
	PreservedWorktrees []string
	Deadlocked         bool
	Failed             bool
	FailureLatch       *failure.Latch
	ExternallyTimedOut []string
	Integration        *integration.Result
}

// Orchestrator wires the DAG scheduler, worktree manager, agent supervisor,
// external-failure controller, and integration pipeline into one run.
type Orchestrator struct {
	Graph       *taskgraph.Store
	Scheduler   *scheduler.Scheduler
	Worktree    *worktree.Manager
	Supervisor  *supervisor.Supervisor
	Artifacts   *artifacts.Store
	Failures    *failure.Controller
	Integration *integration.Pipeline
	Config      Config
}

// New creates an Orchestrator. Config fields left at their zero value
// default to one concurrent task and a 30s/10s external-failure drain.
func New(graph *taskgraph.Store, sched *scheduler.Scheduler, wt *worktree.Manager, sup *supervisor.Supervisor, store *artifacts.Store, failures *failure.Controller, pipeline *integration.Pipeline, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.ExternalFailureDeadline <= 0 {
		cfg.ExternalFailureDeadline = 30 * time.Second
	}
	if cfg.ExternalFailureGrace <= 0 {
		cfg.ExternalFailureGrace = 10 * time.Second
	}
	return &Orchestrator{
		Graph:       graph,
		Scheduler:   sched,
		Worktree:    wt,
		Supervisor:  sup,
		Artifacts:   store,
		Failures:    failures,
		Integration: pipeline,
		Config:      cfg,
	}
}

// taskProcess adapts a running task's cancellation to failure.Process. At
// this layer a task is a goroutine driven by a context, not a raw OS
// process, so both Stop and Kill reduce to the same cancellation: there is
// no separate graceful-then-forceful distinction to make below this.
type taskProcess struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *taskProcess) Stop() error {
	p.cancel()
	return nil
}

func (p *taskProcess) Kill() error {
	p.cancel()
	return nil
}

func (p *taskProcess) Done() <-chan struct{} {
	return p.done
}

// taskOutcome is what one task's goroutine reports back to the driver
// loop. Exactly one of setupErr being non-nil or supervisorOutcome being
// populated holds.
type taskOutcome struct {
	taskID            string
	branch            string
	worktreePath      string
	setupErr          error
	supervisorOutcome supervisor.Outcome
	preserved         bool
}

// execTask provisions a worktree, supervises the agent inside it, and
// decides whether the worktree can be reclaimed: only a clean worktree is
// removed, since Worktree.Reclaim itself removes unconditionally. A dirty
// worktree is left on disk and reported as preserved so an operator can
// inspect what the agent left behind.
func (o *Orchestrator) execTask(ctx context.Context, taskID string, t taskgraph.Task) taskOutcome {
	info, err := o.Worktree.Provision(taskID, o.Config.BaseBranch)
	if err != nil {
		return taskOutcome{taskID: taskID, setupErr: fmt.Errorf("provision worktree: %w", err)}
	}
	if err := o.Graph.SetBranchName(taskID, info.Branch); err != nil {
		telemetry.RecordError(ctx, err)
	}

	out := o.Supervisor.Run(ctx, t, info.Path, info.Branch)

	clean, cleanErr := checkWorktreeClean(info.Path)
	preserved := false
	switch {
	case cleanErr != nil:
		telemetry.RecordError(ctx, cleanErr)
		preserved = true
	case !clean:
		preserved = true
	default:
		if err := o.Worktree.Reclaim(info); err != nil {
			telemetry.RecordError(ctx, err)
			preserved = true
		}
	}

	return taskOutcome{
		taskID:            taskID,
		branch:            info.Branch,
		worktreePath:      info.Path,
		supervisorOutcome: out,
		preserved:         preserved,
	}
}

// Run drives the scheduler to completion or deadlock, latching and
// draining on the first external failure, then runs the integration
// pipeline over whatever tasks completed. Push-mode (spec.md §4.6 step 6,
// §4.8) is treated as permanently disabled, so the integration pipeline
// runs whenever at least one task has completed and no external failure
// has latched.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator", "Run")
	defer span.End()

	// A prior run's worktree directories may have been removed outside of
	// Reclaim (a crash, a manual rm -rf); Prune drops git's administrative
	// record of them before this run provisions any fresh ones.
	if err := o.Worktree.Prune(); err != nil {
		telemetry.RecordError(ctx, err)
	}

	var result RunResult

	total := len(o.Graph.All())
	results := make(chan taskOutcome, total)
	sem := make(chan struct{}, o.Config.MaxConcurrent)
	running := make(map[string]*taskProcess)
	// failed records every task this loop has failed, setup failures
	// included. Scheduler.Ready already leaves out tasks passed to
	// Scheduler.Fail; this loop filters through its own record as well,
	// matching the "never automatically re-admitted" design decision.
	failed := make(map[string]bool)
	var wg sync.WaitGroup
	inFlight := 0

	launch := func(taskID string, t taskgraph.Task) {
		taskCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		running[taskID] = &taskProcess{cancel: cancel, done: done}
		inFlight++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done)
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- o.execTask(taskCtx, taskID, t)
		}()
	}

runLoop:
	for {
		if latched, latch := o.Failures.Latched(); latched {
			result.Failed = true
			l := latch
			result.FailureLatch = &l
			break runLoop
		}

		ready, err := o.Scheduler.Ready()
		if err != nil {
			wg.Wait()
			return result, fmt.Errorf("orchestrator: ready: %w", err)
		}
		// Filter Ready's answer through failed before deciding either
		// admission or deadlock, so no failed task is ever admitted again.
		var admissible []string
		for _, taskID := range ready {
			if !failed[taskID] {
				admissible = append(admissible, taskID)
			}
		}

		for _, taskID := range admissible {
			if inFlight >= o.Config.MaxConcurrent {
				break
			}
			if err := o.Scheduler.Admit(taskID); err != nil {
				// Lost a shared lock to another admission between Ready
				// and Admit; it is reconsidered on the next pass.
				continue
			}
			t, err := o.Graph.Get(taskID)
			if err != nil {
				o.Scheduler.Fail(taskID)
				failed[taskID] = true
				result.SetupFailures = append(result.SetupFailures, taskID)
				continue
			}
			launch(taskID, t)
		}

		if inFlight == 0 {
			if o.Graph.AllCompleted() {
				break runLoop
			}
			if len(admissible) == 0 {
				result.Deadlocked = true
				break runLoop
			}
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return result, ctx.Err()
		case outcome := <-results:
			inFlight--
			delete(running, outcome.taskID)
			o.applyOutcome(ctx, &result, outcome, failed)
		}
	}

	if latched, latch := o.Failures.Latched(); latched {
		result.Failed = true
		l := latch
		result.FailureLatch = &l

		procs := make(map[string]failure.Process, len(running))
		for id, p := range running {
			procs[id] = p
		}
		result.ExternallyTimedOut = o.Failures.Drain(procs, o.Config.ExternalFailureDeadline, o.Config.ExternalFailureGrace)
	}

	wg.Wait()
drainResults:
	for {
		select {
		case outcome := <-results:
			delete(running, outcome.taskID)
			o.applyOutcome(ctx, &result, outcome, failed)
		default:
			break drainResults
		}
	}

	if result.Failed || len(result.CompletedTasks) == 0 {
		return result, nil
	}

	completed := make([]taskgraph.Task, 0, len(result.CompletedTasks))
	for _, id := range result.CompletedTasks {
		t, err := o.Graph.Get(id)
		if err != nil {
			telemetry.RecordError(ctx, err)
			continue
		}
		completed = append(completed, t)
	}

	integrationResult, err := o.Integration.Run(ctx, completed)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return result, fmt.Errorf("orchestrator: integration: %w", err)
	}
	result.Integration = &integrationResult
	return result, nil
}

// applyOutcome folds one finished task's outcome back into the scheduler
// and the accumulated result. failed records every task ID the driver loop
// must never re-admit.
func (o *Orchestrator) applyOutcome(ctx context.Context, result *RunResult, outcome taskOutcome, failed map[string]bool) {
	if outcome.setupErr != nil {
		telemetry.RecordError(ctx, outcome.setupErr)
		o.Scheduler.Fail(outcome.taskID)
		failed[outcome.taskID] = true
		result.SetupFailures = append(result.SetupFailures, outcome.taskID)
		return
	}

	if outcome.preserved {
		result.PreservedWorktrees = append(result.PreservedWorktrees, outcome.worktreePath)
	}

	so := outcome.supervisorOutcome
	if so.Failed {
		o.Scheduler.Fail(outcome.taskID)
		failed[outcome.taskID] = true
		result.FailedTasks = append(result.FailedTasks, outcome.taskID)
		if so.ExternalFailure {
			o.Failures.LatchExternal(outcome.taskID, so.Report.ErrorMessage)
		}
		return
	}

	if err := o.Scheduler.Complete(outcome.taskID, outcome.branch); err != nil {
		telemetry.RecordError(ctx, err)
	}
	result.CompletedTasks = append(result.CompletedTasks, outcome.taskID)
}

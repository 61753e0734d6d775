// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package supervisor spawns one agent process per task, applies the
// empty-output/error-payload retry policy, gates the outcome on a commit
// count and an error-payload check, and produces the task's report. It is
// a bulkhead: a failing task never aborts its siblings.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/artifacts"
	"conductor/internal/engine"
	"conductor/internal/failure"
	"conductor/internal/progress"
	"conductor/internal/taskgraph"
	"conductor/internal/telemetry"
)

// Config controls retry policy and gating.
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	BaseBranch  string
	BypassPerms bool
	Model       string
	// EngineTimeout bounds each engine.Engine.Execute call, passed through
	// as engine.Options.Timeout.
	EngineTimeout time.Duration
	// MaxTurns bounds how many conversational turns an engine that
	// supports it (Engine A) may take to finish a task.
	MaxTurns int
}

// Outcome is what the supervisor reports back to the orchestrator's
// coordinator loop for one task.
type Outcome struct {
	Report artifacts.Report
	Failed bool
	// ExternalFailure is set when the failure classified as external;
	// the orchestrator uses this to decide whether to latch
	// internal/failure's controller.
	ExternalFailure bool
}

// Supervisor runs one task to completion against a chosen engine.
type Supervisor struct {
	Engine    engine.Engine
	Artifacts *artifacts.Store
	Config    Config
	Now       func() time.Time
}

// New creates a Supervisor. now defaults to time.Now if nil.
func New(eng engine.Engine, store *artifacts.Store, cfg Config, now func() time.Time) *Supervisor {
	if now == nil {
		now = time.Now
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	return &Supervisor{Engine: eng, Artifacts: store, Config: cfg, Now: now}
}

// Run executes task t inside worktreeDir on branch, retrying on empty
// output or a parsed error up to Config.MaxRetries times, then applies the
// commit-count and error-payload gates before writing the task's report.
func (s *Supervisor) Run(ctx context.Context, t taskgraph.Task, worktreeDir, branch string) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "supervisor", "Run",
		trace.WithAttributes(telemetry.TaskAttrs(t.ID, branch)...),
	)
	defer span.End()

	prompt := BuildPrompt(t)
	outputFile := filepath.Join(worktreeDir, ".conductor-output.jsonl")

	if err := stageWorktree(worktreeDir, prompt); err != nil {
		return s.failInternal(ctx, span, t, worktreeDir, branch, fmt.Sprintf("stage worktree: %v", err), "")
	}

	var result engine.Result
	var execErr error
	attempts := s.Config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			telemetry.AddEvent(ctx, "supervisor.retry", attribute.Int("attempt", attempt))
			s.sleep(ctx, s.Config.RetryDelay)
		}

		result, execErr = s.Engine.Execute(ctx, prompt, outputFile, engine.Options{
			WorkDir:           worktreeDir,
			Model:             s.Config.Model,
			BypassPermissions: s.Config.BypassPerms,
			Timeout:           s.Config.EngineTimeout,
			MaxTurns:          s.Config.MaxTurns,
		})
		if execErr != nil {
			continue
		}
		if result.ExitError != nil {
			continue
		}
		if strings.TrimSpace(result.Output) == "" {
			continue
		}
		break
	}

	if execErr != nil {
		return s.failInternal(ctx, span, t, worktreeDir, branch, fmt.Sprintf("engine execution failed: %v", execErr), result.Output)
	}
	if result.ExitError != nil {
		msg := result.ExitError.Error()
		class := failure.Classify(msg)
		return s.fail(ctx, span, t, worktreeDir, branch, msg, result.Output, class)
	}
	if strings.TrimSpace(result.Output) == "" {
		return s.failInternal(ctx, span, t, worktreeDir, branch, "agent produced no output after retries", "")
	}

	commits, err := commitCount(worktreeDir, s.Config.BaseBranch)
	if err != nil {
		return s.failInternal(ctx, span, t, worktreeDir, branch, fmt.Sprintf("commit gate: %v", err), result.Output)
	}
	if commits < 1 {
		return s.failInternal(ctx, span, t, worktreeDir, branch, "commit gate: zero commits produced", result.Output)
	}

	changed, err := changedFiles(worktreeDir, s.Config.BaseBranch)
	if err != nil {
		return s.failInternal(ctx, span, t, worktreeDir, branch, fmt.Sprintf("changed files: %v", err), result.Output)
	}

	report := artifacts.Report{
		TaskID:        t.ID,
		Title:         t.Title,
		Branch:        branch,
		Status:        artifacts.StatusDone,
		Commits:       commits,
		ChangedFiles:  changed,
		ProgressNotes: progressNote(result.Output),
		Timestamp:     artifacts.NowTimestamp(s.Now()),
	}
	if err := s.Artifacts.WriteReport(report); err != nil {
		telemetry.RecordError(ctx, err)
	}
	if err := s.Artifacts.WriteLog(t.ID, result.Output); err != nil {
		telemetry.RecordError(ctx, err)
	}

	span.SetStatus(codes.Ok, "task completed")
	return Outcome{Report: report}
}

// fail writes a failure report. changedFiles is computed best-effort
// against worktreeDir: a worktree that never got far enough to exist (a
// staging failure) simply reports no changed files rather than failing the
// failure path itself.
func (s *Supervisor) fail(ctx context.Context, span trace.Span, t taskgraph.Task, worktreeDir, branch, message, output string, class failure.Type) Outcome {
	changed, _ := changedFiles(worktreeDir, s.Config.BaseBranch)
	report := artifacts.Report{
		TaskID:        t.ID,
		Title:         t.Title,
		Branch:        branch,
		Status:        artifacts.StatusFailed,
		FailureType:   artifacts.FailureType(class),
		ErrorMessage:  message,
		ChangedFiles:  changed,
		ProgressNotes: progressNote(output),
		Timestamp:     artifacts.NowTimestamp(s.Now()),
	}
	if err := s.Artifacts.WriteReport(report); err != nil {
		telemetry.RecordError(ctx, err)
	}
	if output != "" {
		if err := s.Artifacts.WriteLog(t.ID, output); err != nil {
			telemetry.RecordError(ctx, err)
		}
	}
	span.SetStatus(codes.Error, message)
	return Outcome{Report: report, Failed: true, ExternalFailure: class == failure.External}
}

func (s *Supervisor) failInternal(ctx context.Context, span trace.Span, t taskgraph.Task, worktreeDir, branch, message, output string) Outcome {
	return s.fail(ctx, span, t, worktreeDir, branch, message, output, failure.Internal)
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// progressNote tails output and prefixes it with the last step the agent
// was on, as internal/progress's classifier reads it.
func progressNote(output string) string {
	t := tail(output, 2000)
	if t == "" {
		return t
	}
	return fmt.Sprintf("[%s] %s", progress.Classify(t), t)
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"conductor/internal/artifacts"
	"conductor/internal/config"
	"conductor/internal/engine"
	"conductor/internal/failure"
	"conductor/internal/filelock"
	"conductor/internal/integration"
	"conductor/internal/orchestrator"
	"conductor/internal/sandbox"
	"conductor/internal/scheduler"
	"conductor/internal/supervisor"
	"conductor/internal/taskgraph"
	"conductor/internal/worktree"
)

// PortRangeMin and PortRangeMax bound the ports handed to concurrent
// OpenCodeEngine instances.
const (
	PortRangeMin = 8000
	PortRangeMax = 9000
)

func main() {
	configPath := flag.String("config", "conductor.yaml", "Path to the run configuration file")
	maxConcurrent := flag.Int("max-concurrent", 0, "Override scheduling.maxConcurrent from the config file")
	retries := flag.Int("retries", 1, "Max retries per task on empty output or an execution error")
	retryDelay := flag.Duration("retry-delay", 0, "Delay between retries")
	externalFailureDeadline := flag.Duration("external-failure-deadline", 0, "How long to wait for in-flight tasks to exit naturally after an external failure latches")
	externalFailureGrace := flag.Duration("external-failure-grace", 0, "Grace period after Stop before an in-flight task is killed")
	artifactsDir := flag.String("artifacts-dir", "", "Directory for reports, logs, and review output (defaults to <repoDir>/.conductor/artifacts)")
	dryRun := flag.Bool("dry-run", false, "Load and validate the config and task graph, then exit without running any task")
	resume := flag.Bool("resume", false, "Reload prior reports from artifacts-dir and skip tasks already recorded as done")
	flag.Parse()

	if err := run(*configPath, *maxConcurrent, *retries, *retryDelay, *externalFailureDeadline, *externalFailureGrace, *artifactsDir, *dryRun, *resume); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, maxConcurrent, retries int, retryDelay, extDeadline, extGrace time.Duration, artifactsDir string, dryRun, resume bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if maxConcurrent > 0 {
		cfg.Scheduling.MaxConcurrent = maxConcurrent
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	slog.Info("loaded config", "project", cfg.Project.Name, "repoDir", cfg.Project.RepoDir,
		"engine", cfg.Engine.Name, "maxConcurrent", cfg.Scheduling.MaxConcurrent)

	doc, err := taskgraph.Load(cfg.Project.TaskGraphPath)
	if err != nil {
		return fmt.Errorf("load task graph: %w", err)
	}
	graph, err := taskgraph.NewStore(doc)
	if err != nil {
		return fmt.Errorf("build task graph: %w", err)
	}
	slog.Info("loaded task graph", "tasks", len(graph.All()), "branch", graph.BranchName())

	if dryRun {
		slog.Info("dry run: config and task graph are valid, exiting without running any task")
		return nil
	}

	if artifactsDir == "" {
		artifactsDir = filepath.Join(cfg.Project.RepoDir, ".conductor", "artifacts")
	}
	store, err := artifacts.NewStore(artifactsDir)
	if err != nil {
		return fmt.Errorf("open artifacts store: %w", err)
	}

	if resume {
		if err := orchestrator.Resume(graph, store); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		slog.Info("resumed from prior reports")
	}

	locks := filelock.NewMemoryRegistry()
	sched, err := scheduler.New(graph, locks)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	wtVCS := worktree.NewGitVCS(cfg.Project.RepoDir, cfg.Project.WorktreeBaseDir)
	wtManager := worktree.NewManager(wtVCS, cfg.Project.WorktreeBaseDir)

	eng, err := buildEngine(cfg.Engine, cfg.Integration)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	sup := supervisor.New(eng, store, supervisor.Config{
		MaxRetries:    retries,
		RetryDelay:    retryDelay,
		BaseBranch:    cfg.Integration.TargetBranch,
		BypassPerms:   true,
		Model:         cfg.Engine.Model,
		EngineTimeout: cfg.Engine.Timeout(),
		MaxTurns:      cfg.Engine.MaxTurns,
	}, nil)

	failures := failure.NewController()

	intVCS := integration.NewGitVCS(cfg.Project.RepoDir)
	pipeline := integration.New(intVCS, eng, store, graph, integration.Config{
		BaseBranch:        cfg.Integration.TargetBranch,
		IntegrationBranch: "conductor/integration",
		RunReview:         cfg.Integration.RunReview,
		FailOnBlocker:     cfg.Integration.FailOnBlocker,
	}, cfg.Project.RepoDir)

	orch := orchestrator.New(graph, sched, wtManager, sup, store, failures, pipeline, orchestrator.Config{
		MaxConcurrent:           cfg.Scheduling.MaxConcurrent,
		BaseBranch:              cfg.Integration.TargetBranch,
		ExternalFailureDeadline: extDeadline,
		ExternalFailureGrace:    extGrace,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigChan
		slog.Warn("received shutdown signal, canceling run", "signal", sig.String())
		cancel()
	}()

	result, runErr := orch.Run(ctx)
	report(result)
	if runErr != nil {
		return fmt.Errorf("orchestrator run: %w", runErr)
	}
	if result.Failed {
		return fmt.Errorf("run halted by an external failure in task %s", result.FailureLatch.TaskID)
	}
	return nil
}

// buildEngine selects a concrete engine.Engine from cfg.Name. Supported
// names are "opencode", "line", "auto", and "result"; a LineEngine/
// AutoEngine/ResultEngine command and args come from cfg.Options. When
// integrationCfg.SandboxEnabled is set, "line" instead runs inside a
// short-lived Docker container per spec.md's optional sandboxed execution
// mode ("auto" and "result" have no sandboxed counterpart: full-auto and
// result-record tools were never driven through a container by the
// teacher's own sandbox idiom).
func buildEngine(cfg config.EngineConfig, integrationCfg config.IntegrationConfig) (engine.Engine, error) {
	switch cfg.Name {
	case "opencode":
		ports := engine.NewPortManager(PortRangeMin, PortRangeMax)
		return engine.NewOpenCodeEngine(ports), nil
	case "line":
		if integrationCfg.SandboxEnabled {
			mgr, err := sandbox.NewManager()
			if err != nil {
				return nil, fmt.Errorf("build sandbox manager: %w", err)
			}
			return &engine.SandboxEngine{
				Sandbox:    mgr,
				Image:      integrationCfg.SandboxImage,
				Command:    cfg.Options["command"],
				Args:       splitArgs(cfg.Options["args"]),
				BypassFlag: cfg.Options["bypassFlag"],
			}, nil
		}
		return &engine.LineEngine{
			Command:        cfg.Options["command"],
			Args:           splitArgs(cfg.Options["args"]),
			BypassFlag:     cfg.Options["bypassFlag"],
			PromptViaStdin: cfg.Options["promptViaStdin"] == "true",
		}, nil
	case "auto":
		return &engine.AutoEngine{
			Command: cfg.Options["command"],
			Args:    splitArgs(cfg.Options["args"]),
		}, nil
	case "result":
		return &engine.ResultEngine{
			Command:    cfg.Options["command"],
			Args:       splitArgs(cfg.Options["args"]),
			BypassFlag: cfg.Options["bypassFlag"],
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want one of opencode, line, auto, result)", cfg.Name)
	}
}

func splitArgs(s string) []string {
	return strings.Fields(s)
}

// report summarizes one orchestrator run for the operator.
func report(result orchestrator.RunResult) {
	slog.Info("run finished",
		"completed", len(result.CompletedTasks),
		"failed", len(result.FailedTasks),
		"setupFailures", len(result.SetupFailures),
		"deadlocked", result.Deadlocked,
		"preservedWorktrees", len(result.PreservedWorktrees))

	for _, id := range result.FailedTasks {
		slog.Warn("task failed", "task", id)
	}
	for _, path := range result.PreservedWorktrees {
		slog.Warn("worktree preserved for inspection", "path", path)
	}
	if result.FailureLatch != nil {
		slog.Error("external failure latched", "task", result.FailureLatch.TaskID, "message", result.FailureLatch.Message)
		for _, id := range result.ExternallyTimedOut {
			slog.Warn("task force-stopped during drain", "task", id)
		}
	}
	if result.Integration != nil {
		slog.Info("integration finished",
			"merged", len(result.Integration.Merged),
			"unresolved", len(result.Integration.Unresolved),
			"promotedToBase", result.Integration.PromotedToBase,
			"fixTasksAppended", len(result.Integration.FixTasksAppended))
	}
}

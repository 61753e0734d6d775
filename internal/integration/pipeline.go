// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package integration runs the post-scheduling merge-and-review pipeline:
// it folds every completed task's branch into one integration branch in
// dependency order, resolves textual merge conflicts with an agent,
// submits the result for an automated review, and either promotes the
// integration branch into base or synthesizes fix tasks from the review's
// blockers.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/artifacts"
	"conductor/internal/engine"
	"conductor/internal/scheduler"
	"conductor/internal/taskgraph"
	"conductor/internal/telemetry"
)

// Config controls the pipeline's branch naming and agent wiring.
type Config struct {
	BaseBranch        string
	IntegrationBranch string
	// RunReview gates whether the review agent runs at all once every
	// branch has merged cleanly. When false, a clean merge promotes
	// straight to base with no review step.
	RunReview bool
	// FailOnBlocker gates whether a blocker-severity review finding holds
	// back promotion. When false, blockers are recorded in the review
	// report only, no fix tasks are synthesized, and promotion proceeds
	// anyway.
	FailOnBlocker bool
}

// Result summarizes one pipeline run for the orchestrator's final report.
type Result struct {
	IntegrationBranch string
	Merged            []string
	Unresolved        []string
	Review            *ReviewReport
	PromotedToBase    bool
	FixTasksAppended  []string
}

// Pipeline wires the VCS surface, the conflict-resolution and review
// agents (both invoked through the same engine abstraction agents use),
// the task graph, and the artifact store together.
type Pipeline struct {
	VCS       VCS
	Engine    engine.Engine
	Artifacts *artifacts.Store
	Graph     *taskgraph.Store
	Config    Config
	// WorkDir is the repository checkout the review agent runs in; its
	// output file is read back from here once the agent exits.
	WorkDir string
}

// New creates a Pipeline. workDir is the repository checkout the
// integration and base branches live in.
func New(vcs VCS, eng engine.Engine, store *artifacts.Store, graph *taskgraph.Store, cfg Config, workDir string) *Pipeline {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.IntegrationBranch == "" {
		cfg.IntegrationBranch = "integration"
	}
	return &Pipeline{VCS: vcs, Engine: eng, Artifacts: store, Graph: graph, Config: cfg, WorkDir: workDir}
}

// Run executes the full pipeline over completed, in whatever order the
// caller collected them (the orchestrator passes completion order); Run
// computes its own dependency-consistent merge order internally. Run assumes at least one task is present; callers are
// responsible for the "at least one task reached done and push-mode is
// disabled" precondition (spec.md §4.8) before calling.
func (p *Pipeline) Run(ctx context.Context, completed []taskgraph.Task) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "integration", "Run",
		trace.WithAttributes(attribute.String("integration.branch", p.Config.IntegrationBranch)))
	defer span.End()

	result := Result{IntegrationBranch: p.Config.IntegrationBranch}

	if err := p.VCS.CreateBranch(p.Config.IntegrationBranch, p.Config.BaseBranch); err != nil {
		telemetry.RecordError(ctx, err)
		span.SetStatus(codes.Error, "create integration branch failed")
		return result, fmt.Errorf("integration: create integration branch: %w", err)
	}

	order, err := scheduler.TopoOrder(completed)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return result, fmt.Errorf("integration: order completed tasks: %w", err)
	}
	byID := make(map[string]taskgraph.Task, len(completed))
	for _, t := range completed {
		byID[t.ID] = t
	}

	for _, id := range order {
		t, ok := byID[id]
		if !ok {
			continue
		}
		merged, err := p.mergeOne(ctx, t)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return result, fmt.Errorf("integration: merge %s: %w", t.ID, err)
		}
		if merged {
			result.Merged = append(result.Merged, t.ID)
		} else {
			result.Unresolved = append(result.Unresolved, t.ID)
		}
	}

	if len(result.Unresolved) > 0 {
		span.SetStatus(codes.Error, "unresolved merge conflicts")
		return result, nil
	}

	var blockers []Issue
	if p.Config.RunReview {
		review, err := p.review(ctx, completed)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return result, fmt.Errorf("integration: review: %w", err)
		}
		result.Review = &review
		blockers = review.Blockers()
	}

	if len(blockers) == 0 || !p.Config.FailOnBlocker {
		if err := p.VCS.MergeIntoBase(p.Config.IntegrationBranch, p.Config.BaseBranch); err != nil {
			telemetry.RecordError(ctx, err)
			span.SetStatus(codes.Error, "promote to base failed")
			return result, fmt.Errorf("integration: merge into base: %w", err)
		}
		if err := p.VCS.DeleteBranch(p.Config.IntegrationBranch); err != nil {
			telemetry.RecordError(ctx, err)
		}
		result.PromotedToBase = true
		if len(blockers) > 0 {
			span.SetStatus(codes.Ok, fmt.Sprintf("integration promoted to base despite %d blocker(s) (failOnBlocker disabled)", len(blockers)))
		} else {
			span.SetStatus(codes.Ok, "integration promoted to base")
		}
		return result, nil
	}

	fixTasks := SynthesizeFixTasks(blockers)
	for _, ft := range fixTasks {
		if err := p.Graph.AddTask(ft); err != nil {
			telemetry.RecordError(ctx, err)
			continue
		}
		result.FixTasksAppended = append(result.FixTasksAppended, ft.ID)
	}
	span.SetStatus(codes.Error, fmt.Sprintf("%d blocker(s), integration branch preserved", len(blockers)))
	return result, nil
}

// mergeOne merges one task's branch into the integration branch. On a
// conflict it invokes the conflict-resolution agent once; if conflicts
// still remain afterward, it aborts the merge and reports the branch as
// unresolved rather than retrying further.
func (p *Pipeline) mergeOne(ctx context.Context, t taskgraph.Task) (bool, error) {
	branch := t.BranchName
	if branch == "" {
		return false, fmt.Errorf("task %s has no assigned branch", t.ID)
	}

	mergeErr := p.VCS.Merge(branch)
	if mergeErr == nil {
		if err := p.VCS.DeleteBranch(branch); err != nil {
			telemetry.RecordError(ctx, err)
		}
		return true, nil
	}

	paths, err := p.VCS.ConflictedPaths()
	if err != nil {
		return false, fmt.Errorf("list conflicted paths: %w", err)
	}
	if len(paths) == 0 {
		// Merge failed for a reason other than a content conflict;
		// nothing for the resolver agent to act on.
		_ = p.VCS.MergeAbort()
		return false, nil
	}

	prompt := buildConflictPrompt(t, paths)
	if _, err := p.Engine.Execute(ctx, prompt, "", engine.Options{WorkDir: p.WorkDir}); err != nil {
		telemetry.RecordError(ctx, err)
		_ = p.VCS.MergeAbort()
		return false, nil
	}

	remaining, err := p.VCS.ConflictedPaths()
	if err != nil {
		return false, fmt.Errorf("recheck conflicted paths: %w", err)
	}
	if len(remaining) > 0 {
		_ = p.VCS.MergeAbort()
		return false, nil
	}

	if err := p.VCS.DeleteBranch(branch); err != nil {
		telemetry.RecordError(ctx, err)
	}
	return true, nil
}

func buildConflictPrompt(t taskgraph.Task, paths []string) string {
	var b strings.Builder
	b.WriteString("Resolve the git merge conflict in the following files. Edit each file to a ")
	b.WriteString("correct merged state, stage the resolution, and commit it. Do not leave any ")
	b.WriteString("conflict markers behind.\n\n")
	fmt.Fprintf(&b, "Task: %s\n", t.ID)
	if t.MergeNotes != "" {
		fmt.Fprintf(&b, "Merge notes: %s\n", t.MergeNotes)
	}
	b.WriteString("Conflicted paths:\n")
	for _, path := range paths {
		fmt.Fprintf(&b, "  - %s\n", path)
	}
	return b.String()
}

// review invokes the review agent over the integration diff and the
// accumulated task reports, then reads back review-report.json.
func (p *Pipeline) review(ctx context.Context, completed []taskgraph.Task) (ReviewReport, error) {
	changed, err := p.VCS.ChangedFiles(fmt.Sprintf("%s..%s", p.Config.BaseBranch, p.Config.IntegrationBranch))
	if err != nil {
		return ReviewReport{}, fmt.Errorf("diff base..integration: %w", err)
	}

	var b strings.Builder
	b.WriteString("Review the following integration branch before it is promoted to the base ")
	b.WriteString("branch. Write your findings to review-report.json as an object with an ")
	b.WriteString("\"issues\" array, each issue carrying a \"severity\" of blocker, critical, ")
	b.WriteString("warning, or info, a \"description\", and optionally a \"path\".\n\n")
	fmt.Fprintf(&b, "Changed files (%s..%s):\n", p.Config.BaseBranch, p.Config.IntegrationBranch)
	for _, path := range changed {
		fmt.Fprintf(&b, "  - %s\n", path)
	}

	b.WriteString("\nAccumulated task reports:\n")
	for _, t := range completed {
		report, err := p.Artifacts.ReadReport(t.ID)
		if err != nil {
			telemetry.RecordError(ctx, err)
			continue
		}
		fmt.Fprintf(&b, "  - %s (%s): %d commit(s), changed [%s]\n", report.TaskID, report.Status, report.Commits, report.ChangedFiles)
		if report.ProgressNotes != "" {
			fmt.Fprintf(&b, "    notes: %s\n", report.ProgressNotes)
		}
	}

	outputFile := p.reviewReportPath()
	if _, err := p.Engine.Execute(ctx, b.String(), outputFile, engine.Options{WorkDir: p.WorkDir}); err != nil {
		return ReviewReport{}, fmt.Errorf("run review agent: %w", err)
	}

	raw, err := os.ReadFile(outputFile)
	if err != nil {
		return ReviewReport{}, fmt.Errorf("read review report: %w", err)
	}
	if err := p.Artifacts.WriteReviewReport(raw); err != nil {
		return ReviewReport{}, fmt.Errorf("persist review report: %w", err)
	}
	return ParseReviewReport(raw)
}

// reviewReportPath is where the review agent is instructed to write
// review-report.json, inside the pipeline's working copy.
func (p *Pipeline) reviewReportPath() string {
	return filepath.Join(p.WorkDir, "review-report.json")
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"conductor/internal/agentclient"
)

// OpenCodeEngine boots a dedicated `opencode serve` instance per Execute
// call, drives it through agentclient.Client, and shuts it down
// afterwards. Its Result carries Output and Duration only: no step_finish
// record is parsed, so TokensUsed and CostUSD are left zero.
type OpenCodeEngine struct {
	Command string // defaults to "opencode"
	Ports   *PortManager
}

// NewOpenCodeEngine creates an engine allocating ports from ports.
func NewOpenCodeEngine(ports *PortManager) *OpenCodeEngine {
	return &OpenCodeEngine{Command: "opencode", Ports: ports}
}

func (e *OpenCodeEngine) command() string {
	if e.Command == "" {
		return "opencode"
	}
	return e.Command
}

// Execute boots a fresh server, sends one prompt, writes the transcript to
// outputFile, and tears the server down. BypassPermissions is conveyed to
// the child process via an environment variable, since opencode serve has
// no permission-bypass CLI flag of its own.
func (e *OpenCodeEngine) Execute(ctx context.Context, prompt, outputFile string, opts Options) (Result, error) {
	start := time.Now()

	port, err := e.Ports.Allocate()
	if err != nil {
		return Result{}, fmt.Errorf("opencode engine: %w", err)
	}
	defer func() { _ = e.Ports.Release(port) }()

	bootCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		bootCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	env := make(map[string]string, len(opts.Env)+1)
	for k, v := range opts.Env {
		env[k] = v
	}
	if opts.BypassPermissions {
		env["OPENCODE_PERMISSION_BYPASS"] = "1"
	}

	handle, err := bootServer(bootCtx, e.command(), opts.WorkDir, port, env)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = stopServer(handle) }()

	client := agentclient.NewClient(handle.baseURL, port)

	promptOpts := &agentclient.PromptOptions{
		Title: "conductor task",
		Agent: "build",
		Model: opts.Model,
	}

	result, err := client.ExecutePrompt(bootCtx, prompt, promptOpts)
	if err != nil {
		return Result{Duration: time.Since(start), ExitError: err}, nil
	}

	text := result.GetText()
	text += e.continueUntilFilesChange(bootCtx, client, result.SessionID, opts.MaxTurns)
	duration := time.Since(start)

	if err := os.WriteFile(outputFile, []byte(text), 0o644); err != nil {
		return Result{}, fmt.Errorf("opencode engine: write output: %w", err)
	}

	return Result{
		Success:  true,
		Output:   text,
		Duration: duration,
	}, nil
}

// continueUntilFilesChange nudges the session forward with a "continue"
// command, once per remaining turn, as long as the worktree still has no
// tracked changes. It stops as soon as a file shows up, maxTurns is
// exhausted, or the server returns an error. maxTurns <= 1 disables the
// nudge loop entirely: the first ExecutePrompt call is the only turn spent.
func (e *OpenCodeEngine) continueUntilFilesChange(ctx context.Context, client *agentclient.Client, sessionID string, maxTurns int) string {
	var extra string
	for turn := 1; turn < maxTurns; turn++ {
		files, err := client.GetFileStatus(ctx)
		if err != nil || len(files) > 0 {
			return extra
		}
		cont, err := client.ExecuteCommand(ctx, sessionID, "continue", nil)
		if err != nil {
			return extra
		}
		extra += cont.GetText()
	}
	return extra
}

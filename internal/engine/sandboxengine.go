// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"conductor/internal/sandbox"
)

// SandboxEngine drives the same line-oriented-JSON CLI tool as LineEngine,
// but runs it inside a short-lived Docker container bind-mounting the
// worktree instead of as a bare subprocess. It is an additional execution
// mode selected by configuration, supplementing (not replacing) the
// worktree isolation every task already gets.
type SandboxEngine struct {
	Sandbox    *sandbox.Manager
	Image      string
	Command    string
	Args       []string
	BypassFlag string
}

// Execute runs Command with Args and prompt as the final argument inside a
// fresh container, decoding its combined stdout/stderr as a line-oriented
// JSON stream the same way LineEngine and ResultEngine do.
func (e *SandboxEngine) Execute(ctx context.Context, prompt, outputFile string, opts Options) (Result, error) {
	start := time.Now()

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := append([]string{}, e.Args...)
	if opts.BypassPermissions && e.BypassFlag != "" {
		args = append(args, e.BypassFlag)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, prompt)

	out, runErr := e.Sandbox.Run(runCtx, sandbox.RunSpec{
		Image:       e.Image,
		WorktreeDir: opts.WorkDir,
		Command:     append([]string{e.Command}, args...),
		Env:         envAsSlice(opts.Env),
	})
	duration := time.Since(start)

	if err := os.WriteFile(outputFile, []byte(out), 0o644); err != nil {
		return Result{}, fmt.Errorf("sandboxengine: write output: %w", err)
	}

	if runErr != nil {
		return Result{Duration: duration, ExitError: fmt.Errorf("sandboxengine: %w", runErr)}, nil
	}

	records, decodeErr := decodeStream(strings.NewReader(out))
	if decodeErr != nil {
		return Result{Duration: duration, ExitError: decodeErr}, nil
	}

	return Result{
		Success:  true,
		Output:   plainText(records),
		Duration: duration,
	}, nil
}

func envAsSlice(overrides map[string]string) []string {
	env := make([]string, 0, len(overrides))
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

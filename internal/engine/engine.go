// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package engine abstracts over the different ways a coding-agent CLI can
// be driven to completion: a long-running SDK-backed server, a line-stream
// JSON subprocess, a single full-auto JSON payload, or a line-stream with a
// terminal result record. internal/supervisor depends only on Engine; the
// concrete choice is a run-wide configuration value.
package engine

import (
	"context"
	"time"
)

// Options configures one Execute call. Not every engine uses every field:
// Engine C, for example, has no notion of a permission-bypass flag because
// bypass is implicit.
type Options struct {
	// WorkDir is the worktree the agent process should run in.
	WorkDir string

	// Model identifies the model to use, in "provider/model" form where
	// the underlying tool supports it.
	Model string

	// BypassPermissions requests that the agent skip interactive
	// permission prompts. How this is conveyed (env var, CLI flag,
	// implicit) is an engine-specific detail.
	BypassPermissions bool

	// Timeout bounds the whole Execute call. Zero means no timeout beyond
	// ctx's own deadline.
	Timeout time.Duration

	// Env contains extra environment variables for the child process.
	Env map[string]string

	// MaxTurns bounds how many conversational turns an engine that
	// supports multi-turn sessions (Engine A) takes before giving up and
	// returning whatever it has. Engines without a turn concept ignore it.
	MaxTurns int
}

// Result is what every engine reports back regardless of how it computed
// it. Fields an engine cannot populate (for example Engine C never reports
// TokensUsed) are left at their zero value.
type Result struct {
	Success    bool
	Output     string
	TokensUsed int
	CostUSD    float64
	Duration   time.Duration
	ExitError  error
}

// Engine runs one agent invocation against a prompt, writing whatever raw
// transcript it produces to outputFile, and returns a normalized Result.
type Engine interface {
	Execute(ctx context.Context, prompt string, outputFile string, opts Options) (Result, error)
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package agentclient wraps the OpenCode SDK session/message API behind a
// small interface so internal/engine can drive an opencode serve instance
// without depending on the SDK types directly.
package agentclient

import (
	"context"

	"github.com/sst/opencode-sdk-go"
)

// PromptOptions configures how a prompt is executed.
type PromptOptions struct {
	// SessionID to use; a new session is created when empty.
	SessionID string

	// Title for a new session, used only when SessionID is empty.
	Title string

	// Model to use for this prompt, e.g. "anthropic/claude-sonnet-4-5".
	Model string

	// Agent mode to use, e.g. "build", "plan", "general".
	Agent string

	// NoReply sends the prompt as context injection with no model response.
	NoReply bool

	// SystemPrompt is carried on the options but Client.ExecutePrompt does
	// not send it; the session keeps its own system prompt.
	SystemPrompt string

	// Tools is carried on the options but Client.ExecutePrompt does not
	// send it; the server's own tool set applies.
	Tools []string
}

// PromptResult holds the response to one prompt.
type PromptResult struct {
	SessionID string
	MessageID string
	Parts     []ResultPart
}

// ResultPart is one part of a prompt response.
type ResultPart struct {
	Type       string
	Text       string
	ToolName   string
	ToolResult interface{}
}

// GetText concatenates every text part of the result.
func (r *PromptResult) GetText() string {
	var text string
	for _, part := range r.Parts {
		if part.Type == "text" {
			text += part.Text
		}
	}
	return text
}

// GetToolResults returns every tool-invocation part of the result.
func (r *PromptResult) GetToolResults() []ResultPart {
	var tools []ResultPart
	for _, part := range r.Parts {
		if part.Type == "tool" {
			tools = append(tools, part)
		}
	}
	return tools
}

// ClientInterface is the OpenCode SDK surface Engine A depends on.
type ClientInterface interface {
	ExecutePrompt(ctx context.Context, prompt string, opts *PromptOptions) (*PromptResult, error)
	ExecuteCommand(ctx context.Context, sessionID string, command string, args []string) (*PromptResult, error)
	GetFileStatus(ctx context.Context) ([]opencode.File, error)
	GetBaseURL() string
	GetPort() int
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package agentclient

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/telemetry"
)

var _ ClientInterface = (*Client)(nil)

// Client wraps the OpenCode SDK, pinned to one running opencode serve
// instance identified by baseURL/port. Engine A creates one Client per
// agent process it boots.
type Client struct {
	sdk     *opencode.Client
	baseURL string
	port    int
}

// NewClient configures an SDK client for a locally running opencode serve
// instance. No API key is needed for local connections.
func NewClient(baseURL string, port int) *Client {
	sdk := opencode.NewClient(option.WithBaseURL(baseURL))
	return &Client{sdk: sdk, baseURL: baseURL, port: port}
}

// GetSDK returns the underlying OpenCode SDK client for callers that need
// SDK surface beyond ClientInterface.
func (c *Client) GetSDK() *opencode.Client { return c.sdk }

// GetBaseURL returns the base URL this client is connected to.
func (c *Client) GetBaseURL() string { return c.baseURL }

// GetPort returns the port this client is connected to.
func (c *Client) GetPort() int { return c.port }

// ExecutePrompt creates or reuses a session, sends prompt, and returns the
// assembled response.
func (c *Client) ExecutePrompt(ctx context.Context, prompt string, opts *PromptOptions) (*PromptResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "agentclient", "ExecutePrompt",
		trace.WithAttributes(
			attribute.String("agentclient.base_url", c.baseURL),
			attribute.Int("agentclient.port", c.port),
			attribute.Int("prompt.length", len(prompt)),
		),
	)
	defer span.End()

	start := time.Now()
	if opts == nil {
		opts = &PromptOptions{}
	}
	if opts.Model != "" {
		span.SetAttributes(telemetry.AttrModel.String(opts.Model))
	}

	telemetry.AddEvent(ctx, "prompt.start", attribute.String("prompt_preview", truncateString(prompt, 100)))

	sessionID, err := c.getOrCreateSession(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session")
		return nil, err
	}
	span.SetAttributes(telemetry.AttrSessionID.String(sessionID))

	message, err := c.sendPromptMessage(ctx, sessionID, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send prompt")
		return nil, err
	}

	result := c.extractPromptResult(sessionID, message)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int("agentclient.response_parts", len(result.Parts)),
		telemetry.AttrDuration.Int64(duration.Milliseconds()),
	)
	telemetry.AddEvent(ctx, "prompt.completed",
		telemetry.AttrSessionID.String(sessionID),
		attribute.String("message_id", result.MessageID),
		telemetry.AttrDuration.Int64(duration.Milliseconds()),
	)

	span.SetStatus(codes.Ok, "prompt executed")
	return result, nil
}

func (c *Client) getOrCreateSession(ctx context.Context, opts *PromptOptions) (string, error) {
	if opts.SessionID != "" {
		return opts.SessionID, nil
	}
	session, err := c.sdk.Session.New(ctx, opencode.SessionNewParams{
		Title: opencode.F(opts.Title),
	})
	if err != nil {
		return "", fmt.Errorf("agentclient: create session: %w", err)
	}
	return session.ID, nil
}

func (c *Client) sendPromptMessage(ctx context.Context, sessionID, prompt string, opts *PromptOptions) (*opencode.SessionPromptResponse, error) {
	parts := []opencode.SessionPromptParamsPartUnion{
		opencode.TextPartInputParam{
			Type: opencode.F(opencode.TextPartInputTypeText),
			Text: opencode.F(prompt),
		},
	}
	params := opencode.SessionPromptParams{Parts: opencode.F(parts)}
	c.applyPromptOptions(&params, opts)

	message, err := c.sdk.Session.Prompt(ctx, sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("agentclient: send prompt: %w", err)
	}
	return message, nil
}

func (c *Client) applyPromptOptions(params *opencode.SessionPromptParams, opts *PromptOptions) {
	if opts.Model != "" {
		providerID, modelID := "", opts.Model
		if strings.Contains(opts.Model, "/") {
			split := strings.SplitN(opts.Model, "/", 2)
			providerID, modelID = split[0], split[1]
		}
		params.Model = opencode.F(opencode.SessionPromptParamsModel{
			ProviderID: opencode.F(providerID),
			ModelID:    opencode.F(modelID),
		})
	}
	if opts.Agent != "" {
		params.Agent = opencode.F(opts.Agent)
	}
	if opts.NoReply {
		params.NoReply = opencode.F(true)
	}
}

func (c *Client) extractPromptResult(sessionID string, message *opencode.SessionPromptResponse) *PromptResult {
	result := &PromptResult{
		SessionID: sessionID,
		MessageID: message.Info.ID,
		Parts:     make([]ResultPart, 0, len(message.Parts)),
	}
	for _, part := range message.Parts {
		rp := ResultPart{Type: string(part.Type)}
		switch part.Type {
		case opencode.PartTypeText, opencode.PartTypeReasoning:
			rp.Text = part.Text
		case opencode.PartTypeTool:
			rp.ToolName = part.Tool
		}
		result.Parts = append(result.Parts, rp)
	}
	return result
}

// ExecuteCommand runs a slash command on the server's session.
func (c *Client) ExecuteCommand(ctx context.Context, sessionID, command string, args []string) (*PromptResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "agentclient", "ExecuteCommand",
		trace.WithAttributes(
			telemetry.AttrSessionID.String(sessionID),
			attribute.String("agentclient.command", command),
		),
	)
	defer span.End()

	argsStr := strings.Join(args, " ")
	response, err := c.sdk.Session.Command(ctx, sessionID, opencode.SessionCommandParams{
		Command:   opencode.F(command),
		Arguments: opencode.F(argsStr),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command failed")
		return nil, fmt.Errorf("agentclient: execute command: %w", err)
	}

	result := &PromptResult{
		SessionID: sessionID,
		MessageID: response.Info.ID,
		Parts:     make([]ResultPart, 0, len(response.Parts)),
	}
	for _, part := range response.Parts {
		rp := ResultPart{Type: string(part.Type)}
		switch part.Type {
		case opencode.PartTypeText, opencode.PartTypeReasoning:
			rp.Text = part.Text
		case opencode.PartTypeTool:
			rp.ToolName = part.Tool
		}
		result.Parts = append(result.Parts, rp)
	}

	span.SetStatus(codes.Ok, "command executed")
	return result, nil
}

// GetFileStatus reports the files with uncommitted changes in the server's
// working directory, with their status.
func (c *Client) GetFileStatus(ctx context.Context) ([]opencode.File, error) {
	files, err := c.sdk.File.Status(ctx, opencode.FileStatusParams{})
	if err != nil {
		return nil, fmt.Errorf("agentclient: file status: %w", err)
	}
	if files == nil {
		return []opencode.File{}, nil
	}
	return *files, nil
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

package chatbot

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/papermind-ai/papermind/pkg/llms"
	"github.com/papermind-ai/papermind/pkg/llmutils"
	"github.com/papermind-ai/papermind/registry"
)

// ToolCallObserver is notified before each tool execution, with the raw
// argument JSON. Used by the chat loop to echo activity.
type ToolCallObserver func(name string, arguments string)

// TextObserver is notified with each text block the model produces.
type TextObserver func(text string)

// Engine runs the tool-calling conversation loop: it sends the conversation
// to the model, executes any requested tools through the registry, feeds the
// results back, and repeats until the model answers in plain text or a guard
// trips.
type Engine struct {
	model    llms.Model
	registry *registry.Registry
	cfg      ChatConfig

	// OnText and OnToolCall surface progress to the UI; both may be nil.
	OnText     TextObserver
	OnToolCall ToolCallObserver
}

// NewEngine creates an engine over the given model and tool registry.
func NewEngine(model llms.Model, reg *registry.Registry, cfg ChatConfig) *Engine {
	return &Engine{
		model:    model,
		registry: reg,
		cfg:      cfg,
	}
}

// ProcessQuery runs one user query to completion and returns the model's
// final text. Each query is an independent conversation.
func (e *Engine) ProcessQuery(ctx context.Context, query string) (string, error) {
	var messages []llms.Message
	if e.cfg.SystemPrompt != "" {
		messages = append(messages, llms.MessageFromTextParts(llms.RoleSystem, e.cfg.SystemPrompt))
	}
	messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, query))

	maxRounds := values.NumbersCoalesce(e.cfg.MaxRounds, DefaultMaxRounds)
	maxTokens := values.NumbersCoalesce(e.cfg.MaxTokens, DefaultMaxTokens)
	maxContent := values.NumbersCoalesce(e.cfg.MaxContentSize, DefaultMaxContentSize)

	opts := []llms.CallOption{
		llms.WithMaxTokens(maxTokens),
	}
	if descriptors := e.registry.Descriptors(); len(descriptors) > 0 {
		opts = append(opts, llms.WithTools(descriptors))
	}

	var finalText strings.Builder

	for round := 0; ; round++ {
		if round >= maxRounds {
			return finalText.String(), errors.Errorf("conversation exceeded %d rounds", maxRounds)
		}
		if size := llmutils.CountMessagesContentSize(messages); size > maxContent {
			return finalText.String(), errors.Errorf("conversation content size %d exceeds limit %d", size, maxContent)
		}

		resp, err := e.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return finalText.String(), errors.WithMessage(err, "failed to generate content")
		}

		var parts []llms.ContentPart
		var toolCalls []llms.ToolCall
		for _, choice := range resp.Choices {
			if choice.Content != "" {
				parts = append(parts, llms.TextContent{Text: choice.Content})
				if finalText.Len() > 0 {
					finalText.WriteByte('\n')
				}
				finalText.WriteString(choice.Content)
				if e.OnText != nil {
					e.OnText(choice.Content)
				}
			}
			for _, tc := range choice.ToolCalls {
				parts = append(parts, tc)
				toolCalls = append(toolCalls, tc)
			}
		}

		if len(toolCalls) == 0 {
			return finalText.String(), nil
		}

		messages = append(messages, llms.MessageFromParts(llms.RoleAI, parts...))

		// Tools run sequentially, in the order the model requested them;
		// each result is appended before the next tool starts.
		for _, tc := range toolCalls {
			messages = append(messages, llms.MessageFromToolResponse(llms.RoleTool, e.executeToolCall(ctx, tc)))
		}
	}
}

// executeToolCall runs a single tool call and maps every failure mode into an
// in-band tool response, so the model can see what went wrong and adjust.
func (e *Engine) executeToolCall(ctx context.Context, tc llms.ToolCall) llms.ToolCallResponse {
	name := tc.FunctionCall.Name
	arguments := tc.FunctionCall.Arguments
	if arguments == "" {
		arguments = "{}"
	}

	if e.OnToolCall != nil {
		e.OnToolCall(name, arguments)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", name,
		"args", arguments,
	)

	response := llms.ToolCallResponse{
		ToolCallID: tc.ID,
		Name:       name,
	}

	caller, err := e.registry.Resolve(name)
	if err != nil {
		response.Content = "tool not available: " + name
		response.IsError = true
		return response
	}

	result, err := caller.CallTool(ctx, name, json.RawMessage(arguments))
	if err != nil {
		response.Content = "tool call failed: " + err.Error()
		response.IsError = true
		return response
	}

	response.Content = result.Text()
	response.IsError = result.IsError
	return response
}

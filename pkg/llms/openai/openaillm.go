// Package openai implements the llms.Model interface over the OpenAI chat
// completions API and compatible endpoints.
package openai

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/papermind-ai/papermind/pkg/llms"
	"github.com/papermind-ai/papermind/pkg/llms/openai/internal/openaiclient"
)

type ChatMessage = openaiclient.ChatMessage

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

var (
	ErrEmptyResponse = errors.New("openai: no response")
	ErrMissingToken  = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
)

type LLM struct {
	client *openaiclient.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	options, c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: c,
		model:  options.model,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to process messages")
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		MaxCompletionTokens: values.NumbersCoalesce(opts.MaxTokens, openaiclient.DefaultMaxTokens),
		StopWords:           opts.StopWords,
		Tools:               ToTools(opts.Tools),
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"PromptTokens":     result.Usage.PromptTokens,
				"CompletionTokens": result.Usage.CompletionTokens,
				"TotalTokens":      result.Usage.TotalTokens,
				"ID":               result.ID,
				"Index":            c.Index,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ProcessMessages converts generic messages to chat completion messages. Tool
// responses become role "tool" messages carrying the originating call ID.
func ProcessMessages(messages []llms.Message) ([]*openaiclient.ChatMessage, error) {
	chatMsgs := make([]*openaiclient.ChatMessage, 0, len(messages))
	for _, mc := range messages {
		if len(mc.Parts) == 0 {
			continue
		}
		msg := &openaiclient.ChatMessage{}
		switch mc.Role {
		case llms.RoleSystem:
			msg.Role = RoleSystem
		case llms.RoleAI:
			msg.Role = RoleAssistant
		case llms.RoleHuman:
			msg.Role = RoleUser
		case llms.RoleTool:
			msg.Role = RoleTool
			if len(mc.Parts) != 1 {
				return nil, errors.Errorf("expected exactly one part for role %v, got %d", mc.Role, len(mc.Parts))
			}
			p, ok := mc.Parts[0].(llms.ToolCallResponse)
			if !ok {
				return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
			}
			msg.ToolCallID = p.ToolCallID
			msg.Content = p.Content
			chatMsgs = append(chatMsgs, msg)
			continue
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}

		var texts []string
		for _, part := range mc.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				texts = append(texts, p.Text)
			case llms.ToolCall:
				if mc.Role != llms.RoleAI {
					return nil, errors.Errorf("tool call part not supported for role %v", mc.Role)
				}
				msg.ToolCalls = append(msg.ToolCalls, openaiclient.ToolCall{
					ID:   p.ID,
					Type: openaiclient.ToolTypeFunction,
					Function: openaiclient.ToolFunction{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				})
			default:
				return nil, errors.Errorf("unsupported message part type: %T", part)
			}
		}
		msg.Content = strings.Join(texts, "\n")
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			return nil, errors.Errorf("no valid content in %s message", msg.Role)
		}
		chatMsgs = append(chatMsgs, msg)
	}
	return chatMsgs, nil
}

// ToTools converts tool definitions to the chat completions wire format.
func ToTools(tools []llms.Tool) []openaiclient.Tool {
	if len(tools) == 0 {
		return nil
	}
	res := make([]openaiclient.Tool, len(tools))
	for i, t := range tools {
		res[i] = openaiclient.Tool{
			Type: openaiclient.ToolTypeFunction,
			Function: openaiclient.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		}
	}
	return res
}

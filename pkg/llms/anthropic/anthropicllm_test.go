package anthropic_test

import (
	"net/http"
	"reflect"
	"testing"

	"github.com/papermind-ai/papermind/pkg/llms"
	"github.com/papermind-ai/papermind/pkg/llms/anthropic"
	"github.com/papermind-ai/papermind/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Setenv(anthropic.TokenEnvVarName, "")

	tests := []struct {
		name        string
		opts        []anthropic.Option
		wantErr     bool
		errContains string
	}{
		{
			name:        "missing token",
			opts:        []anthropic.Option{anthropic.WithModel("claude-3-7-sonnet-latest")},
			wantErr:     true,
			errContains: "missing API key",
		},
		{
			name:        "missing model",
			opts:        []anthropic.Option{anthropic.WithToken("fake-token")},
			wantErr:     true,
			errContains: "model is required",
		},
		{
			name: "valid configuration",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-7-sonnet-latest"),
			},
			wantErr: false,
		},
		{
			name: "with custom base URL",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-7-sonnet-latest"),
				anthropic.WithBaseURL("https://custom.anthropic.com"),
			},
			wantErr: false,
		},
		{
			name: "with custom HTTP client",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-7-sonnet-latest"),
				anthropic.WithHTTPClient(&http.Client{}),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allm, err := anthropic.New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, allm)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, allm)
				assert.NotNil(t, allm.Client)
				assert.NotNil(t, allm.Options)
			}
		})
	}
}

func TestNewWithEnvironmentVariable(t *testing.T) {
	t.Setenv(anthropic.TokenEnvVarName, "env-token")

	llm, err := anthropic.New(anthropic.WithModel("claude-3-7-sonnet-latest"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", llm.Options.Token)
	assert.Equal(t, "claude-3-7-sonnet-latest", llm.GetName())
	assert.Equal(t, llms.ProviderAnthropic, llm.GetProviderType())
}

func TestProcessMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		messages     []llms.Message
		wantMessages int
		wantSystem   string
		wantErr      bool
		errContains  string
	}{
		{
			name:         "empty messages",
			messages:     []llms.Message{},
			wantMessages: 0,
			wantSystem:   "",
		},
		{
			name: "system message only",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleSystem, "You are a research assistant."),
			},
			wantMessages: 0,
			wantSystem:   "You are a research assistant.",
		},
		{
			name: "multiple system messages",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleSystem, "You are a research assistant."),
				llms.MessageFromTextParts(llms.RoleSystem, "Always cite papers."),
			},
			wantMessages: 0,
			wantSystem:   "You are a research assistant.\nAlways cite papers.",
		},
		{
			name: "human message with text",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleHuman, "Find papers about llm agents."),
			},
			wantMessages: 1,
			wantSystem:   "",
		},
		{
			name: "AI message with tool call",
			messages: []llms.Message{
				llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
					ID:   "call_123",
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "search_papers",
						Arguments: `{"topic": "llm agents"}`,
					},
				}),
			},
			wantMessages: 1,
			wantSystem:   "",
		},
		{
			name: "AI message with invalid tool call arguments",
			messages: []llms.Message{
				llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
					ID:   "call_123",
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "search_papers",
						Arguments: `{invalid-json}`,
					},
				}),
			},
			wantErr:     true,
			errContains: "failed to unmarshal tool call arguments",
		},
		{
			name: "tool message",
			messages: []llms.Message{
				llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
					ToolCallID: "call_123",
					Name:       "search_papers",
					Content:    "2301.12345v1, 2302.00001v2",
				}),
			},
			wantMessages: 1,
			wantSystem:   "",
		},
		{
			name: "messages without parts are skipped",
			messages: []llms.Message{
				{Role: llms.RoleHuman},
				llms.MessageFromTextParts(llms.RoleHuman, "Hello"),
			},
			wantMessages: 1,
			wantSystem:   "",
		},
		{
			name: "unsupported role",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.Role("generic"), "Generic message"),
			},
			wantErr:     true,
			errContains: "unsupported message type",
		},
		{
			name: "system message with non-text part",
			messages: []llms.Message{
				llms.MessageFromToolCalls(llms.RoleSystem, llms.ToolCall{ID: "x"}),
			},
			wantErr:     true,
			errContains: "invalid content type",
		},
		{
			name: "human message with tool call part",
			messages: []llms.Message{
				llms.MessageFromToolCalls(llms.RoleHuman, llms.ToolCall{ID: "x"}),
			},
			wantErr:     true,
			errContains: "unsupported human message part type",
		},
		{
			name: "tool message with text part",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleTool, "Not a tool response"),
			},
			wantErr:     true,
			errContains: "invalid content type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			messages, system, err := anthropic.ProcessMessages(tt.messages)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
				assert.Len(t, messages, tt.wantMessages)
				assert.Equal(t, tt.wantSystem, system)
			}
		})
	}
}

func TestToTools(t *testing.T) {
	t.Parallel()

	type searchParams struct {
		Topic string `json:"topic" jsonschema:"title=topic,description=The topic to search for."`
	}
	searchSchema, err := schema.New(reflect.TypeOf(searchParams{}))
	require.NoError(t, err)

	assert.Nil(t, anthropic.ToTools(nil))
	assert.Nil(t, anthropic.ToTools([]llms.Tool{}))

	result := anthropic.ToTools([]llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "search_papers",
				Description: "Search for papers on arXiv.",
				Parameters:  searchSchema.Parameters,
			},
		},
	})
	require.Len(t, result, 1)

	tool := result[0]
	require.NotNil(t, tool.OfTool)
	assert.Equal(t, "search_papers", tool.OfTool.Name)
	assert.Equal(t, "object", string(tool.OfTool.InputSchema.Type))
	assert.Equal(t, []string{"topic"}, tool.OfTool.InputSchema.Required)
	assert.Contains(t, tool.OfTool.InputSchema.Properties, "topic")
}

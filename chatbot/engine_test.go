package chatbot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/pkg/llms"
	"github.com/papermind-ai/papermind/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel returns canned responses in order and records every call.
type scriptedModel struct {
	responses []*llms.ContentResponse
	calls     [][]llms.Message
	opts      []llms.CallOptions
}

func (m *scriptedModel) GetName() string {
	return "scripted"
}

func (m *scriptedModel) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var o llms.CallOptions
	for _, opt := range options {
		opt(&o)
	}
	m.opts = append(m.opts, o)
	m.calls = append(m.calls, append([]llms.Message(nil), messages...))

	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// recordingCaller records the tool call it receives and returns a canned
// response.
type recordingCaller struct {
	resp    *mcp.ToolResponse
	err     error
	gotName string
	gotArgs string
}

func (c *recordingCaller) CallTool(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error) {
	c.gotName = name
	c.gotArgs = string(arguments.(json.RawMessage))
	return c.resp, c.err
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text, StopReason: "end_turn"}},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{StopReason: "tool_use", ToolCalls: calls}},
	}
}

func newToolCall(id, name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func TestEngineProcessQuery_PlainText(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("Hello there")}}
	engine := NewEngine(model, registry.New(), ChatConfig{})

	var seen []string
	engine.OnText = func(text string) {
		seen = append(seen, text)
	}

	out, err := engine.ProcessQuery(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, []string{"Hello there"}, seen)

	require.Len(t, model.calls, 1)
	require.Len(t, model.calls[0], 1)
	assert.Equal(t, llms.RoleHuman, model.calls[0][0].Role)

	// No tools registered, so none are offered to the model.
	require.Len(t, model.opts, 1)
	assert.Empty(t, model.opts[0].Tools)
	assert.Equal(t, DefaultMaxTokens, model.opts[0].MaxTokens)
}

func TestEngineProcessQuery_SystemPrompt(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("ok")}}
	engine := NewEngine(model, registry.New(), ChatConfig{SystemPrompt: "You are a research assistant."})

	_, err := engine.ProcessQuery(context.Background(), "hi")
	require.NoError(t, err)

	require.Len(t, model.calls, 1)
	require.Len(t, model.calls[0], 2)
	assert.Equal(t, llms.RoleSystem, model.calls[0][0].Role)
	assert.Equal(t, llms.RoleHuman, model.calls[0][1].Role)
}

func TestEngineProcessQuery_ToolRound(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(newToolCall("call_1", "search_papers", `{"topic":"llm agents"}`)),
		textResponse("Found 2 papers."),
	}}

	caller := &recordingCaller{resp: mcp.NewToolResponse(mcp.NewTextContent("2401.1,2402.2"))}
	reg := registry.New()
	reg.Register("research", caller, []mcp.Tool{{Name: "search_papers", Description: "Search arXiv"}})

	engine := NewEngine(model, reg, ChatConfig{})

	var toolCalls []string
	engine.OnToolCall = func(name, arguments string) {
		toolCalls = append(toolCalls, name+" "+arguments)
	}

	out, err := engine.ProcessQuery(context.Background(), "find papers about llm agents")
	require.NoError(t, err)
	assert.Equal(t, "Found 2 papers.", out)
	assert.Equal(t, []string{`search_papers {"topic":"llm agents"}`}, toolCalls)

	assert.Equal(t, "search_papers", caller.gotName)
	assert.JSONEq(t, `{"topic":"llm agents"}`, caller.gotArgs)

	// The registered tool is offered to the model on every call.
	require.Len(t, model.opts, 2)
	require.Len(t, model.opts[0].Tools, 1)
	assert.Equal(t, "search_papers", model.opts[0].Tools[0].Function.Name)

	// The second call sees the assistant's tool call and the tool result.
	require.Len(t, model.calls, 2)
	msgs := model.calls[1]
	require.Len(t, msgs, 3)
	assert.Equal(t, llms.RoleHuman, msgs[0].Role)
	assert.Equal(t, llms.RoleAI, msgs[1].Role)
	assert.Equal(t, llms.RoleTool, msgs[2].Role)

	toolMsg, ok := msgs[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "2401.1,2402.2", toolMsg.Content)
	assert.False(t, toolMsg.IsError)
}

func TestEngineProcessQuery_SequentialToolOrder(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(
			newToolCall("call_1", "first", `{}`),
			newToolCall("call_2", "second", `{}`),
		),
		textResponse("done"),
	}}

	var order []string
	reg := registry.New()
	reg.Register("s", callerFunc(func(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error) {
		order = append(order, name)
		return mcp.NewToolResponse(mcp.NewTextContent("ok")), nil
	}), []mcp.Tool{{Name: "first"}, {Name: "second"}})

	engine := NewEngine(model, reg, ChatConfig{})

	_, err := engine.ProcessQuery(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	// Results are appended in call order after the assistant message.
	msgs := model.calls[1]
	require.Len(t, msgs, 4)
	first := msgs[2].Parts[0].(llms.ToolCallResponse)
	second := msgs[3].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "call_1", first.ToolCallID)
	assert.Equal(t, "call_2", second.ToolCallID)
}

func TestEngineProcessQuery_UnknownToolInBand(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(newToolCall("call_1", "nope", `{}`)),
		textResponse("I could not use that tool."),
	}}

	engine := NewEngine(model, registry.New(), ChatConfig{})

	out, err := engine.ProcessQuery(context.Background(), "go")
	require.NoError(t, err, "Unknown tools must not abort the conversation")
	assert.Equal(t, "I could not use that tool.", out)

	toolMsg := model.calls[1][2].Parts[0].(llms.ToolCallResponse)
	assert.True(t, toolMsg.IsError)
	assert.Equal(t, "tool not available: nope", toolMsg.Content)
}

func TestEngineProcessQuery_ToolFailureInBand(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(newToolCall("call_1", "search_papers", `{}`)),
		textResponse("sorry"),
	}}

	caller := &recordingCaller{err: errors.New("connection reset")}
	reg := registry.New()
	reg.Register("research", caller, []mcp.Tool{{Name: "search_papers"}})

	engine := NewEngine(model, reg, ChatConfig{})

	_, err := engine.ProcessQuery(context.Background(), "go")
	require.NoError(t, err)

	toolMsg := model.calls[1][2].Parts[0].(llms.ToolCallResponse)
	assert.True(t, toolMsg.IsError)
	assert.Contains(t, toolMsg.Content, "tool call failed")
	assert.Contains(t, toolMsg.Content, "connection reset")
}

func TestEngineProcessQuery_ToolErrorResultInBand(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(newToolCall("call_1", "extract_info", `{"paper_id":"x"}`)),
		textResponse("ok"),
	}}

	caller := &recordingCaller{resp: &mcp.ToolResponse{
		Content: []*mcp.Content{mcp.NewTextContent("backend unavailable")},
		IsError: true,
	}}
	reg := registry.New()
	reg.Register("research", caller, []mcp.Tool{{Name: "extract_info"}})

	engine := NewEngine(model, reg, ChatConfig{})

	_, err := engine.ProcessQuery(context.Background(), "go")
	require.NoError(t, err)

	toolMsg := model.calls[1][2].Parts[0].(llms.ToolCallResponse)
	assert.True(t, toolMsg.IsError)
	assert.Equal(t, "backend unavailable", toolMsg.Content)
}

func TestEngineProcessQuery_MaxRounds(t *testing.T) {
	// The model keeps asking for tools forever.
	loop := toolCallResponse(newToolCall("call_1", "spin", `{}`))
	model := &scriptedModel{responses: []*llms.ContentResponse{loop, loop, loop, loop}}

	reg := registry.New()
	reg.Register("s", callerFunc(func(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error) {
		return mcp.NewToolResponse(mcp.NewTextContent("again")), nil
	}), []mcp.Tool{{Name: "spin"}})

	engine := NewEngine(model, reg, ChatConfig{MaxRounds: 3})

	_, err := engine.ProcessQuery(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 3 rounds")
	assert.Len(t, model.calls, 3)
}

func TestEngineProcessQuery_ModelError(t *testing.T) {
	model := &scriptedModel{}
	engine := NewEngine(model, registry.New(), ChatConfig{})

	_, err := engine.ProcessQuery(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate content")
}

// callerFunc adapts a function to the registry.Caller interface.
type callerFunc func(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error)

func (f callerFunc) CallTool(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error) {
	return f(ctx, name, arguments)
}

package mcp

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/papermind-ai/papermind/mcp/transport/localtransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=Text to echo back"`
}

// newTestPair builds a connected client/server pair over an in-process pipe.
// Registrations happen before Serve so the handshake sees a stable tool list.
func newTestPair(t *testing.T, register func(s *Server)) (*Client, *Server) {
	t.Helper()

	clientEnd, serverEnd := localtransport.NewPipe()

	server := NewServer(serverEnd, WithName("test-server"), WithVersion("1.2.3"))
	if register != nil {
		register(server)
	}
	require.NoError(t, server.Serve())

	client := NewClient(clientEnd, WithClientInfo("test-client", "0.0.1"))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, server
}

func TestClientConnect(t *testing.T) {
	client, _ := newTestPair(t, func(s *Server) {
		err := s.RegisterTool("echo", "Echoes the message", func(args echoArgs) (*ToolResponse, error) {
			return NewToolResponse(NewTextContent(args.Message)), nil
		})
		require.NoError(t, err)
	})

	info := client.ServerInfo()
	assert.Equal(t, "test-server", info.Name)
	assert.Equal(t, "1.2.3", info.Version)

	// Tools are discovered during Connect.
	tools := client.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "Echoes the message", tools[0].Description)
	require.NotNil(t, tools[0].InputSchema)

	// Second Connect is rejected.
	err := client.Connect(context.Background())
	assert.EqualError(t, err, "client already connected")
}

func TestClientCallTool(t *testing.T) {
	client, _ := newTestPair(t, func(s *Server) {
		err := s.RegisterTool("echo", "Echoes the message", func(args echoArgs) (*ToolResponse, error) {
			return NewToolResponse(NewTextContent("echo: " + args.Message)), nil
		})
		require.NoError(t, err)
		err = s.RegisterTool("broken", "Always fails", func(args echoArgs) (*ToolResponse, error) {
			return nil, errors.New("backend unavailable")
		})
		require.NoError(t, err)
	})

	ctx := context.Background()

	resp, err := client.CallTool(ctx, "echo", map[string]string{"message": "hello"})
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, "echo: hello", resp.Text())

	// Handler failures come back in-band, not as protocol errors.
	resp, err = client.CallTool(ctx, "broken", map[string]string{"message": "x"})
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Equal(t, "backend unavailable", resp.Text())

	// Unknown tools are protocol errors.
	_, err = client.CallTool(ctx, "missing", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool: missing")
}

func TestClientListToolsFollowsPagination(t *testing.T) {
	client, _ := newTestPair(t, func(s *Server) {
		names := []string{"b-tool", "a-tool", "c-tool", "e-tool", "d-tool"}
		for _, name := range names {
			err := s.RegisterTool(name, "Tool "+name, func(args echoArgs) (*ToolResponse, error) {
				return NewToolResponse(), nil
			})
			require.NoError(t, err)
		}
		limit := 2
		s.paginationLimit = &limit
	})

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 5, "Expected all pages to be collected")
	assert.Equal(t, "a-tool", tools[0].Name)
	assert.Equal(t, "e-tool", tools[4].Name)
}

func TestClientResources(t *testing.T) {
	client, _ := newTestPair(t, func(s *Server) {
		err := s.RegisterResource("papers://folders", "folders", "Available topics", "text/markdown", func() (*ResourceResponse, error) {
			return NewResourceResponse(NewTextEmbeddedResource("papers://folders", "# Available Topics", "text/markdown")), nil
		})
		require.NoError(t, err)
		err = s.RegisterResourceTemplate("papers://{topic}", "topic-papers", "Papers on a topic", "text/markdown")
		require.NoError(t, err)
		s.SetResourceFallbackHandler(func(ctx context.Context, uri string) (*ResourceResponse, error) {
			return NewResourceResponse(NewTextEmbeddedResource(uri, "papers for "+uri, "text/markdown")), nil
		})
	})

	ctx := context.Background()

	resources, err := client.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "papers://folders", resources[0].Uri)

	resp, err := client.ReadResource(ctx, "papers://folders")
	require.NoError(t, err)
	require.Len(t, resp.Contents, 1)
	assert.Equal(t, "# Available Topics", resp.Contents[0].Text)

	// Template instances are served through the fallback.
	resp, err = client.ReadResource(ctx, "papers://machine_learning")
	require.NoError(t, err)
	require.Len(t, resp.Contents, 1)
	assert.Equal(t, "papers for papers://machine_learning", resp.Contents[0].Text)
}

func TestClientPrompts(t *testing.T) {
	type promptArgs struct {
		Topic string `json:"topic" jsonschema:"required,description=The research topic"`
	}

	client, _ := newTestPair(t, func(s *Server) {
		err := s.RegisterPrompt("generate_search_prompt", "Builds a research prompt", func(args promptArgs) (*PromptResponse, error) {
			return NewPromptResponse("search", NewPromptMessage(NewTextContent("Search for papers about "+args.Topic), RoleUser)), nil
		})
		require.NoError(t, err)
	})

	ctx := context.Background()

	prompts, err := client.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "generate_search_prompt", prompts[0].Name)
	require.Len(t, prompts[0].Arguments, 1)
	assert.Equal(t, "topic", prompts[0].Arguments[0].Name)
	assert.True(t, prompts[0].Arguments[0].Required)

	resp, err := client.GetPrompt(ctx, "generate_search_prompt", map[string]string{"topic": "llm agents"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "Search for papers about llm agents", resp.Messages[0].Content.TextContent.Text)
}

func TestClientPing(t *testing.T) {
	client, _ := newTestPair(t, nil)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClientCloseIdempotent(t *testing.T) {
	client, _ := newTestPair(t, nil)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestClientConnectFailureClosesTransport(t *testing.T) {
	// A pipe with no server on the other end: the initialize request cannot
	// be delivered, so Connect must fail and leave the transport closed.
	clientEnd, _ := localtransport.NewPipe()
	client := NewClient(clientEnd)

	err := client.Connect(context.Background())
	require.Error(t, err)

	// The transport is already closed; closing again is a no-op.
	assert.NoError(t, client.Close())
}

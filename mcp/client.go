package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/papermind-ai/papermind/mcp/internal/protocol"
	"github.com/papermind-ai/papermind/mcp/transport"
)

// Client is a connection to a single MCP server over a transport. A client is
// usable after Connect succeeds; Connect performs the initialize handshake
// and the initial tool discovery as one step, so a connected client always
// has a consistent view of the server's tools.
type Client struct {
	transport transport.Transport
	protocol  *protocol.Protocol

	name    string
	version string

	mu           sync.RWMutex
	initialized  bool
	serverInfo   Implementation
	capabilities ServerCapabilities
	tools        []Tool

	closeOnce sync.Once
	closeErr  error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientInfo sets the client name and version reported in the initialize
// handshake.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.name = name
		c.version = version
	}
}

// NewClient creates a client on the given transport. The connection is not
// established until Connect is called.
func NewClient(tr transport.Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: tr,
		protocol:  protocol.NewProtocol(),
		name:      "papermind",
		version:   "0.1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts the transport, performs the initialize handshake, sends the
// initialized notification, and discovers the server's tools. If any step
// fails the transport is closed and the client is left unusable, so a
// half-initialized session is never observable.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return errors.New("client already connected")
	}
	c.mu.Unlock()

	if err := c.protocol.Connect(c.transport); err != nil {
		return errors.WithMessage(err, "failed to start transport")
	}

	if err := c.initialize(ctx); err != nil {
		_ = c.Close()
		return err
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		_ = c.Close()
		return errors.WithMessage(err, "failed to list tools")
	}

	c.mu.Lock()
	c.initialized = true
	c.tools = tools
	c.mu.Unlock()

	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	raw, err := c.protocol.Request(ctx, "initialize", InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: Implementation{
			Name:    c.name,
			Version: c.version,
		},
	}, nil)
	if err != nil {
		return errors.WithMessage(err, "initialize request failed")
	}

	var resp InitializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errors.Wrap(err, "failed to unmarshal initialize response")
	}

	if resp.ProtocolVersion != ProtocolVersion {
		// Servers may answer with a different revision; the methods used
		// here are stable across known revisions.
		logger.ContextKV(ctx, xlog.WARNING,
			"server", resp.ServerInfo.Name,
			"protocolVersion", resp.ProtocolVersion,
			"expected", ProtocolVersion,
		)
	}

	c.mu.Lock()
	c.serverInfo = resp.ServerInfo
	c.capabilities = resp.Capabilities
	c.mu.Unlock()

	if err := c.protocol.Notification("notifications/initialized", nil); err != nil {
		return errors.WithMessage(err, "failed to send initialized notification")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", resp.ServerInfo.Name,
		"serverVersion", resp.ServerInfo.Version,
	)
	return nil
}

// ServerInfo returns the server identity from the initialize handshake.
func (c *Client) ServerInfo() Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Tools returns the tools discovered during Connect.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// ListTools queries the server for its tools, following pagination cursors
// until the full list is collected.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var all []Tool
	var cursor *string
	for {
		raw, err := c.protocol.Request(ctx, "tools/list", listRequestParams{Cursor: cursor}, nil)
		if err != nil {
			return nil, errors.WithMessage(err, "tools/list request failed")
		}
		var resp ToolsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal tools/list response")
		}
		all = append(all, resp.Tools...)
		if resp.NextCursor == nil {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// CallTool invokes the named tool with the given arguments. Tool execution
// failures are reported in the response's IsError flag; the returned error
// covers protocol failures only.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (*ToolResponse, error) {
	args, err := json.Marshal(arguments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal arguments")
	}

	raw, err := c.protocol.Request(ctx, "tools/call", baseCallToolRequestParams{
		Name:      name,
		Arguments: args,
	}, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "tools/call request failed for %q", name)
	}

	var resp ToolResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tools/call response")
	}
	return &resp, nil
}

// ListResources queries the server for its resources, following pagination
// cursors until the full list is collected.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var all []Resource
	var cursor *string
	for {
		raw, err := c.protocol.Request(ctx, "resources/list", listRequestParams{Cursor: cursor}, nil)
		if err != nil {
			return nil, errors.WithMessage(err, "resources/list request failed")
		}
		var resp ListResourcesResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal resources/list response")
		}
		all = append(all, resp.Resources...)
		if resp.NextCursor == nil {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// ReadResource reads the resource at the given URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ResourceResponse, error) {
	raw, err := c.protocol.Request(ctx, "resources/read", readResourceRequestParams{Uri: uri}, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "resources/read request failed for %q", uri)
	}

	var resp ResourceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal resources/read response")
	}
	return &resp, nil
}

// ListPrompts queries the server for its prompts, following pagination
// cursors until the full list is collected.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var all []Prompt
	var cursor *string
	for {
		raw, err := c.protocol.Request(ctx, "prompts/list", listRequestParams{Cursor: cursor}, nil)
		if err != nil {
			return nil, errors.WithMessage(err, "prompts/list request failed")
		}
		var resp ListPromptsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal prompts/list response")
		}
		all = append(all, resp.Prompts...)
		if resp.NextCursor == nil {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// GetPrompt renders the named prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments any) (*PromptResponse, error) {
	args, err := json.Marshal(arguments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal arguments")
	}

	raw, err := c.protocol.Request(ctx, "prompts/get", baseGetPromptRequestParams{
		Name:      name,
		Arguments: args,
	}, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "prompts/get request failed for %q", name)
	}

	var resp PromptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal prompts/get response")
	}
	return &resp, nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.protocol.Request(ctx, "ping", map[string]any{}, nil)
	return err
}

// Close terminates the connection and releases the transport. It is safe to
// call multiple times and from multiple goroutines; only the first call does
// the work.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.protocol.Close()
	})
	return c.closeErr
}

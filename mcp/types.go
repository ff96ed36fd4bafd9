// Package mcp implements the Model Context Protocol: a client for talking to
// tool servers over a transport, and a server for exposing tools, prompts and
// resources.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

// ProtocolVersion is the MCP protocol revision spoken by both the client and
// the server in this package.
const ProtocolVersion = "2024-11-05"

// ContentType discriminates the members of the Content union.
type ContentType string

const (
	ContentTypeText             ContentType = "text"
	ContentTypeEmbeddedResource ContentType = "resource"
)

// TextContent is plain text content of a message or tool result.
type TextContent struct {
	Text string `json:"text"`
}

// EmbeddedResource is the contents of a resource, embedded into a tool result
// or read directly. Text is set for text resources, Blob (base64) for binary.
type EmbeddedResource struct {
	Uri      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Content is a union over the content block types that can appear in tool
// results and prompt messages. Exactly one member is set, indicated by Type.
type Content struct {
	Type             ContentType
	TextContent      *TextContent
	EmbeddedResource *EmbeddedResource
}

// NewTextContent creates a text content block.
func NewTextContent(text string) *Content {
	return &Content{
		Type:        ContentTypeText,
		TextContent: &TextContent{Text: text},
	}
}

// NewEmbeddedResourceContent wraps a resource into a content block.
func NewEmbeddedResourceContent(resource *EmbeddedResource) *Content {
	return &Content{
		Type:             ContentTypeEmbeddedResource,
		EmbeddedResource: resource,
	}
}

// MarshalJSON flattens the active union member into the wire form.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentTypeText:
		if c.TextContent == nil {
			return nil, errors.New("text content is nil")
		}
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{Type: c.Type, Text: c.TextContent.Text})
	case ContentTypeEmbeddedResource:
		if c.EmbeddedResource == nil {
			return nil, errors.New("embedded resource is nil")
		}
		return json.Marshal(struct {
			Type     ContentType       `json:"type"`
			Resource *EmbeddedResource `json:"resource"`
		}{Type: c.Type, Resource: c.EmbeddedResource})
	}
	return nil, errors.Errorf("unknown content type: %s", c.Type)
}

// UnmarshalJSON reconstructs the union from the wire form.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     ContentType       `json:"type"`
		Text     string            `json:"text"`
		Resource *EmbeddedResource `json:"resource"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	c.Type = raw.Type
	switch raw.Type {
	case ContentTypeText:
		c.TextContent = &TextContent{Text: raw.Text}
	case ContentTypeEmbeddedResource:
		c.EmbeddedResource = raw.Resource
	default:
		return errors.Errorf("unknown content type: %s", raw.Type)
	}
	return nil
}

// ToolResponse is the result of a tool call: a list of content blocks and an
// in-band error flag. Tool execution failures are reported through IsError,
// not as protocol errors, so the model can see and react to them.
type ToolResponse struct {
	Content []*Content `json:"content"`
	IsError bool       `json:"isError,omitempty"`
}

// NewToolResponse creates a successful tool response with the given content.
func NewToolResponse(content ...*Content) *ToolResponse {
	return &ToolResponse{
		Content: content,
	}
}

// Text flattens the response into a single string: text blocks are joined
// with newlines, embedded text resources contribute their text. This is the
// one place tool results are normalized before they are fed back to a model.
func (r *ToolResponse) Text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c == nil {
			continue
		}
		var part string
		switch c.Type {
		case ContentTypeText:
			if c.TextContent != nil {
				part = c.TextContent.Text
			}
		case ContentTypeEmbeddedResource:
			if c.EmbeddedResource != nil {
				part = c.EmbeddedResource.Text
			}
		}
		if part == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// NewToolErrorResponse creates a failed tool response carrying the error text
// as content.
func NewToolErrorResponse(text string) *ToolResponse {
	return &ToolResponse{
		Content: []*Content{NewTextContent(text)},
		IsError: true,
	}
}

// Tool describes a callable tool as advertised by tools/list.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// ToolsResponse is the result of tools/list.
type ToolsResponse struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// Role identifies the sender of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage is a single message in a prompt response.
type PromptMessage struct {
	Role    Role     `json:"role"`
	Content *Content `json:"content"`
}

// NewPromptMessage creates a prompt message.
func NewPromptMessage(content *Content, role Role) *PromptMessage {
	return &PromptMessage{
		Role:    role,
		Content: content,
	}
}

// PromptResponse is the result of prompts/get.
type PromptResponse struct {
	Description string           `json:"description,omitempty"`
	Messages    []*PromptMessage `json:"messages"`
}

// NewPromptResponse creates a prompt response.
func NewPromptResponse(description string, messages ...*PromptMessage) *PromptResponse {
	return &PromptResponse{
		Description: description,
		Messages:    messages,
	}
}

// PromptArgument describes an argument that a prompt template accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes a prompt template as advertised by prompts/list.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsResponse is the result of prompts/list.
type ListPromptsResponse struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

// Resource describes a readable resource as advertised by resources/list.
type Resource struct {
	Uri         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResponse is the result of resources/list.
type ListResourcesResponse struct {
	Resources  []Resource `json:"resources"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

// ResourceResponse is the result of resources/read.
type ResourceResponse struct {
	Contents []*EmbeddedResource `json:"contents"`
}

// NewResourceResponse creates a resource response.
func NewResourceResponse(contents ...*EmbeddedResource) *ResourceResponse {
	return &ResourceResponse{
		Contents: contents,
	}
}

// NewTextEmbeddedResource creates a text resource.
func NewTextEmbeddedResource(uri, text, mimeType string) *EmbeddedResource {
	return &EmbeddedResource{
		Uri:      uri,
		MimeType: mimeType,
		Text:     text,
	}
}

// ResourceTemplate describes a parameterized resource as advertised by
// resources/templates/list.
type ResourceTemplate struct {
	UriTemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplatesResponse is the result of resources/templates/list.
type ListResourceTemplatesResponse struct {
	Templates  []ResourceTemplate `json:"resourceTemplates"`
	NextCursor *string            `json:"nextCursor,omitempty"`
}

// Implementation identifies an MCP client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises the feature set of a server during the
// initialize handshake.
type ServerCapabilities struct {
	Tools     *ListChangedCapability `json:"tools,omitempty"`
	Prompts   *ListChangedCapability `json:"prompts,omitempty"`
	Resources *ListChangedCapability `json:"resources,omitempty"`
}

// ListChangedCapability indicates whether the server emits list_changed
// notifications for a capability group.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeRequest is the params of the initialize request.
type InitializeRequest struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResponse is the result of the initialize request.
type InitializeResponse struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// baseCallToolRequestParams is the wire form of the tools/call params.
type baseCallToolRequestParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// baseGetPromptRequestParams is the wire form of the prompts/get params.
type baseGetPromptRequestParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// readResourceRequestParams is the wire form of the resources/read params.
type readResourceRequestParams struct {
	Uri string `json:"uri"`
}

// listRequestParams is the wire form of the paginated list requests.
type listRequestParams struct {
	Cursor *string `json:"cursor,omitempty"`
}

// Package registry maintains the aggregated tool catalog across MCP
// sessions: which tools exist, what their schemas are, and which session
// serves each tool.
package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/pkg/llms"
)

var logger = xlog.NewPackageLogger("github.com/papermind-ai/papermind", "registry")

// ErrUnknownTool is returned by Resolve for tool names with no binding.
var ErrUnknownTool = errors.New("unknown tool")

// Caller executes tool calls. *mcp.Client implements it.
type Caller interface {
	CallTool(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error)
}

type binding struct {
	tool    mcp.Tool
	session string
	caller  Caller
}

// Registry is the tool name to session mapping. Tool names are a flat
// namespace: when two sessions advertise the same name, the later
// registration wins and the earlier binding is dropped.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*binding
	order    []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		bindings: make(map[string]*binding),
	}
}

// Register binds the given tools to a session. Collisions with previously
// registered names are resolved last-write-wins and logged.
func (r *Registry) Register(session string, caller Caller, tools []mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range tools {
		if prev, ok := r.bindings[tool.Name]; ok {
			logger.KV(xlog.WARNING,
				"tool", tool.Name,
				"replaced", prev.session,
				"with", session,
			)
		} else {
			r.order = append(r.order, tool.Name)
		}
		r.bindings[tool.Name] = &binding{
			tool:    tool,
			session: session,
			caller:  caller,
		}
	}
}

// Deregister removes all bindings owned by the given session. Bindings the
// session lost to a later registration are left alone.
func (r *Registry) Deregister(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	for _, name := range r.order {
		if b := r.bindings[name]; b != nil && b.session == session {
			delete(r.bindings, name)
			continue
		}
		kept = append(kept, name)
	}
	r.order = kept
}

// Resolve returns the session caller bound to the tool name.
func (r *Registry) Resolve(name string) (Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[name]
	if !ok {
		return nil, errors.WithMessage(ErrUnknownTool, name)
	}
	return b.caller, nil
}

// Session returns the name of the session that serves the tool.
func (r *Registry) Session(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[name]
	if !ok {
		return "", errors.WithMessage(ErrUnknownTool, name)
	}
	return b.session, nil
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.bindings[name].tool)
	}
	return tools
}

// Descriptors returns the registered tools as model-facing tool definitions,
// in registration order.
func (r *Registry) Descriptors() []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		b := r.bindings[name]
		descriptors = append(descriptors, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        b.tool.Name,
				Description: b.tool.Description,
				Parameters:  b.tool.InputSchema,
			},
		})
	}
	return descriptors
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

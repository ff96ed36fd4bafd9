package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	"github.com/papermind-ai/papermind/mcp/internal/protocol"
	"github.com/papermind-ai/papermind/mcp/transport"
	"github.com/papermind-ai/papermind/pkg/schema"
)

var logger = xlog.NewPackageLogger("github.com/papermind-ai/papermind", "mcp")

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	toolRespType     = reflect.TypeOf((*ToolResponse)(nil))
	promptRespType   = reflect.TypeOf((*PromptResponse)(nil))
	resourceRespType = reflect.TypeOf((*ResourceResponse)(nil))
)

type toolEntry struct {
	name        string
	description string
	inputSchema *jsonschema.Schema
	handler     func(ctx context.Context, arguments json.RawMessage) (*toolResponseSent, error)
}

type promptEntry struct {
	prompt  Prompt
	handler func(ctx context.Context, arguments json.RawMessage) (*PromptResponse, error)
}

type resourceEntry struct {
	resource Resource
	handler  func(ctx context.Context) (*ResourceResponse, error)
}

// ResourceFallbackHandler serves resources/read for URIs that have no
// concrete registration, typically instances of a resource template.
type ResourceFallbackHandler func(ctx context.Context, uri string) (*ResourceResponse, error)

// Server exposes tools, prompts and resources over an MCP transport.
type Server struct {
	transport transport.Transport
	protocol  *protocol.Protocol

	name    string
	version string

	mu               sync.RWMutex
	tools            map[string]*toolEntry
	prompts          map[string]*promptEntry
	resources        map[string]*resourceEntry
	templates        map[string]ResourceTemplate
	resourceFallback ResourceFallbackHandler
	paginationLimit  *int
	served           bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithName sets the server name reported in the initialize handshake.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version reported in the initialize handshake.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithPaginationLimit enables pagination of list results at the given page size.
func WithPaginationLimit(limit int) ServerOption {
	return func(s *Server) {
		s.paginationLimit = &limit
	}
}

// NewServer creates a server on the given transport. Registrations may be
// done before or after Serve; registrations after Serve emit list_changed
// notifications.
func NewServer(tr transport.Transport, opts ...ServerOption) *Server {
	s := &Server{
		transport: tr,
		protocol:  protocol.NewProtocol(),
		name:      "papermind",
		version:   "0.1.0",
		tools:     make(map[string]*toolEntry),
		prompts:   make(map[string]*promptEntry),
		resources: make(map[string]*resourceEntry),
		templates: make(map[string]ResourceTemplate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve installs the protocol handlers and starts the transport.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server already serving")
	}
	s.served = true
	s.mu.Unlock()

	pr := s.protocol
	pr.SetRequestHandler("initialize", s.handleInitialize)
	pr.SetRequestHandler("ping", s.handlePing)
	pr.SetRequestHandler("tools/list", s.handleListTools)
	pr.SetRequestHandler("tools/call", s.handleToolCalls)
	pr.SetRequestHandler("prompts/list", s.handleListPrompts)
	pr.SetRequestHandler("prompts/get", s.handleGetPrompt)
	pr.SetRequestHandler("resources/list", s.handleListResources)
	pr.SetRequestHandler("resources/read", s.handleReadResource)
	pr.SetRequestHandler("resources/templates/list", s.handleListResourceTemplates)

	return pr.Connect(s.transport)
}

// RegisterTool registers a tool handler of the form
// func([ctx context.Context,] args T) (*ToolResponse, error). The input
// schema is derived from T.
func (s *Server) RegisterTool(name string, description string, handler any) error {
	wrapped, inputSchema, err := wrapToolHandler(handler)
	if err != nil {
		return errors.WithMessagef(err, "invalid handler for tool %q", name)
	}

	s.mu.Lock()
	s.tools[name] = &toolEntry{
		name:        name,
		description: description,
		inputSchema: inputSchema,
		handler:     wrapped,
	}
	s.mu.Unlock()

	return s.notifyListChanged("notifications/tools/list_changed")
}

// DeregisterTool removes a registered tool.
func (s *Server) DeregisterTool(name string) error {
	s.mu.Lock()
	if _, ok := s.tools[name]; !ok {
		s.mu.Unlock()
		return errors.Errorf("unknown tool: %s", name)
	}
	delete(s.tools, name)
	s.mu.Unlock()

	return s.notifyListChanged("notifications/tools/list_changed")
}

// RegisterPrompt registers a prompt handler of the form
// func([ctx context.Context,] args T) (*PromptResponse, error). The prompt
// arguments are derived from T.
func (s *Server) RegisterPrompt(name string, description string, handler any) error {
	wrapped, args, err := wrapPromptHandler(handler)
	if err != nil {
		return errors.WithMessagef(err, "invalid handler for prompt %q", name)
	}

	s.mu.Lock()
	s.prompts[name] = &promptEntry{
		prompt: Prompt{
			Name:        name,
			Description: description,
			Arguments:   args,
		},
		handler: wrapped,
	}
	s.mu.Unlock()

	return s.notifyListChanged("notifications/prompts/list_changed")
}

// DeregisterPrompt removes a registered prompt.
func (s *Server) DeregisterPrompt(name string) error {
	s.mu.Lock()
	if _, ok := s.prompts[name]; !ok {
		s.mu.Unlock()
		return errors.Errorf("unknown prompt: %s", name)
	}
	delete(s.prompts, name)
	s.mu.Unlock()

	return s.notifyListChanged("notifications/prompts/list_changed")
}

// RegisterResource registers a readable resource with a handler of the form
// func([ctx context.Context]) (*ResourceResponse, error).
func (s *Server) RegisterResource(uri string, name string, description string, mimeType string, handler any) error {
	wrapped, err := wrapResourceHandler(handler)
	if err != nil {
		return errors.WithMessagef(err, "invalid handler for resource %q", uri)
	}

	s.mu.Lock()
	s.resources[uri] = &resourceEntry{
		resource: Resource{
			Uri:         uri,
			Name:        name,
			Description: description,
			MimeType:    mimeType,
		},
		handler: wrapped,
	}
	s.mu.Unlock()

	return s.notifyListChanged("notifications/resources/list_changed")
}

// DeregisterResource removes a registered resource.
func (s *Server) DeregisterResource(uri string) error {
	s.mu.Lock()
	if _, ok := s.resources[uri]; !ok {
		s.mu.Unlock()
		return errors.Errorf("unknown resource: %s", uri)
	}
	delete(s.resources, uri)
	s.mu.Unlock()

	return s.notifyListChanged("notifications/resources/list_changed")
}

// RegisterResourceTemplate advertises a parameterized resource. Reads of
// template instances are served by the resource fallback handler.
func (s *Server) RegisterResourceTemplate(uriTemplate string, name string, description string, mimeType string) error {
	s.mu.Lock()
	s.templates[uriTemplate] = ResourceTemplate{
		UriTemplate: uriTemplate,
		Name:        name,
		Description: description,
		MimeType:    mimeType,
	}
	s.mu.Unlock()

	return s.notifyListChanged("notifications/resources/list_changed")
}

// SetResourceFallbackHandler installs the handler used for resources/read
// requests whose URI has no concrete registration.
func (s *Server) SetResourceFallbackHandler(handler ResourceFallbackHandler) {
	s.mu.Lock()
	s.resourceFallback = handler
	s.mu.Unlock()
}

func (s *Server) notifyListChanged(method string) error {
	s.mu.RLock()
	served := s.served
	s.mu.RUnlock()
	if !served {
		return nil
	}
	return s.protocol.Notification(method, nil)
}

func (s *Server) handleInitialize(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params InitializeRequest
	if len(request.Params) > 0 {
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal initialize params")
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"client", params.ClientInfo.Name,
		"clientVersion", params.ClientInfo.Version,
		"protocolVersion", params.ProtocolVersion,
	)

	return InitializeResponse{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ListChangedCapability{ListChanged: true},
			Prompts:   &ListChangedCapability{ListChanged: true},
			Resources: &ListChangedCapability{ListChanged: true},
		},
		ServerInfo: Implementation{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

func (s *Server) handlePing(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	return map[string]any{}, nil
}

func (s *Server) handleListTools(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	cursor, err := parseCursorParams(request.Params)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	page, nextCursor, err := paginate(names, cursor, s.paginationLimit)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}

	tools := make([]Tool, 0, len(page))
	for _, name := range page {
		entry := s.tools[name]
		tools = append(tools, Tool{
			Name:        entry.name,
			Description: entry.description,
			InputSchema: entry.inputSchema,
		})
	}
	s.mu.RUnlock()

	return ToolsResponse{
		Tools:      tools,
		NextCursor: nextCursor,
	}, nil
}

func (s *Server) handleToolCalls(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params baseCallToolRequestParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool call params")
	}

	s.mu.RLock()
	entry := s.tools[params.Name]
	s.mu.RUnlock()

	if entry == nil {
		return nil, errors.Errorf("unknown tool: %s", params.Name)
	}

	return entry.handler(ctx, params.Arguments)
}

func (s *Server) handleListPrompts(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	cursor, err := parseCursorParams(request.Params)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		names = append(names, name)
	}
	sort.Strings(names)

	page, nextCursor, err := paginate(names, cursor, s.paginationLimit)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}

	prompts := make([]Prompt, 0, len(page))
	for _, name := range page {
		prompts = append(prompts, s.prompts[name].prompt)
	}
	s.mu.RUnlock()

	return ListPromptsResponse{
		Prompts:    prompts,
		NextCursor: nextCursor,
	}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params baseGetPromptRequestParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal prompt params")
	}

	s.mu.RLock()
	entry := s.prompts[params.Name]
	s.mu.RUnlock()

	if entry == nil {
		return nil, errors.Errorf("unknown prompt: %s", params.Name)
	}

	return entry.handler(ctx, params.Arguments)
}

func (s *Server) handleListResources(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	cursor, err := parseCursorParams(request.Params)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	uris := make([]string, 0, len(s.resources))
	for uri := range s.resources {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	page, nextCursor, err := paginate(uris, cursor, s.paginationLimit)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}

	resources := make([]Resource, 0, len(page))
	for _, uri := range page {
		resources = append(resources, s.resources[uri].resource)
	}
	s.mu.RUnlock()

	return ListResourcesResponse{
		Resources:  resources,
		NextCursor: nextCursor,
	}, nil
}

func (s *Server) handleReadResource(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params readResourceRequestParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal resource params")
	}

	s.mu.RLock()
	entry := s.resources[params.Uri]
	fallback := s.resourceFallback
	s.mu.RUnlock()

	if entry != nil {
		return entry.handler(ctx)
	}
	if fallback != nil {
		return fallback(ctx, params.Uri)
	}
	return nil, errors.Errorf("unknown resource: %s", params.Uri)
}

func (s *Server) handleListResourceTemplates(ctx context.Context, request *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	cursor, err := parseCursorParams(request.Params)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	uris := make([]string, 0, len(s.templates))
	for uri := range s.templates {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	page, nextCursor, err := paginate(uris, cursor, s.paginationLimit)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}

	templates := make([]ResourceTemplate, 0, len(page))
	for _, uri := range page {
		templates = append(templates, s.templates[uri])
	}
	s.mu.RUnlock()

	return ListResourceTemplatesResponse{
		Templates:  templates,
		NextCursor: nextCursor,
	}, nil
}

// toolResponseSent defers the choice between a successful result and an
// in-band error until marshaling, so handler failures reach the caller as
// isError results rather than protocol errors.
type toolResponseSent struct {
	Response *ToolResponse
	Error    error
}

func (s *toolResponseSent) MarshalJSON() ([]byte, error) {
	if s.Error != nil {
		return json.Marshal(NewToolErrorResponse(s.Error.Error()))
	}
	return json.Marshal(s.Response)
}

// parseCursorParams extracts the optional pagination cursor; requests may
// omit params entirely.
func parseCursorParams(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var params listRequestParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal list params")
	}
	return params.Cursor, nil
}

// paginate returns the page of sorted names following the cursor, and the
// cursor for the next page. A nil limit disables pagination.
func paginate(sorted []string, cursor *string, limit *int) ([]string, *string, error) {
	start := 0
	if cursor != nil {
		decoded, err := base64.StdEncoding.DecodeString(*cursor)
		if err != nil {
			return nil, nil, errors.Wrap(err, "invalid cursor")
		}
		last := string(decoded)
		start = sort.SearchStrings(sorted, last)
		if start >= len(sorted) || sorted[start] != last {
			return nil, nil, errors.Errorf("invalid cursor: %s", last)
		}
		start++
	}

	if limit == nil {
		return sorted[start:], nil, nil
	}

	end := start + *limit
	if end >= len(sorted) {
		return sorted[start:], nil, nil
	}
	next := base64.StdEncoding.EncodeToString([]byte(sorted[end-1]))
	return sorted[start:end], &next, nil
}

func wrapToolHandler(handler any) (func(ctx context.Context, arguments json.RawMessage) (*toolResponseSent, error), *jsonschema.Schema, error) {
	fn := reflect.ValueOf(handler)
	argType, hasCtx, err := validateHandler(fn, toolRespType)
	if err != nil {
		return nil, nil, err
	}

	byPtr := argType.Kind() == reflect.Pointer
	elemType := argType
	if byPtr {
		elemType = argType.Elem()
	}

	sch, err := schema.New(elemType)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to derive input schema")
	}

	wrapped := func(ctx context.Context, arguments json.RawMessage) (resp *toolResponseSent, err error) {
		args := reflect.New(elemType)
		if len(arguments) > 0 {
			if uerr := json.Unmarshal(arguments, args.Interface()); uerr != nil {
				return nil, errors.WithMessage(uerr, "failed to unmarshal arguments")
			}
		}

		// Handler panics become in-band errors, a broken tool must not
		// take the server down.
		defer func() {
			if rec := recover(); rec != nil {
				resp = &toolResponseSent{Error: errors.Errorf("internal error: %v", rec)}
				err = nil
			}
		}()

		argVal := args.Elem()
		if byPtr {
			argVal = args
		}
		out := callHandler(fn, ctx, argVal, hasCtx)
		var toolResp *ToolResponse
		if !out[0].IsNil() {
			toolResp = out[0].Interface().(*ToolResponse)
		}
		var toolErr error
		if !out[1].IsNil() {
			toolErr = out[1].Interface().(error)
		}
		return &toolResponseSent{Response: toolResp, Error: toolErr}, nil
	}

	return wrapped, sch.Parameters, nil
}

func wrapPromptHandler(handler any) (func(ctx context.Context, arguments json.RawMessage) (*PromptResponse, error), []PromptArgument, error) {
	fn := reflect.ValueOf(handler)
	argType, hasCtx, err := validateHandler(fn, promptRespType)
	if err != nil {
		return nil, nil, err
	}

	byPtr := argType.Kind() == reflect.Pointer
	elemType := argType
	if byPtr {
		elemType = argType.Elem()
	}

	sch, err := schema.New(elemType)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to derive arguments schema")
	}

	var args []PromptArgument
	if sch.Parameters != nil && sch.Parameters.Properties != nil {
		required := make(map[string]bool, len(sch.Parameters.Required))
		for _, name := range sch.Parameters.Required {
			required[name] = true
		}
		for pair := sch.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
			args = append(args, PromptArgument{
				Name:        pair.Key,
				Description: pair.Value.Description,
				Required:    required[pair.Key],
			})
		}
	}

	wrapped := func(ctx context.Context, arguments json.RawMessage) (*PromptResponse, error) {
		args := reflect.New(elemType)
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, args.Interface()); err != nil {
				return nil, errors.WithMessage(err, "failed to unmarshal arguments")
			}
		}
		argVal := args.Elem()
		if byPtr {
			argVal = args
		}
		out := callHandler(fn, ctx, argVal, hasCtx)
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface().(*PromptResponse), nil
	}

	return wrapped, args, nil
}

func wrapResourceHandler(handler any) (func(ctx context.Context) (*ResourceResponse, error), error) {
	fn := reflect.ValueOf(handler)
	t := fn.Type()
	if t.Kind() != reflect.Func {
		return nil, errors.New("handler must be a function")
	}
	hasCtx := t.NumIn() == 1
	if t.NumIn() > 1 || (hasCtx && t.In(0) != contextType) {
		return nil, errors.New("handler must take no arguments or a single context.Context")
	}
	if t.NumOut() != 2 || t.Out(0) != resourceRespType || t.Out(1) != errorType {
		return nil, errors.New("handler must return (*ResourceResponse, error)")
	}

	wrapped := func(ctx context.Context) (*ResourceResponse, error) {
		var in []reflect.Value
		if hasCtx {
			in = []reflect.Value{reflect.ValueOf(ctx)}
		}
		out := fn.Call(in)
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface().(*ResourceResponse), nil
	}
	return wrapped, nil
}

// validateHandler checks a handler of the form
// func([ctx context.Context,] args T) (*R, error) and returns T, which may be
// a struct or a pointer to struct.
func validateHandler(fn reflect.Value, respType reflect.Type) (reflect.Type, bool, error) {
	t := fn.Type()
	if t.Kind() != reflect.Func {
		return nil, false, errors.New("handler must be a function")
	}
	var hasCtx bool
	switch t.NumIn() {
	case 1:
	case 2:
		if t.In(0) != contextType {
			return nil, false, errors.New("first argument must be context.Context")
		}
		hasCtx = true
	default:
		return nil, false, errors.New("handler must take an arguments struct, optionally preceded by context.Context")
	}
	argType := t.In(t.NumIn() - 1)
	structType := argType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil, false, errors.New("arguments must be a struct or pointer to struct")
	}
	if t.NumOut() != 2 || t.Out(0) != respType || t.Out(1) != errorType {
		return nil, false, errors.Errorf("handler must return (%s, error)", respType)
	}
	return argType, hasCtx, nil
}

func callHandler(fn reflect.Value, ctx context.Context, args reflect.Value, hasCtx bool) []reflect.Value {
	in := make([]reflect.Value, 0, 2)
	if hasCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, args)
	return fn.Call(in)
}

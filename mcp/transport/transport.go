// Package transport defines the JSON-RPC 2.0 message types and the Transport
// interface that MCP protocol implementations run on top of.
package transport

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RequestId is a unique identifier for a JSON-RPC request.
type RequestId int64

// JsonRpcBody is the payload of a JSON-RPC response.
type JsonRpcBody any

// BaseJSONRPCError is the error response type.
type BaseJSONRPCError struct {
	Error   BaseJSONRPCErrorInner `json:"error" yaml:"error" mapstructure:"error"`
	Id      RequestId             `json:"id" yaml:"id" mapstructure:"id"`
	Jsonrpc string                `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`
}

// BaseJSONRPCErrorInner carries the JSON-RPC error code and message.
type BaseJSONRPCErrorInner struct {
	// Code is the error type that occurred.
	Code int `json:"code" yaml:"code" mapstructure:"code"`

	// Data contains additional information about the error.
	Data any `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data,omitempty"`

	// Message is a short description of the error.
	Message string `json:"message" yaml:"message" mapstructure:"message"`
}

// UnmarshalJSON deserializes an error response, failing when the error member
// is absent.
func (m *BaseJSONRPCError) UnmarshalJSON(data []byte) error {
	type alias struct {
		Jsonrpc string                 `json:"jsonrpc"`
		Id      *RequestId             `json:"id"`
		Error   *BaseJSONRPCErrorInner `json:"error"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.WithStack(err)
	}
	if a.Error == nil {
		return errors.New("error response must have an error")
	}
	m.Jsonrpc = a.Jsonrpc
	if a.Id != nil {
		m.Id = *a.Id
	}
	m.Error = *a.Error
	return nil
}

// BaseJSONRPCNotification is a notification which does not expect a response.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`
	Method  string          `json:"method" yaml:"method" mapstructure:"method"`
	Params  json.RawMessage `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params,omitempty"`
}

// UnmarshalJSON deserializes a notification, failing when the message carries
// an id (which would make it a request) or lacks a method.
func (m *BaseJSONRPCNotification) UnmarshalJSON(data []byte) error {
	type alias struct {
		Jsonrpc string          `json:"jsonrpc"`
		Method  *string         `json:"method"`
		Id      *RequestId      `json:"id"`
		Params  json.RawMessage `json:"params"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.WithStack(err)
	}
	if a.Method == nil {
		return errors.New("notification must have a method")
	}
	if a.Id != nil {
		return errors.New("notification must not have an id")
	}
	m.Jsonrpc = a.Jsonrpc
	m.Method = *a.Method
	m.Params = a.Params
	return nil
}

// BaseJSONRPCRequest is a request which expects a response.
type BaseJSONRPCRequest struct {
	Id      RequestId       `json:"id" yaml:"id" mapstructure:"id"`
	Jsonrpc string          `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`
	Method  string          `json:"method" yaml:"method" mapstructure:"method"`
	Params  json.RawMessage `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params,omitempty"`
}

// UnmarshalJSON deserializes a request, failing when either the id or the
// method is absent so that notifications and responses are not mistaken
// for requests.
func (m *BaseJSONRPCRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Jsonrpc string          `json:"jsonrpc"`
		Method  *string         `json:"method"`
		Id      *RequestId      `json:"id"`
		Params  json.RawMessage `json:"params"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.WithStack(err)
	}
	if a.Method == nil {
		return errors.New("request must have a method")
	}
	if a.Id == nil {
		return errors.New("request must have an id")
	}
	m.Jsonrpc = a.Jsonrpc
	m.Method = *a.Method
	m.Id = *a.Id
	m.Params = a.Params
	return nil
}

// BaseJSONRPCResponse is a successful (non-error) response to a request.
type BaseJSONRPCResponse struct {
	Id      RequestId       `json:"id" yaml:"id" mapstructure:"id"`
	Jsonrpc string          `json:"jsonrpc" yaml:"jsonrpc" mapstructure:"jsonrpc"`
	Result  json.RawMessage `json:"result" yaml:"result" mapstructure:"result"`
}

// UnmarshalJSON deserializes a response, failing when the result or the id is
// absent, or when the message carries a method.
func (m *BaseJSONRPCResponse) UnmarshalJSON(data []byte) error {
	type alias struct {
		Jsonrpc string          `json:"jsonrpc"`
		Method  *string         `json:"method"`
		Id      *RequestId      `json:"id"`
		Result  json.RawMessage `json:"result"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.WithStack(err)
	}
	if a.Method != nil {
		return errors.New("response must not have a method")
	}
	if a.Id == nil {
		return errors.New("response must have an id")
	}
	if a.Result == nil {
		return errors.New("response must have a result")
	}
	m.Jsonrpc = a.Jsonrpc
	m.Id = *a.Id
	m.Result = a.Result
	return nil
}

type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is a union over the four JSON-RPC message shapes.
// Exactly one of the pointer fields is set, indicated by Type.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

func NewBaseMessageError(errResp *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: errResp,
	}
}

// MarshalJSON serializes the active member of the union.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Errorf("unknown message type: %s", m.Type)
}

// MessageID returns the request id of the active member, or 0 for
// notifications.
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return 0
}

// ParseMessage deserializes a raw JSON-RPC message into the union form,
// trying request, notification, response and error shapes in order.
func ParseMessage(data []byte) (*BaseJsonRpcMessage, error) {
	var request BaseJSONRPCRequest
	if err := json.Unmarshal(data, &request); err == nil {
		return NewBaseMessageRequest(&request), nil
	}

	var notification BaseJSONRPCNotification
	if err := json.Unmarshal(data, &notification); err == nil {
		return NewBaseMessageNotification(&notification), nil
	}

	var response BaseJSONRPCResponse
	if err := json.Unmarshal(data, &response); err == nil {
		return NewBaseMessageResponse(&response), nil
	}

	var errorResponse BaseJSONRPCError
	if err := json.Unmarshal(data, &errorResponse); err == nil {
		return NewBaseMessageError(&errorResponse), nil
	}

	return nil, errors.New("failed to parse JSON-RPC message")
}

// Transport is an abstract interface for a bidirectional JSON-RPC channel.
type Transport interface {
	// Start begins processing messages on the transport, including any
	// connection steps that might need to be handled externally.
	Start(ctx context.Context) error

	// Send sends a JSON-RPC message (request, notification or response).
	Send(ctx context.Context, message *BaseJsonRpcMessage) error

	// Close closes the connection.
	Close() error

	// SetCloseHandler sets the callback for when the connection is closed for
	// any reason. This should be invoked when Close() is called as well.
	SetCloseHandler(handler func())

	// SetErrorHandler sets the callback for when an error occurs. Errors are
	// not necessarily fatal; they are used for reporting any kind of
	// exceptional condition out of band.
	SetErrorHandler(handler func(err error))

	// SetMessageHandler sets the callback for when a message (request,
	// notification or response) is received over the connection.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}

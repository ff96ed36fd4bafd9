// Package testingutils provides transport fakes for MCP tests.
package testingutils

import (
	"context"
	"sync"

	"github.com/papermind-ai/papermind/mcp/transport"
)

// MockTransport records every message sent through it, so tests can assert on
// the outbound traffic of a server or client without a real connection.
type MockTransport struct {
	mu       sync.Mutex
	messages []*transport.BaseJsonRpcMessage

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

var _ transport.Transport = (*MockTransport)(nil)

// NewMockTransport creates an empty recording transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Start does nothing.
func (t *MockTransport) Start(ctx context.Context) error {
	return nil
}

// Send records the message.
func (t *MockTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, message)
	return nil
}

// Close invokes the close handler.
func (t *MockTransport) Close() error {
	t.mu.Lock()
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

// GetMessages returns a snapshot of the messages sent so far.
func (t *MockTransport) GetMessages() []*transport.BaseJsonRpcMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*transport.BaseJsonRpcMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Receive delivers a message to the installed message handler, simulating
// inbound traffic.
func (t *MockTransport) Receive(ctx context.Context, message *transport.BaseJsonRpcMessage) {
	t.mu.Lock()
	handler := t.messageHandler
	t.mu.Unlock()
	if handler != nil {
		handler(ctx, message)
	}
}

// SetCloseHandler sets the callback for when the connection is closed for any reason.
func (t *MockTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler sets the callback for when an error occurs.
func (t *MockTransport) SetErrorHandler(handler func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler sets the callback for when a message is received over the connection.
func (t *MockTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

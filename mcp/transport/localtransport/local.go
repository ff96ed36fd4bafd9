// Package localtransport provides an in-process transport pair, used to
// connect an MCP client and server in the same process, primarily in tests.
package localtransport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/papermind-ai/papermind/mcp/transport"
)

// Transport is one end of an in-process transport pair. Messages sent on one
// end are re-parsed and delivered to the peer's message handler, which keeps
// the serialization path identical to a real wire transport.
type Transport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	peer           *Transport
	closed         bool
}

var _ transport.Transport = (*Transport)(nil)

// NewPipe creates a connected pair of in-process transports.
func NewPipe() (clientEnd, serverEnd *Transport) {
	a := &Transport{}
	b := &Transport{}
	a.peer = b
	b.peer = a
	return a, b
}

// Start does nothing in the stateless local transport.
func (t *Transport) Start(ctx context.Context) error {
	return nil
}

// Send serializes the message and delivers it to the peer's message handler.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.RLock()
	peer := t.peer
	closed := t.closed
	t.mu.RUnlock()

	if closed || peer == nil {
		return errors.New("local transport closed")
	}

	// Round-trip through JSON so both ends see wire-identical messages.
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	parsed, err := transport.ParseMessage(data)
	if err != nil {
		return errors.Wrap(err, "failed to parse message")
	}

	peer.mu.RLock()
	handler := peer.messageHandler
	peer.mu.RUnlock()

	if handler == nil {
		return errors.New("peer has no message handler")
	}

	// Deliver asynchronously so a Send from inside a handler cannot deadlock.
	go handler(ctx, parsed)
	return nil
}

// Close closes this end of the pipe.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler sets the callback for when the connection is closed for any reason.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler sets the callback for when an error occurs.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler sets the callback for when a message is received over the connection.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

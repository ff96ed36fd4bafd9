package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/papermind-ai/papermind/mcp/transport"
)

// ServerTransport serves MCP over the current process's stdin/stdout, for
// programs launched as subprocess tool servers. Diagnostics must go to
// stderr; stdout carries the protocol.
type ServerTransport struct {
	in  io.Reader
	out io.Writer

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	mu     sync.Mutex
	done   chan struct{}
	closed sync.Once
}

var _ transport.Transport = (*ServerTransport)(nil)

// NewServer creates a transport over os.Stdin and os.Stdout.
func NewServer() *ServerTransport {
	return NewServerWithIO(os.Stdin, os.Stdout)
}

// NewServerWithIO creates a transport over the given streams, for tests.
func NewServerWithIO(in io.Reader, out io.Writer) *ServerTransport {
	return &ServerTransport{
		in:   in,
		out:  out,
		done: make(chan struct{}),
	}
}

// Start begins reading messages from the input stream.
func (t *ServerTransport) Start(ctx context.Context) error {
	go t.readLoop()
	return nil
}

func (t *ServerTransport) readLoop() {
	ctx := context.Background()
	reader := bufio.NewReaderSize(t.in, 1<<20)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			select {
			case <-t.done:
			default:
				if !errors.Is(err, io.EOF) {
					t.handleError(errors.Wrap(err, "failed to read from stdin"))
				}
				// A closed stdin means the host is done with us.
				_ = t.Close()
			}
			return
		}

		message, err := transport.ParseMessage(line)
		if err != nil {
			logger.KV(xlog.DEBUG, "skipped", string(line))
			continue
		}

		t.mu.Lock()
		handler := t.messageHandler
		t.mu.Unlock()

		if handler != nil {
			handler(ctx, message)
		}
	}
}

// Send writes a JSON-RPC message to the output stream with a newline
// delimiter. Writes are serialized.
func (t *ServerTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.out.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write to stdout")
	}
	return nil
}

// Close stops the transport. It is idempotent.
func (t *ServerTransport) Close() error {
	t.closed.Do(func() {
		close(t.done)

		t.mu.Lock()
		handler := t.closeHandler
		t.mu.Unlock()

		if handler != nil {
			handler()
		}
	})
	return nil
}

// Done is closed when the transport stops, either from Close or because the
// input stream ended. Server mains block on it.
func (t *ServerTransport) Done() <-chan struct{} {
	return t.done
}

func (t *ServerTransport) handleError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// SetCloseHandler sets the callback for when the connection is closed for any reason.
func (t *ServerTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler sets the callback for when an error occurs.
func (t *ServerTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler sets the callback for when a message is received over the connection.
func (t *ServerTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

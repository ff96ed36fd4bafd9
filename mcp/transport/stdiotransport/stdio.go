// Package stdiotransport implements the MCP transport over the stdin/stdout
// of a subprocess, using newline-delimited JSON-RPC messages.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/papermind-ai/papermind/mcp/transport"
)

var logger = xlog.NewPackageLogger("github.com/papermind-ai/papermind/mcp/transport", "stdiotransport")

// stopGracePeriod is how long Close waits for the subprocess to exit after
// its stdin is closed before killing it.
const stopGracePeriod = 5 * time.Second

// Transport launches an MCP server as a subprocess and exchanges JSON-RPC
// messages over its stdin/stdout. Incoming messages are pushed to the
// registered message handler from a reader goroutine.
type Transport struct {
	command string
	args    []string
	env     []string

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool
	done    chan struct{}
	closed  sync.Once
}

var _ transport.Transport = (*Transport)(nil)

// Option configures the subprocess transport.
type Option func(*Transport)

// WithEnv appends environment variables for the subprocess, in "KEY=VALUE"
// form. They are added on top of the current process environment.
func WithEnv(env []string) Option {
	return func(t *Transport) {
		t.env = append(t.env, env...)
	}
}

// New creates a stdio transport for the given command. The subprocess is not
// launched until Start is called.
func New(command string, args []string, opts ...Option) *Transport {
	t := &Transport{
		command: command,
		args:    args,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the subprocess and begins reading messages from its stdout.
// The subprocess lifecycle is independent of request contexts; it is only
// terminated by Close.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.New("stdio transport already started")
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdin pipe")
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return errors.Wrap(err, "failed to create stdout pipe")
	}

	// stderr is not part of the protocol, drain it for diagnostics.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return errors.Wrap(err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return errors.Wrapf(err, "failed to start subprocess: %s", t.command)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.started = true

	logger.ContextKV(ctx, xlog.DEBUG,
		"command", t.command,
		"pid", cmd.Process.Pid,
	)

	go t.drainStderr(stderr)
	go t.readLoop(stdout)

	return nil
}

func (t *Transport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		logger.KV(xlog.DEBUG,
			"command", t.command,
			"stderr", scanner.Text(),
		)
	}
}

// readLoop reads newline-delimited messages from the subprocess stdout and
// pushes them to the message handler until the stream ends or the transport
// is closed.
func (t *Transport) readLoop(stdout io.Reader) {
	ctx := context.Background()
	// 1 MiB buffer for large tool results.
	reader := bufio.NewReaderSize(stdout, 1<<20)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			select {
			case <-t.done:
				// Expected during Close.
			default:
				if !errors.Is(err, io.EOF) {
					t.handleError(errors.Wrap(err, "failed to read from subprocess stdout"))
				}
				t.handleClose()
			}
			return
		}

		message, err := transport.ParseMessage(line)
		if err != nil {
			// Servers occasionally write banners or logs to stdout.
			logger.KV(xlog.DEBUG,
				"command", t.command,
				"skipped", string(line),
			)
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

// Send writes a JSON-RPC message to the subprocess stdin with a newline
// delimiter. Writes are serialized.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.stdin == nil {
		return errors.New("stdio transport not started")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"type", message.Type,
		"id", message.MessageID(),
	)

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write to subprocess stdin")
	}
	return nil
}

// Close terminates the subprocess: stdin is closed to signal exit, and the
// process is killed if it does not exit within the grace period. Close is
// idempotent.
func (t *Transport) Close() error {
	var err error
	t.closed.Do(func() {
		close(t.done)

		t.mu.Lock()
		cmd := t.cmd
		stdin := t.stdin
		t.cmd = nil
		t.stdin = nil
		t.mu.Unlock()

		if stdin != nil {
			_ = stdin.Close()
		}

		if cmd != nil && cmd.Process != nil {
			waitCh := make(chan error, 1)
			go func() { waitCh <- cmd.Wait() }()

			select {
			case err = <-waitCh:
				// Process exit errors are expected when the server treats a
				// closed stdin as termination.
				err = nil
			case <-time.After(stopGracePeriod):
				logger.KV(xlog.WARNING,
					"command", t.command,
					"pid", cmd.Process.Pid,
					"reason", "subprocess did not exit, killing",
				)
				_ = cmd.Process.Kill()
				<-waitCh
			}
		}

		if t.closeHandler != nil {
			t.closeHandler()
		}
	})
	return err
}

func (t *Transport) handleError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (t *Transport) handleClose() {
	t.mu.Lock()
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
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

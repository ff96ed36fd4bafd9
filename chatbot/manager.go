package chatbot

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/mcp/transport/stdiotransport"
	"github.com/papermind-ai/papermind/registry"
)

var logger = xlog.NewPackageLogger("github.com/papermind-ai/papermind", "chatbot")

// Session is a named, connected MCP server. ID is unique per connection and
// shows up in logs to tell restarts of the same server apart.
type Session struct {
	ID     string
	Name   string
	Client *mcp.Client
}

// connector abstracts session establishment so tests can substitute
// in-process servers for subprocesses.
type connector func(ctx context.Context, name string, cfg *ServerConfig) (*mcp.Client, error)

// Manager owns the MCP sessions of a chatbot run: it starts them, registers
// their tools, and shuts them down.
type Manager struct {
	servers  map[string]*ServerConfig
	registry *registry.Registry
	connect  connector

	mu       sync.RWMutex
	sessions []*Session

	shutdown     sync.Once
	shutdownErr  error
	clientName   string
	clientVer    string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientInfo sets the identity the sessions report to servers.
func WithClientInfo(name, version string) ManagerOption {
	return func(m *Manager) {
		m.clientName = name
		m.clientVer = version
	}
}

// withConnector substitutes the session establishment function, for tests.
func withConnector(c connector) ManagerOption {
	return func(m *Manager) {
		m.connect = c
	}
}

// NewManager creates a manager for the configured servers.
func NewManager(servers map[string]*ServerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		servers:    servers,
		registry:   registry.New(),
		clientName: "papermind",
		clientVer:  "0.1.0",
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.connect == nil {
		m.connect = m.connectStdio
	}
	return m
}

func (m *Manager) connectStdio(ctx context.Context, name string, cfg *ServerConfig) (*mcp.Client, error) {
	tr := stdiotransport.New(cfg.Command, cfg.Args, stdiotransport.WithEnv(cfg.EnvList()))
	client := mcp.NewClient(tr, mcp.WithClientInfo(m.clientName, m.clientVer))
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Registry returns the aggregated tool registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Sessions returns the connected sessions in registration order.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions
}

// StartAll connects to every configured server concurrently. Failures are
// logged and skipped; the chatbot runs with whatever connected. Tools are
// registered in server-name order, so collisions resolve deterministically.
// An error is returned only when no server could be connected.
func (m *Manager) StartAll(ctx context.Context) error {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make([]*mcp.Client, len(names))
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			clients[i], errs[i] = m.connect(ctx, name, m.servers[name])
		}(i, name)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, name := range names {
		if errs[i] != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"server", name,
				"err", errs[i].Error(),
			)
			continue
		}

		session := &Session{
			ID:     uuid.NewString(),
			Name:   name,
			Client: clients[i],
		}
		m.sessions = append(m.sessions, session)

		tools := clients[i].Tools()
		m.registry.Register(name, clients[i], tools)

		toolNames := make([]string, 0, len(tools))
		for _, tool := range tools {
			toolNames = append(toolNames, tool.Name)
		}
		logger.ContextKV(ctx, xlog.INFO,
			"server", name,
			"session", session.ID,
			"tools", toolNames,
		)
	}

	if len(m.sessions) == 0 {
		return errors.New("no MCP servers available")
	}
	return nil
}

// Shutdown closes every session. Close failures are logged, not returned;
// the first error is kept for the caller. Shutdown is idempotent.
func (m *Manager) Shutdown() error {
	m.shutdown.Do(func() {
		m.mu.Lock()
		sessions := m.sessions
		m.sessions = nil
		m.mu.Unlock()

		for _, session := range sessions {
			if err := session.Client.Close(); err != nil {
				logger.KV(xlog.WARNING,
					"server", session.Name,
					"err", err.Error(),
				)
				m.shutdownErr = errors.CombineErrors(m.shutdownErr, err)
			}
		}
	})
	return m.shutdownErr
}

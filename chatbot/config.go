// Package chatbot wires the pieces of the interactive assistant together:
// configuration, MCP session management, the model conversation engine, and
// the terminal chat loop.
package chatbot

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
	"github.com/papermind-ai/papermind/llmfactory"
)

const (
	// DefaultMaxRounds bounds the number of model turns a single query may
	// take before the conversation is cut off.
	DefaultMaxRounds = 16
	// DefaultMaxTokens is the per-response token budget.
	DefaultMaxTokens = 2024
	// DefaultMaxContentSize bounds the accumulated conversation content in
	// bytes.
	DefaultMaxContentSize = uint64(512 * 1024)
)

// Config is the top-level chatbot configuration.
type Config struct {
	// LLM configures the model providers.
	LLM *llmfactory.Config `json:"llm" yaml:"llm" validate:"required"`

	// Servers lists the MCP servers to launch and connect to, by name.
	Servers map[string]*ServerConfig `json:"mcpServers" yaml:"mcpServers" validate:"required,min=1,dive,required"`

	// Chat configures the conversation engine.
	Chat ChatConfig `json:"chat" yaml:"chat"`
}

// ServerConfig describes how to launch one MCP server subprocess.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command" validate:"required"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// EnvList renders the env map as "KEY=VALUE" pairs, sorted by key.
func (c *ServerConfig) EnvList() []string {
	if len(c.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, c.Env[k]))
	}
	return env
}

// ChatConfig configures the conversation engine.
type ChatConfig struct {
	// SystemPrompt is prepended to every conversation when set.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// MaxTokens is the per-response token budget. Zero means the default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// MaxRounds bounds model turns per query. Zero means the default.
	MaxRounds int `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty"`
	// MaxContentSize bounds the accumulated conversation content in bytes.
	// Zero means the default.
	MaxContentSize uint64 `json:"max_content_size,omitempty" yaml:"max_content_size,omitempty"`
}

// LoadConfig loads and validates a config file, expanding environment
// variables in values.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessage(err, "failed to load config")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}
	return cfg, nil
}

package chatbot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/papermind-ai/papermind/chatbot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "papermind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_TOKEN", "sk-test-123")

	path := writeConfig(t, `
llm:
  providers:
    - name: claude
      token: ${TEST_ANTHROPIC_TOKEN}
      default_model: claude-3-7-sonnet-latest
mcpServers:
  research:
    command: papermind
    args: ["research-server", "--papers", "papers"]
    env:
      PAPERS_DEBUG: "1"
  websearch:
    command: papermind
    args: ["websearch-server"]
chat:
  system_prompt: "You are a research assistant."
  max_tokens: 2024
  max_rounds: 8
`)

	cfg, err := chatbot.LoadConfig(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.LLM)
	require.Len(t, cfg.LLM.Providers, 1)
	assert.Equal(t, "claude", cfg.LLM.Providers[0].Name)
	assert.Equal(t, "sk-test-123", cfg.LLM.Providers[0].Token, "env vars must be expanded")
	assert.Equal(t, "claude-3-7-sonnet-latest", cfg.LLM.Providers[0].DefaultModel)

	require.Len(t, cfg.Servers, 2)
	research := cfg.Servers["research"]
	require.NotNil(t, research)
	assert.Equal(t, "papermind", research.Command)
	assert.Equal(t, []string{"research-server", "--papers", "papers"}, research.Args)
	assert.Equal(t, []string{"PAPERS_DEBUG=1"}, research.EnvList())

	assert.Equal(t, "You are a research assistant.", cfg.Chat.SystemPrompt)
	assert.Equal(t, 2024, cfg.Chat.MaxTokens)
	assert.Equal(t, 8, cfg.Chat.MaxRounds)
}

func TestLoadConfig_MissingServers(t *testing.T) {
	path := writeConfig(t, `
llm:
  providers:
    - name: claude
      token: sk-test
      default_model: claude-3-7-sonnet-latest
`)

	_, err := chatbot.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadConfig_MissingCommand(t *testing.T) {
	path := writeConfig(t, `
llm:
  providers:
    - name: claude
      token: sk-test
mcpServers:
  research:
    args: ["research-server"]
`)

	_, err := chatbot.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := chatbot.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestServerConfigEnvList(t *testing.T) {
	cfg := &chatbot.ServerConfig{
		Command: "papermind",
		Env: map[string]string{
			"B_KEY": "2",
			"A_KEY": "1",
		},
	}
	assert.Equal(t, []string{"A_KEY=1", "B_KEY=2"}, cfg.EnvList())

	empty := &chatbot.ServerConfig{Command: "papermind"}
	assert.Nil(t, empty.EnvList())
}

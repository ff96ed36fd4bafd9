package llmfactory

import (
	"github.com/effective-security/x/configloader"
)

// Config lists the configured model providers. The first provider is the
// default.
type Config struct {
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
}

// ProviderConfig describes a single model provider. Provider selects the
// backend, "ANTHROPIC" when empty.
type ProviderConfig struct {
	Name            string          `json:"name" yaml:"name"`
	Provider        string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	Token           string          `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string          `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string        `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	Anthropic       AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI          OpenAIConfig    `json:"openai" yaml:"openai"`
}

// AnthropicConfig specifies the Anthropic API options.
type AnthropicConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// OpenAIConfig specifies the OpenAI API options.
type OpenAIConfig struct {
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// LoadConfig loads a config from file, expanding environment variables in
// values.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"os"
	"time"
)

// LLMConfig configures the chat-completion endpoint used to answer questionnaires.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai-compatible or mock
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	APIKeyEnv   string        `mapstructure:"api_key_env"` // variable holding the key when APIKey is empty
	BaseURL     string        `mapstructure:"base_url"`
	BaseURLEnv  string        `mapstructure:"base_url_env"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"` // per answer call
	MaxRetries  int           `mapstructure:"max_retries"`
}

// ResolveEnvVars fills APIKey and BaseURL from the named variables.
// Values set directly win.
func (c *LLMConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		c.BaseURL = os.Getenv(c.BaseURLEnv)
	}
}

// Validate returns the first configuration problem, or nil.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "mock":
		return nil
	case "openai-compatible":
	default:
		return fmt.Errorf("llm: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("llm: model is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("llm: base_url is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm: temperature %.2f out of range [0,2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llm: max_tokens must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm: timeout must be positive")
	}
	return nil
}

// ValidateWithAPIKey also requires a key. Use it when answers will actually be requested.
func (c *LLMConfig) ValidateWithAPIKey() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Provider != "mock" && c.APIKey == "" {
		return fmt.Errorf("llm: api_key is required (set directly or via %s)", c.APIKeyEnv)
	}
	return nil
}

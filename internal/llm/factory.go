package llm

import (
	"fmt"

	"specflow/internal/config"
)

// NewGenerator returns the provider named in configuration.
//
// Supported providers:
//   - "anthropic" - Claude models via the Anthropic API
//   - "lorem"     - mock provider for development and tests
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.DefaultProvider {
	case "anthropic":
		return NewAnthropicProvider(cfg.AnthropicAPIKey)
	case "lorem", "":
		return NewLoremProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.DefaultProvider)
	}
}

package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/config"
)

// NewCompletionClient creates the completion client selected by configuration.
// The returned client is constructed once at process start and shared by all agents.
func NewCompletionClient(cfg *config.LLMConfig, logger *zap.Logger) (CompletionClient, error) {
	switch cfg.Provider {
	case "", providerAnthropic:
		return NewAnthropicClient(&AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.EffectiveModel(),
			MaxTokens: cfg.MaxTokens,
		}, logger)
	case providerOpenAI:
		return NewOpenAIClient(&OpenAIConfig{
			Endpoint:  cfg.BaseURL,
			Model:     cfg.EffectiveModel(),
			APIKey:    cfg.OpenAIAPIKey,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

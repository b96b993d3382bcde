package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures the completion/embedding provider.
// It is deliberately decoupled from the application config package so tests
// and commands can build clients directly.
type ProviderConfig struct {
	Provider       string // "openai", "anthropic", or "ollama"
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Dimension      int
	Timeout        time.Duration
}

// NewTextGenerator creates the appropriate TextGenerator for the provider.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator.
// Anthropic has no embeddings endpoint, so it is not a valid choice here.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.EmbeddingModel,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Dimension: cfg.Dimension,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.EmbeddingModel,
			Timeout:   cfg.Timeout,
			Dimension: cfg.Dimension,
		}), nil
	default:
		return nil, fmt.Errorf("provider %q does not support embeddings", cfg.Provider)
	}
}

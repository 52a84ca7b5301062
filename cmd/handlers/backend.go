package handlers

import (
	"altwriter/internal/config"
	"altwriter/internal/llm"
	"context"
	"fmt"
)

// newBackend builds the generation backend selected by llm.provider. The
// result is wrapped so the run summary can report call statistics.
func newBackend(ctx context.Context, cfg *config.Config) (*llm.TracedBackend, error) {
	var backend llm.Backend
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		b, err := llm.NewOpenAIBackend(llm.OpenAISettings{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.ProviderModel(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI backend: %w", err)
		}
		backend = b
	case config.ProviderGemini:
		b, err := llm.NewGeminiBackend(ctx, cfg.LLM.Gemini.APIKey, cfg.ProviderModel())
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini backend: %w", err)
		}
		backend = b
	case config.ProviderMock:
		backend = llm.NewDryRunBackend(cfg.Policy.RequiredQuota)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
	return llm.NewTracedBackend(backend), nil
}

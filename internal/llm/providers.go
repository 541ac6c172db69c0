package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Hipson47/Worm/internal/config"
)

// langchainBackend adapts a langchaingo model to the Backend interface.
type langchainBackend struct {
	model       llms.Model
	name        string
	maxTokens   int
	temperature float64
}

func (b *langchainBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, b.model, prompt,
		llms.WithMaxTokens(b.maxTokens),
		llms.WithTemperature(b.temperature),
	)
}

func (b *langchainBackend) Name() string {
	return b.name
}

// New builds the configured reasoning backend, wrapped with the configured
// timeout and health tracking. Provider "none" yields a nil backend: the
// orchestration layer then runs heuristics only.
func New(cfg config.BackendConfig, health *Health) (Backend, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic":
		model, err = anthropic.New(
			anthropic.WithModel(cfg.Model),
			anthropic.WithToken(cfg.APIKey.Value()),
		)
	default:
		return nil, fmt.Errorf("unknown backend provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", cfg.Provider, err)
	}

	inner := &langchainBackend{
		model:       model,
		name:        cfg.Provider + "/" + cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	return WithTimeout(inner, cfg.Timeout.Duration(), health), nil
}

package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"textbook-rag/internal/config"
	"textbook-rag/internal/models"
)

const serviceName = "llm"

// Completer turns a single prompt into a single completion.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Client is a Completer backed by a langchaingo model. Create it once and share it.
type Client struct {
	llm    llms.Model
	model  string
	logger zerolog.Logger
}

// NewModel builds the langchaingo model described by cfg.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// NewClient creates a completion client for cfg.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	llm, err := NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s model %s: %w", cfg.Provider, cfg.Model, err)
	}
	return NewClientFromModel(llm, cfg.Model), nil
}

// NewClientFromModel wraps an existing langchaingo model.
func NewClientFromModel(llm llms.Model, model string) *Client {
	return &Client{
		llm:    llm,
		model:  model,
		logger: log.Logger.With().Str("component", "llmservice").Str("model", model).Logger(),
	}
}

// Complete sends prompt as one human message and returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	c.logger.Debug().Int("prompt_chars", len(prompt)).Float64("temperature", temperature).Msg("Generating content")
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(temperature))
	if err != nil {
		return "", &models.ExternalServiceError{Service: serviceName, Op: "complete", Err: err}
	}
	c.logger.Debug().Int("response_chars", len(out)).Msg("Generated content")
	return out, nil
}

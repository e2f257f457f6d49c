package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var ErrEmptyResponse = errors.New("empty response from model")

const (
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"
	ProviderOpenAICompat = "openai-compat"
)

// Config selects and configures one provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewGenerator builds the configured provider. An empty provider yields a
// nil generator and no error.
func NewGenerator(ctx context.Context, cfg Config) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case ProviderOllama:
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model), nil
	case ProviderOpenAICompat:
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

package llm

import (
	"fmt"
	"os"
	"strings"
)

// Default model identifiers per provider.
const (
	DefaultOpenAIModel    = "gpt-5.2"
	DefaultAnthropicModel = "claude-opus-4-5-20251101"
	DefaultDeepSeekModel  = "deepseek-v3.2"
	DefaultGeminiModel    = "gemini-3-flash"
)

// Options configures a provider.
type Options struct {
	Model       string
	APIKey      string
	MaxTokens   uint32
	Temperature float32
}

// NewProvider creates a provider by name: openai, anthropic, deepseek,
// or gemini. An empty APIKey falls back to the provider's environment
// variable; an empty model falls back to the provider default.
func NewProvider(name string, opts Options) (Provider, error) {
	kind := strings.ToLower(name)

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(envVar(kind))
		if apiKey == "" {
			return nil, fmt.Errorf("%s: no API key given and %s not set", kind, envVar(kind))
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	switch kind {
	case "openai", "gpt":
		return NewOpenAIProvider(apiKey, defaultModel(opts.Model, DefaultOpenAIModel), maxTokens, temperature), nil
	case "anthropic", "claude":
		return NewAnthropicProvider(apiKey, defaultModel(opts.Model, DefaultAnthropicModel), maxTokens, temperature), nil
	case "deepseek":
		return NewDeepSeekProvider(apiKey, defaultModel(opts.Model, DefaultDeepSeekModel), maxTokens, temperature), nil
	case "gemini", "google":
		return NewGeminiProvider(apiKey, defaultModel(opts.Model, DefaultGeminiModel), maxTokens, temperature), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", name)
}

func envVar(kind string) string {
	switch kind {
	case "openai", "gpt":
		return "OPENAI_API_KEY"
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	case "deepseek":
		return "DEEPSEEK_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	}
	return ""
}

func defaultModel(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}

package normalizer

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ProviderFactory builds a provider from configuration.
type ProviderFactory func(cfg Config, client *http.Client) (Provider, error)

var registry = map[string]ProviderFactory{
	ProviderOpenAI: func(cfg Config, client *http.Client) (Provider, error) {
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewChatClient(ProviderOpenAI, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, client), nil
	},
	ProviderOllama: func(cfg Config, client *http.Client) (Provider, error) {
		return NewChatClient(ProviderOllama, cfg.OllamaBaseURL, "", cfg.OllamaModel, client), nil
	},
	ProviderGemini: func(cfg Config, client *http.Client) (Provider, error) {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
		return NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, client), nil
	},
}

// NewProvider returns the configured provider, or nil for "none".
func NewProvider(cfg Config, client *http.Client) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" || name == ProviderNone {
		return nil, nil
	}
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown normalizer provider %q (known: %s)", cfg.Provider, strings.Join(ProviderNames(), ", "))
	}
	if client == nil {
		client = &http.Client{}
	}
	return factory(cfg, client)
}

// ProviderNames lists the registered provider names.
func ProviderNames() []string {
	names := []string{ProviderNone}
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

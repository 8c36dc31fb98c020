package normalizer

import (
	"time"

	"github.com/sbsbridge/claimbridge/internal/pkg/env"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Config holds normalizer settings.
type Config struct {
	Provider        string
	MinConfidence   float64
	ProviderTimeout time.Duration
	CacheTTL        time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	OllamaBaseURL string
	OllamaModel   string
}

// LoadConfig reads normalizer settings from the environment.
func LoadConfig() Config {
	return Config{
		Provider:        env.GetEnv("NORMALIZER_PROVIDER", ProviderNone),
		MinConfidence:   env.GetEnvFloat("NORMALIZER_MIN_CONFIDENCE", 0.60),
		ProviderTimeout: env.GetEnvDuration("NORMALIZER_PROVIDER_TIMEOUT", 8*time.Second),
		CacheTTL:        env.GetEnvDuration("NORMALIZER_CACHE_TTL", 24*time.Hour),

		OpenAIAPIKey:  env.GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: env.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   env.GetEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GeminiAPIKey:  env.GetEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL: env.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:   env.GetEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		OllamaBaseURL: env.GetEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		OllamaModel:   env.GetEnv("OLLAMA_MODEL", "llama3.1"),
	}
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	LogLevel    string
	APIToken    string
	DatabaseURL string
	RedisURL    string

	NatsEnabled bool
	NatsURL     string
	NatsToken   string

	LLMProvider           string
	LLMTimeout            time.Duration
	LLMMaxAttempts        int
	AnalysisEnabled       bool
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string
	OpenAITranscribeModel string
	AnthropicAPIKey       string
	AnthropicModel        string

	MaxSuggestions    int
	RateLimitRequests int
	RateLimitWindow   time.Duration
	ScriptsPath       string

	SlackBotToken string
	SlackChannel  string
}

func Load() Config {
	return Config{
		Port:        envInt("ALMCOACH_PORT", 8760),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("ALMCOACH_API_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		RedisURL:    envStr("REDIS_URL", ""),

		NatsEnabled: envBool("NATS_ENABLED", false),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),

		LLMProvider:           strings.ToLower(envStr("LLM_PROVIDER", "openai")),
		LLMTimeout:            envDuration("LLM_TIMEOUT", 10*time.Second),
		LLMMaxAttempts:        envInt("LLM_MAX_ATTEMPTS", 3),
		AnalysisEnabled:       envBool("ANALYSIS_ENABLED", false),
		OpenAIAPIKey:          envStr("OPENAI_API_KEY", ""),
		OpenAIModel:           envStr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:         envStr("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAITranscribeModel: envStr("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		AnthropicAPIKey:       envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:        envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		MaxSuggestions:    envInt("MAX_SUGGESTIONS", 3),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		ScriptsPath:       envStr("SCRIPTS_PATH", ""),

		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_SUMMARY_CHANNEL", ""),
	}
}

// LLMConfigured reports whether the selected provider has credentials.
func (c Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	default:
		return c.OpenAIAPIKey != ""
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

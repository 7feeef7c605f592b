package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Transport
	Transport      string
	BridgeReplyURL string
	BridgeWSURL    string

	// Conversation backend
	LLMProvider         string
	LLMFallbackProvider string
	OpenAIAPIKey        string
	OpenAIModel         string
	AWSRegion           string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModel         string
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	HistoryTTL          time.Duration
	MaxHistoryMessages  int

	// Reply pipeline
	PrePrompt        string
	GPTPrefix        string
	BackendTimeout   time.Duration
	SerializeSenders bool

	// Moderation
	PromptModerationEnabled               bool
	PromptModerationBlacklistedCategories []string
	PromptGuardEnabled                    bool

	// Voice replies
	TTSEnabled     bool
	TTSMode        string
	SpeechAPIURL   string
	SpeechAPIToken string
	OpenAITTSModel string
	OpenAITTSVoice string
	AudioTempDir   string
}

// DefaultBlacklistedCategories are the moderation categories rejected when none are configured.
var DefaultBlacklistedCategories = []string{
	"hate",
	"hate/threatening",
	"self-harm",
	"sexual",
	"sexual/minors",
	"violence",
	"violence/graphic",
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		Transport:      strings.ToLower(strings.TrimSpace(getEnv("TRANSPORT", "webhook"))),
		BridgeReplyURL: getEnv("BRIDGE_REPLY_URL", ""),
		BridgeWSURL:    getEnv("BRIDGE_WS_URL", ""),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		HistoryTTL:          getEnvAsDuration("CONVERSATION_HISTORY_TTL", 24*time.Hour),
		MaxHistoryMessages:  getEnvAsInt("CONVERSATION_MAX_HISTORY", 40),

		PrePrompt:        getEnv("PRE_PROMPT", ""),
		GPTPrefix:        getEnv("GPT_PREFIX", ""),
		BackendTimeout:   getEnvAsDuration("BACKEND_TIMEOUT", 60*time.Second),
		SerializeSenders: getEnvAsBool("SERIALIZE_SENDERS", true),

		PromptModerationEnabled:               getEnvAsBool("PROMPT_MODERATION_ENABLED", false),
		PromptModerationBlacklistedCategories: getEnvAsList("PROMPT_MODERATION_BLACKLISTED_CATEGORIES", DefaultBlacklistedCategories),
		PromptGuardEnabled:                    getEnvAsBool("PROMPT_GUARD_ENABLED", false),

		TTSEnabled:     getEnvAsBool("TTS_ENABLED", false),
		TTSMode:        strings.ToLower(strings.TrimSpace(getEnv("TTS_MODE", "speech-api"))),
		SpeechAPIURL:   getEnv("SPEECH_API_URL", ""),
		SpeechAPIToken: getEnv("SPEECH_API_TOKEN", ""),
		OpenAITTSModel: getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice: getEnv("OPENAI_TTS_VOICE", "alloy"),
		AudioTempDir:   getEnv("AUDIO_TEMP_DIR", os.TempDir()),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

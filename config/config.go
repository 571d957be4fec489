package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment. It is loaded
// once in main and injected; nothing mutates it after startup.
type Config struct {
	Port string

	// Upstream completion API (OpenRouter, OpenAI-compatible).
	CompletionURL string
	CompletionKey string
	Model         string
	MaxTokens     int

	// Deepgram text-to-speech.
	DeepgramURL string
	DeepgramKey string
	TTSModel    string

	// ESP32 speaker on the local network, e.g. "192.168.1.42". Empty means the
	// device notify paths are disabled.
	ESP32Address string

	// Pages scraped fresh on every chat request, in this order.
	SchoolPages []string

	// Optional file overriding the compiled-in institution profile.
	ProfilePath string

	// Ceiling on scraped text fed to the model, in characters. <= 0 disables it.
	ContextCharLimit int

	HTTPTimeout time.Duration
}

var defaultPages = []string{
	"https://sjcsvns.org/",
	"https://sjcsvns.org/about.php",
	"https://sjcsvns.org/faculty.php?fac=Senior%20Wing",
}

// Load reads the configuration from a .env file if present, falling back to
// process environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	return &Config{
		Port:             getEnv("PORT", "5000"),
		CompletionURL:    getEnv("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),
		CompletionKey:    getEnv("OPENAI_API_KEY", ""),
		Model:            getEnv("CHAT_MODEL", "openai/gpt-4o-mini"),
		MaxTokens:        getEnvInt("CHAT_MAX_TOKENS", 1000),
		DeepgramURL:      getEnv("DEEPGRAM_URL", "https://api.deepgram.com/v1/speak"),
		DeepgramKey:      getEnv("DEEPGRAM_API_KEY", ""),
		TTSModel:         getEnv("TTS_MODEL", "aura-asteria-en"),
		ESP32Address:     getEnv("ESP32_IP", ""),
		SchoolPages:      getEnvList("SCHOOL_PAGES", defaultPages),
		ProfilePath:      getEnv("PROFILE_PATH", ""),
		ContextCharLimit: getEnvInt("CONTEXT_CHAR_LIMIT", 20000),
		HTTPTimeout:      time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("CONFIG: Ignoring non-numeric %s=%q", key, value)
		return fallback
	}
	return n
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

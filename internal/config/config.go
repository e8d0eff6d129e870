package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultExamDurationSeconds is the countdown used when neither the
// environment nor the exam service supplies one.
const DefaultExamDurationSeconds = 1800

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// ExamAPIURL is the base URL of the remote exam service.
	ExamAPIURL string
	// ExamAPITimeout bounds every remote call. Zero disables the limit.
	ExamAPITimeout      time.Duration
	ExamDurationSeconds int

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "8090"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "pretty"),
		ExamAPIURL:          strings.TrimRight(getEnv("EXAM_API_URL", "http://127.0.0.1:8001"), "/"),
		ExamAPITimeout:      time.Duration(getEnvInt("EXAM_API_TIMEOUT_SECONDS", 30)) * time.Second,
		ExamDurationSeconds: positiveOr(getEnvInt("EXAM_DURATION_SECONDS", DefaultExamDurationSeconds), DefaultExamDurationSeconds),
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		RateLimitPerMinute:  positiveOr(getEnvInt("RATE_LIMIT_PER_MINUTE", 120), 120),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func positiveOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

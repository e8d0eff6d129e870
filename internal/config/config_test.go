package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "EXAM_API_URL", "EXAM_API_TIMEOUT_SECONDS", "EXAM_DURATION_SECONDS", "ALLOWED_ORIGINS", "RATE_LIMIT_PER_MINUTE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8090", cfg.ServerPort)
	assert.Equal(t, "http://127.0.0.1:8001", cfg.ExamAPIURL)
	assert.Equal(t, 30*time.Second, cfg.ExamAPITimeout)
	assert.Equal(t, DefaultExamDurationSeconds, cfg.ExamDurationSeconds)
	assert.Nil(t, cfg.AllowedOrigins)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EXAM_API_URL", "https://exam.example.com/")
	t.Setenv("EXAM_API_TIMEOUT_SECONDS", "5")
	t.Setenv("EXAM_DURATION_SECONDS", "600")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg := Load()
	assert.Equal(t, "https://exam.example.com", cfg.ExamAPIURL)
	assert.Equal(t, 5*time.Second, cfg.ExamAPITimeout)
	assert.Equal(t, 600, cfg.ExamDurationSeconds)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("EXAM_DURATION_SECONDS", "-5")
	assert.Equal(t, DefaultExamDurationSeconds, Load().ExamDurationSeconds)

	t.Setenv("EXAM_DURATION_SECONDS", "soon")
	assert.Equal(t, DefaultExamDurationSeconds, Load().ExamDurationSeconds)
}

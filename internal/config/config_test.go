package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Timings.RevealDelay != time.Second {
		t.Fatalf("RevealDelay = %v, want 1s", cfg.Timings.RevealDelay)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.PerMinute != 20 {
		t.Fatalf("RateLimit = %+v, want enabled at 20/min", cfg.RateLimit)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode without FRONTEND_URL")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ASSISTANT_URL", "https://assistant.example")
	t.Setenv("CHAT_TYPING_DELAY", "250")
	t.Setenv("CHAT_REVEAL_DELAY", "2s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")
	t.Setenv("FRONTEND_URL", "https://chat.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9000" || cfg.AssistantURL != "https://assistant.example" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Timings.TypingDelay != 250*time.Millisecond {
		t.Fatalf("TypingDelay = %v, want 250ms", cfg.Timings.TypingDelay)
	}
	if cfg.Timings.RevealDelay != 2*time.Second {
		t.Fatalf("RevealDelay = %v, want 2s", cfg.Timings.RevealDelay)
	}
	if cfg.RateLimit.Enabled {
		t.Fatal("expected rate limit disabled")
	}
	if cfg.IsDevelopment() {
		t.Fatal("expected production mode")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"ASSISTANT_URL":             "",
		"SESSION_IDLE_TTL":          "0s",
		"CHAT_SATISFACTION_DISMISS": "-1s",
		"RATE_LIMIT_BURST":          "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", key, value)
			}
		})
	}
}

func TestGetEnvDurationFallback(t *testing.T) {
	t.Setenv("SOME_DELAY", "soon")
	if got := getEnvDuration("SOME_DELAY", 3*time.Second); got != 3*time.Second {
		t.Fatalf("getEnvDuration() = %v, want fallback", got)
	}
}

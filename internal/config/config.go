// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	GRPCPort        string
	FrontendURL     string
	DBPath          string
	AssistantURL    string
	PrototypeURL    string
	HTTPTimeout     time.Duration
	SessionIdleTTL  time.Duration
	IdleInterval    time.Duration
	ProfilePath     string
	Timings         TimingsConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// TimingsConfig paces the widget's visible state changes.
type TimingsConfig struct {
	TypingDelay         time.Duration
	RevealDelay         time.Duration
	SatisfactionDismiss time.Duration
	SatisfactionReshow  time.Duration
}

// RateLimitConfig limits message sends per device.
type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
	Burst     int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/chat.db"),
		AssistantURL:   getEnv("ASSISTANT_URL", "http://localhost:3000"),
		PrototypeURL:   getEnv("PROTOTYPE_URL", "http://localhost:3000"),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 60*time.Second),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 60*time.Minute),
		IdleInterval:   getEnvDuration("SESSION_IDLE_INTERVAL", time.Minute),
		ProfilePath:    getEnv("CHAT_PROFILE_PATH", ""),
		Timings: TimingsConfig{
			TypingDelay:         getEnvDuration("CHAT_TYPING_DELAY", 500*time.Millisecond),
			RevealDelay:         getEnvDuration("CHAT_REVEAL_DELAY", time.Second),
			SatisfactionDismiss: getEnvDuration("CHAT_SATISFACTION_DISMISS", 800*time.Millisecond),
			SatisfactionReshow:  getEnvDuration("CHAT_SATISFACTION_RESHOW", 500*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 5),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AssistantURL == "" {
		return fmt.Errorf("ASSISTANT_URL cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0")
	}
	if c.IdleInterval <= 0 {
		return fmt.Errorf("SESSION_IDLE_INTERVAL must be > 0")
	}
	if c.Timings.TypingDelay < 0 || c.Timings.RevealDelay < 0 ||
		c.Timings.SatisfactionDismiss < 0 || c.Timings.SatisfactionReshow < 0 {
		return fmt.Errorf("chat delays cannot be negative")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("750ms") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

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
	Port           string
	AllowedOrigins []string
	DBPath         string

	RateLimit RateLimitConfig
	Captcha   CaptchaConfig
	Stream    StreamConfig
	OpenAI    OpenAIConfig
	Handover  HandoverConfig
}

// RateLimitConfig tunes the per-tenant per-IP limiter.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstLimit        int
	SweepInterval     time.Duration
}

// CaptchaConfig tunes challenge lifetime and cleanup.
type CaptchaConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// StreamConfig tunes SSE reply pacing.
type StreamConfig struct {
	TokenDelay  time.Duration
	TypingDelay time.Duration
}

// OpenAIConfig selects the optional OpenAI passthrough generator. An empty
// APIKey keeps the built-in template generator.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// HandoverConfig tunes human-agent handover tokens and mail dispatch.
type HandoverConfig struct {
	TokenTTL     time.Duration
	MailEndpoint string
	MailAPIKey   string
	MailFrom     string
	AgentEmail   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "")),
		DBPath:         getEnv("DB_PATH", "./data/babbelbox.db"),
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
			BurstLimit:        getEnvInt("RATE_LIMIT_BURST", 5),
			SweepInterval:     getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
		Captcha: CaptchaConfig{
			TTL:           getEnvDuration("CAPTCHA_TTL", 5*time.Minute),
			SweepInterval: getEnvDuration("CAPTCHA_SWEEP_INTERVAL", time.Minute),
		},
		Stream: StreamConfig{
			TokenDelay:  getEnvDuration("STREAM_TOKEN_DELAY", 40*time.Millisecond),
			TypingDelay: getEnvDuration("STREAM_TYPING_DELAY", 300*time.Millisecond),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", ""),
		},
		Handover: HandoverConfig{
			TokenTTL:     getEnvDuration("HANDOVER_TOKEN_TTL", 30*time.Minute),
			MailEndpoint: getEnv("HANDOVER_MAIL_ENDPOINT", ""),
			MailAPIKey:   getEnv("HANDOVER_MAIL_API_KEY", ""),
			MailFrom:     getEnv("HANDOVER_MAIL_FROM", "handover@babbelbox.local"),
			AgentEmail:   getEnv("HANDOVER_AGENT_EMAIL", ""),
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
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.RateLimit.BurstLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0")
	}
	if c.RateLimit.BurstLimit > c.RateLimit.RequestsPerMinute {
		return fmt.Errorf("RATE_LIMIT_BURST cannot exceed RATE_LIMIT_PER_MINUTE")
	}
	if c.Captcha.TTL <= 0 {
		return fmt.Errorf("CAPTCHA_TTL must be > 0")
	}
	if c.Handover.MailEndpoint != "" && c.Handover.MailAPIKey == "" {
		return fmt.Errorf("HANDOVER_MAIL_API_KEY is required when HANDOVER_MAIL_ENDPOINT is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, origin := range c.AllowedOrigins {
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
	}
	return false
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

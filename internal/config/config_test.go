package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("RequestsPerMinute = %d, want 30", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.RateLimit.BurstLimit != 5 {
		t.Errorf("BurstLimit = %d, want 5", cfg.RateLimit.BurstLimit)
	}
	if cfg.Captcha.TTL != 5*time.Minute {
		t.Errorf("Captcha TTL = %v, want 5m", cfg.Captcha.TTL)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment = false with no origins configured")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.nl, https://www.example.nl")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "60")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("STREAM_TOKEN_DELAY", "5ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://shop.example.nl" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimit.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want 60", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Stream.TokenDelay != 5*time.Millisecond {
		t.Errorf("TokenDelay = %v, want 5ms", cfg.Stream.TokenDelay)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment = true with production origins")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "50")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted burst limit above per-minute limit")
	}
}

func TestMailEndpointRequiresAPIKey(t *testing.T) {
	t.Setenv("HANDOVER_MAIL_ENDPOINT", "https://mail.example.com/send")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted mail endpoint without API key")
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("CAPTCHA_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Captcha.TTL != 5*time.Minute {
		t.Errorf("Captcha TTL = %v, want fallback 5m", cfg.Captcha.TTL)
	}
}

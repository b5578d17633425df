package config

import (
	"testing"
	"time"
)

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		strategy string
		key      string
	}{
		{"no credential", Config{MarketProvider: ProviderAuto}, ProviderNone, ""},
		{"openrouter key shape", Config{MarketProvider: ProviderAuto, APIKey: "sk-or-v1-abc"}, ProviderOpenRouter, "sk-or-v1-abc"},
		{"gemini key shape", Config{MarketProvider: ProviderAuto, APIKey: "AIzaSyExample"}, ProviderGemini, "AIzaSyExample"},
		{"dedicated openrouter key", Config{MarketProvider: ProviderAuto, OpenRouterAPIKey: "or-key", GeminiAPIKey: "g-key"}, ProviderOpenRouter, "or-key"},
		{"dedicated gemini key", Config{GeminiAPIKey: "g-key"}, ProviderGemini, "g-key"},
		{"forced gemini with generic key", Config{MarketProvider: "Gemini", APIKey: "sk-or-v1-abc"}, ProviderGemini, "sk-or-v1-abc"},
		{"forced openrouter without key", Config{MarketProvider: ProviderOpenRouter, GeminiAPIKey: "g-key"}, ProviderNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.ResolveProvider()
			if got.Strategy != tt.strategy {
				t.Errorf("strategy = %q, want %q", got.Strategy, tt.strategy)
			}
			if got.APIKey != tt.key {
				t.Errorf("key = %q, want %q", got.APIKey, tt.key)
			}
		})
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("GMAIL_USER", "radar@example.com")
	t.Setenv("SMTP_PASSWORD", "app-password")
	t.Setenv("ALERT_RECIPIENT_EMAIL", "alerts@example.com")
	t.Setenv("SCAN_TIMEOUT", "45")
	t.Setenv("SCAN_INTERVAL", "30m")
	t.Setenv("CACHE_TTL", "not-a-duration")
	t.Setenv("NOTIFY_SUBSCRIBERS", "false")

	cfg := LoadConfig()

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if !cfg.EmailConfigured() {
		t.Error("expected email to be configured from GMAIL_USER/SMTP_PASSWORD")
	}
	if cfg.Settings.Scan.Timeout != 45*time.Second {
		t.Errorf("Scan.Timeout = %s", cfg.Settings.Scan.Timeout)
	}
	if cfg.Settings.Scan.Interval != 30*time.Minute {
		t.Errorf("Scan.Interval = %s", cfg.Settings.Scan.Interval)
	}
	if cfg.Settings.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("Cache.DefaultTTL = %s, want default on invalid input", cfg.Settings.Cache.DefaultTTL)
	}
	if cfg.Settings.Email.NotifySubscribers {
		t.Error("NOTIFY_SUBSCRIBERS=false was ignored")
	}
}

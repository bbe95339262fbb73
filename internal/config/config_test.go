package config

import (
	"testing"
	"time"
)

// TestLoad_Defaults empty environment falls back to development defaults
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"RELAY_HTTP_URL", "RELAY_WS_URL", "RECONNECT_DELAY_MS", "SERVER_PORT", "ENV", "ALLOWED_ORIGINS", "DB_HOST", "DB_PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.RelayHTTPURL != "http://127.0.0.1:8000" {
		t.Errorf("Expected default relay HTTP URL, got %q", cfg.RelayHTTPURL)
	}
	if cfg.RelayWSURL != "ws://127.0.0.1:8000" {
		t.Errorf("Expected default relay WS URL, got %q", cfg.RelayWSURL)
	}
	if cfg.ReconnectDelay != 3000*time.Millisecond {
		t.Errorf("Expected 3s reconnect delay, got %v", cfg.ReconnectDelay)
	}
	if cfg.ServerPort != "8000" {
		t.Errorf("Expected default port 8000, got %q", cfg.ServerPort)
	}
	if cfg.Env != "development" {
		t.Errorf("Expected development env, got %q", cfg.Env)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 default origins, got %v", cfg.AllowedOrigins)
	}
}

// TestLoad_Overrides environment variables win over defaults
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RELAY_HTTP_URL", "https://relay.example.com")
	t.Setenv("RECONNECT_DELAY_MS", "250")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com , https://admin.example.com")

	cfg := Load()

	if cfg.RelayHTTPURL != "https://relay.example.com" {
		t.Errorf("Expected overridden relay URL, got %q", cfg.RelayHTTPURL)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms reconnect delay, got %v", cfg.ReconnectDelay)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("Expected trimmed origins, got %v", cfg.AllowedOrigins)
	}
}

// TestLoad_BadReconnectDelay non-numeric delay falls back to the default
func TestLoad_BadReconnectDelay(t *testing.T) {
	t.Setenv("RECONNECT_DELAY_MS", "soon")

	cfg := Load()

	if cfg.ReconnectDelay != 3000*time.Millisecond {
		t.Errorf("Expected default reconnect delay, got %v", cfg.ReconnectDelay)
	}
}

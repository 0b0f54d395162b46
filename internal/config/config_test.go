package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.Provider != "anthropic" {
		t.Fatalf("expected anthropic default provider, got %q", cfg.Provider)
	}
	if cfg.AgentHistoryWindow != 10 || cfg.AgentMaxToolRounds != 8 {
		t.Fatalf("unexpected agent defaults: window=%d rounds=%d", cfg.AgentHistoryWindow, cfg.AgentMaxToolRounds)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("expected 1m rate limit window, got %v", cfg.RateLimitWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_MAX_TOKENS", "2048")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("AGENT_MAX_TOOL_ROUNDS", "3")
	t.Setenv("SERVER_WRITE_TIMEOUT", "10m")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	if cfg.ServerPort != "9999" {
		t.Fatalf("expected overridden port, got %q", cfg.ServerPort)
	}
	if cfg.Provider != "openai" {
		t.Fatalf("expected openai provider, got %q", cfg.Provider)
	}
	if cfg.MaxTokens != 2048 || cfg.Temperature != 0.2 {
		t.Fatalf("unexpected llm overrides: tokens=%d temp=%v", cfg.MaxTokens, cfg.Temperature)
	}
	if cfg.AgentMaxToolRounds != 3 {
		t.Fatalf("expected 3 tool rounds, got %d", cfg.AgentMaxToolRounds)
	}
	if cfg.ServerWriteTimeout != 10*time.Minute {
		t.Fatalf("expected 10m write timeout, got %v", cfg.ServerWriteTimeout)
	}
	if !cfg.TracingEnabled {
		t.Fatal("expected tracing enabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg := Load()

	if cfg.MaxTokens != 4096 {
		t.Fatalf("malformed int must fall back to default, got %d", cfg.MaxTokens)
	}
	if cfg.ServerReadTimeout != 30*time.Second {
		t.Fatalf("malformed duration must fall back to default, got %v", cfg.ServerReadTimeout)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "general": {"debug": true, "log_level": "debug"},
	  "llm": {
	    "providers": {
	      "openai": {"type": "openai", "api_key": "k", "models": {"planner": {"name": "gpt-4o"}}}
	    },
	    "routing": {"planning": "planner", "fallback": "planner"}
	  },
	  "planner": {"max_retries": 5, "retry_delay": "1s", "cache_ttl": "10m"},
	  "cache": {"host": "localhost", "port": "6379"},
	  "telemetry": {"enabled": true, "metrics_port": 9090}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := LoadConfig(path)

	if !cfg.General.Debug {
		t.Fatalf("general.debug not loaded")
	}
	if cfg.LLM.Routing.Planning != "planner" {
		t.Fatalf("routing.planning = %q", cfg.LLM.Routing.Planning)
	}
	if cfg.Planner.MaxRetries != 5 {
		t.Fatalf("planner.max_retries = %d", cfg.Planner.MaxRetries)
	}
	if cfg.Planner.RetryDelay != time.Second {
		t.Fatalf("planner.retry_delay = %v", cfg.Planner.RetryDelay)
	}
	if cfg.Planner.CacheTTL != 10*time.Minute {
		t.Fatalf("planner.cache_ttl = %v", cfg.Planner.CacheTTL)
	}
	// Unset values take normalized defaults.
	if cfg.Planner.MaxMemorySize != 50 {
		t.Fatalf("planner.max_memory_size default = %d", cfg.Planner.MaxMemorySize)
	}
	if cfg.Telemetry.MetricsPort != 9090 {
		t.Fatalf("telemetry.metrics_port = %d", cfg.Telemetry.MetricsPort)
	}
}

func TestPlannerNormalize(t *testing.T) {
	p := PlannerConfig{}.Normalize()
	if p.MaxRetries != 3 || p.RetryDelay != 2*time.Second || p.CacheTTL != 30*time.Minute || p.MaxMemorySize != 50 {
		t.Fatalf("defaults not applied: %+v", p)
	}

	p = PlannerConfig{MaxRetries: 7}.Normalize()
	if p.MaxRetries != 7 {
		t.Fatalf("explicit value overwritten: %+v", p)
	}
}

func TestCacheValidate(t *testing.T) {
	if err := (CacheConfig{Host: "localhost", Port: "6379"}).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := (CacheConfig{Port: "6379"}).Validate(); err == nil {
		t.Fatalf("missing host accepted")
	}
	if err := (CacheConfig{Host: "localhost"}).Validate(); err == nil {
		t.Fatalf("missing port accepted")
	}
}

func TestTelemetryValidate(t *testing.T) {
	if err := (TelemetryConfig{Enabled: true}).Validate(); err == nil {
		t.Fatalf("enabled telemetry without port accepted")
	}
	if err := (TelemetryConfig{Enabled: false}).Validate(); err != nil {
		t.Fatalf("disabled telemetry rejected: %v", err)
	}
}

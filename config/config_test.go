package config_test

import (
	"testing"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dashstreaming/gasoradar3/config"
)

func TestApplyDefaults(t *testing.T) {
	var cfg config.GateConfig
	cfg.ApplyDefaults()

	if cfg.RateLimits.Backend != config.InMemory {
		t.Fatalf("expected in_memory default backend, got %q", cfg.RateLimits.Backend)
	}
	if cfg.RateLimits.PriceReports.Limit != 3 || cfg.RateLimits.PriceReports.Window.Std() != time.Hour {
		t.Fatalf("unexpected price report defaults: %+v", cfg.RateLimits.PriceReports)
	}
	if cfg.RateLimits.Reviews.Limit != 2 || cfg.RateLimits.Reviews.Window.Std() != 24*time.Hour {
		t.Fatalf("unexpected review defaults: %+v", cfg.RateLimits.Reviews)
	}
	if cfg.Validation.TolerancePercent != 15.0 || cfg.Validation.MinSamples != 5 || cfg.Validation.FreshnessDays != 30 {
		t.Fatalf("unexpected validation defaults: %+v", cfg.Validation)
	}
	if cfg.Attestation.Timeout.Std() != 10*time.Second {
		t.Fatalf("unexpected attestation timeout default: %v", cfg.Attestation.Timeout)
	}
	r, ok := cfg.Validation.FallbackRanges["magna"]
	if !ok || r.Min != 15.0 || r.Max != 35.0 {
		t.Fatalf("unexpected magna fallback range: %+v", r)
	}
}

func TestUnmarshalDurationsAndRanges(t *testing.T) {
	raw := `
rate_limits:
  backend: redis
  redis_params:
    address: localhost:6379
  price_reports:
    limit: 5
    window: 30m
validation:
  fallback_ranges:
    diesel: {min: 16.0, max: 38.0}
`
	var cfg config.GateConfig
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.RateLimits.PriceReports.Window.Std() != 30*time.Minute {
		t.Fatalf("expected 30m window, got %v", cfg.RateLimits.PriceReports.Window.Std())
	}
	if cfg.RateLimits.PriceReports.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", cfg.RateLimits.PriceReports.Limit)
	}
	// Unset categories still get defaults.
	if cfg.RateLimits.Reviews.Window.Std() != 24*time.Hour {
		t.Fatalf("expected default review window, got %v", cfg.RateLimits.Reviews.Window.Std())
	}
	if r := cfg.Validation.FallbackRanges["diesel"]; r.Min != 16.0 || r.Max != 38.0 {
		t.Fatalf("unexpected diesel range: %+v", r)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestUnmarshalInvalidDuration(t *testing.T) {
	raw := `
rate_limits:
  price_reports:
    window: soon
`
	var cfg config.GateConfig
	if err := yaml.Unmarshal([]byte(raw), &cfg); err == nil {
		t.Fatal("expected an error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	t.Run("RedisWithoutParams", func(t *testing.T) {
		var cfg config.GateConfig
		cfg.ApplyDefaults()
		cfg.RateLimits.Backend = config.Redis
		cfg.RateLimits.RedisParams = nil
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error for redis backend without params")
		}
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		var cfg config.GateConfig
		cfg.ApplyDefaults()
		cfg.RateLimits.Backend = "etcd"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error for unknown backend")
		}
	})
}

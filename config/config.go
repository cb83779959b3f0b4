// Package config holds the configuration types for the admission gate.
package config

import (
	"fmt"
	"time"
)

// BackendType represents the rate-limit window storage backend.
type BackendType string

const (
	InMemory BackendType = "in_memory"
	Redis    BackendType = "redis"
	Memcache BackendType = "memcache"
)

// Duration wraps time.Duration so windows can be written as "1h" or "24h"
// in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// WindowConfig holds the parameters of one sliding-window policy.
type WindowConfig struct {
	Window Duration `yaml:"window"`
	Limit  int64    `yaml:"limit"`
}

// RedisBackendConfig holds parameters for the Redis backend.
type RedisBackendConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// MemcacheBackendConfig holds parameters for the Memcache backend.
type MemcacheBackendConfig struct {
	Addresses []string `yaml:"addresses"`
}

// RateLimitsConfig selects the window backend and the per-category policies.
type RateLimitsConfig struct {
	Backend        BackendType            `yaml:"backend"`
	RedisParams    *RedisBackendConfig    `yaml:"redis_params,omitempty"`
	MemcacheParams *MemcacheBackendConfig `yaml:"memcache_params,omitempty"`

	PriceReports WindowConfig `yaml:"price_reports"`
	Reviews      WindowConfig `yaml:"reviews"`
}

// AttestationConfig configures the outbound human-verification call.
// An empty Secret switches the verifier into bypass mode.
type AttestationConfig struct {
	Secret    string   `yaml:"secret"`
	VerifyURL string   `yaml:"verify_url"`
	Timeout   Duration `yaml:"timeout"`
}

// PriceRange is a static fallback price interval for one fuel type.
type PriceRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ValidationConfig configures the market-band price check.
type ValidationConfig struct {
	TolerancePercent float64               `yaml:"tolerance_percent"`
	MinSamples       int                   `yaml:"min_samples"`
	FreshnessDays    int                   `yaml:"freshness_days"`
	FallbackRanges   map[string]PriceRange `yaml:"fallback_ranges"`
}

// DatabaseConfig points at the price-sample store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// GateConfig is the top-level configuration for the admission gate.
type GateConfig struct {
	Attestation AttestationConfig `yaml:"attestation"`
	RateLimits  RateLimitsConfig  `yaml:"rate_limits"`
	Validation  ValidationConfig  `yaml:"validation"`
	Database    DatabaseConfig    `yaml:"database"`
}

// ApplyDefaults fills unset options with the stock policy: 3 price reports
// per hour, 2 reviews per day, 15% tolerance over at least 5 samples no
// older than 30 days, and the known fuel-type fallback ranges.
func (c *GateConfig) ApplyDefaults() {
	if c.RateLimits.Backend == "" {
		c.RateLimits.Backend = InMemory
	}
	if c.RateLimits.PriceReports.Limit == 0 {
		c.RateLimits.PriceReports.Limit = 3
	}
	if c.RateLimits.PriceReports.Window == 0 {
		c.RateLimits.PriceReports.Window = Duration(time.Hour)
	}
	if c.RateLimits.Reviews.Limit == 0 {
		c.RateLimits.Reviews.Limit = 2
	}
	if c.RateLimits.Reviews.Window == 0 {
		c.RateLimits.Reviews.Window = Duration(24 * time.Hour)
	}
	if c.Attestation.VerifyURL == "" {
		c.Attestation.VerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	}
	if c.Attestation.Timeout == 0 {
		c.Attestation.Timeout = Duration(10 * time.Second)
	}
	if c.Validation.TolerancePercent == 0 {
		c.Validation.TolerancePercent = 15.0
	}
	if c.Validation.MinSamples == 0 {
		c.Validation.MinSamples = 5
	}
	if c.Validation.FreshnessDays == 0 {
		c.Validation.FreshnessDays = 30
	}
	if c.Validation.FallbackRanges == nil {
		c.Validation.FallbackRanges = map[string]PriceRange{
			"magna":   {Min: 15.0, Max: 35.0},
			"premium": {Min: 18.0, Max: 40.0},
			"diesel":  {Min: 16.0, Max: 38.0},
		}
	}
}

// Validate rejects configurations the gate cannot run with.
func (c *GateConfig) Validate() error {
	switch c.RateLimits.Backend {
	case InMemory:
	case Redis:
		if c.RateLimits.RedisParams == nil {
			return fmt.Errorf("redis backend selected but redis_params are missing")
		}
	case Memcache:
		if c.RateLimits.MemcacheParams == nil || len(c.RateLimits.MemcacheParams.Addresses) == 0 {
			return fmt.Errorf("memcache backend selected but memcache_params are missing")
		}
	default:
		return fmt.Errorf("unsupported rate limit backend %q", c.RateLimits.Backend)
	}
	if c.RateLimits.PriceReports.Limit < 0 || c.RateLimits.Reviews.Limit < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.Validation.TolerancePercent < 0 {
		return fmt.Errorf("tolerance_percent must not be negative")
	}
	return nil
}

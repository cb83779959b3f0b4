// Package api assembles the admission pipeline: attestation, rate limiting
// and content validation, in that order, built from a single YAML config.
package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	apiinternal "github.com/dashstreaming/gasoradar3/api/internal"
	"github.com/dashstreaming/gasoradar3/config"
	"github.com/dashstreaming/gasoradar3/internal/attestation"
	"github.com/dashstreaming/gasoradar3/internal/pricecheck"
	pgstore "github.com/dashstreaming/gasoradar3/internal/pricestore/postgres"
	"github.com/dashstreaming/gasoradar3/types"
)

// Gateway bundles the assembled pipeline with the read-side price store the
// surrounding handlers use. Store is nil when no database is configured.
type Gateway struct {
	Pipeline *Pipeline
	Store    *pgstore.Store
	Config   *config.GateConfig
}

// clientCloser holds backend clients and implements io.Closer.
type clientCloser struct {
	clients types.BackendClients
}

// Close gracefully shuts down all initialized backend clients.
func (c *clientCloser) Close() error {
	log.Info().Msg("API: starting backend client shutdown")
	var errs []error

	if c.clients.RedisClient != nil {
		if err := c.clients.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis client: %w", err))
			log.Error().Err(err).Msg("API: error closing Redis client")
		}
	}
	// gomemcache clients hold no long-lived connections worth closing.
	if c.clients.PGPool != nil {
		c.clients.PGPool.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during client shutdown: %v", errs)
	}
	log.Info().Msg("API: backend client shutdown complete")
	return nil
}

// NewGatewayFromConfigPath loads config, initializes any needed backend
// clients, and returns the assembled gateway plus an io.Closer for the
// clients.
func NewGatewayFromConfigPath(configPath string) (*Gateway, io.Closer, error) {
	cfg, err := apiinternal.LoadConfig(configPath)
	if err != nil {
		log.Error().Err(err).Str("config_path", configPath).Msg("API: error loading configuration")
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return NewGateway(cfg)
}

// NewGateway assembles the pipeline from an already-loaded configuration.
func NewGateway(cfg *config.GateConfig) (*Gateway, io.Closer, error) {
	clients := types.BackendClients{}

	switch cfg.RateLimits.Backend {
	case config.Redis:
		client, err := apiinternal.InitRedisClient(cfg.RateLimits.RedisParams)
		if err != nil {
			return nil, nil, err
		}
		clients.RedisClient = client
	case config.Memcache:
		client, err := apiinternal.InitMemcacheClient(cfg.RateLimits.MemcacheParams)
		if err != nil {
			return nil, nil, err
		}
		clients.MemcacheClient = client
	}

	closer := &clientCloser{clients: clients}

	var store *pgstore.Store
	if cfg.Database.URL != "" {
		var err error
		store, err = pgstore.Connect(context.Background(), cfg.Database.URL)
		if err != nil {
			closer.Close()
			return nil, nil, fmt.Errorf("failed to connect price store: %w", err)
		}
		closer.clients.PGPool = store.Pool()
	} else {
		log.Warn().Msg("API: no database configured, price validation uses fallback ranges only")
	}

	priceLimiter, err := newWindowLimiter(string(types.KindPriceReport), cfg.RateLimits.PriceReports, cfg.RateLimits.Backend, clients)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("failed to create price report limiter: %w", err)
	}
	reviewLimiter, err := newWindowLimiter(string(types.KindReview), cfg.RateLimits.Reviews, cfg.RateLimits.Backend, clients)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("failed to create review limiter: %w", err)
	}

	verifier := attestation.NewVerifier(cfg.Attestation.Secret, cfg.Attestation.VerifyURL, cfg.Attestation.Timeout.Std())

	fallback := make(map[string]pricecheck.Range, len(cfg.Validation.FallbackRanges))
	for fuel, r := range cfg.Validation.FallbackRanges {
		fallback[fuel] = pricecheck.Range{Min: r.Min, Max: r.Max}
	}
	var source pricecheck.SampleSource
	if store != nil {
		source = store
	}
	validator := pricecheck.NewValidator(
		source,
		cfg.Validation.TolerancePercent/100.0,
		cfg.Validation.MinSamples,
		time.Duration(cfg.Validation.FreshnessDays)*24*time.Hour,
		fallback,
	)

	pipeline := NewPipeline(
		NewAttestationGate(verifier),
		NewRateGate(map[types.Kind]KindLimiter{
			types.KindPriceReport: {Limiter: priceLimiter, Noun: "price reports", Window: windowLabel(cfg.RateLimits.PriceReports.Window.Std())},
			types.KindReview:      {Limiter: reviewLimiter, Noun: "reviews", Window: windowLabel(cfg.RateLimits.Reviews.Window.Std())},
		}),
		NewContentGate(validator),
	)

	log.Info().Str("backend", string(cfg.RateLimits.Backend)).Msg("API: admission pipeline initialized")
	return &Gateway{Pipeline: pipeline, Store: store, Config: cfg}, closer, nil
}

// windowLabel renders a window duration for rejection messages.
func windowLabel(d time.Duration) string {
	switch d {
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	default:
		return d.String()
	}
}

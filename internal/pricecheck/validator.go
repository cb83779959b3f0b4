// Package pricecheck validates reported prices against recent market data,
// falling back to static per-fuel-type ranges when data is sparse.
package pricecheck

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/types"
)

// SampleSource reads previously validated price samples. Implementations
// must tolerate unlimited concurrent readers; the validator never writes.
type SampleSource interface {
	// RecentValidated returns the prices of validated samples for fuelType
	// created at or after since, optionally restricted to region.
	RecentValidated(ctx context.Context, fuelType, region string, since time.Time) ([]float64, error)
}

// Range is a static acceptable price interval.
type Range struct {
	Min float64
	Max float64
}

// Validator computes the acceptable band for a reported price.
type Validator struct {
	source     SampleSource
	tolerance  float64 // fraction of the mean, e.g. 0.15
	minSamples int
	freshness  time.Duration
	fallback   map[string]Range
	nowFunc    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets a custom clock (nowFunc) for the Validator.
func WithClock(nowFunc func() time.Time) Option {
	return func(v *Validator) {
		v.nowFunc = nowFunc
	}
}

// NewValidator creates a Validator. tolerance is a fraction of the market
// mean. source may be nil, in which case every check uses the fallback table.
func NewValidator(source SampleSource, tolerance float64, minSamples int, freshness time.Duration, fallback map[string]Range, opts ...Option) *Validator {
	v := &Validator{
		source:     source,
		tolerance:  tolerance,
		minSamples: minSamples,
		freshness:  freshness,
		fallback:   fallback,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if source == nil {
		log.Warn().Msg("Price validator: no sample source configured, all checks use fallback ranges")
	}
	return v
}

// Validate checks price against the market band for fuelType, optionally
// restricted to region. When fewer than minSamples fresh samples exist, or
// the sample source fails, the static fallback range applies. The returned
// message is safe to surface to the end user; the band carries diagnostics.
func (v *Validator) Validate(ctx context.Context, fuelType string, price float64, region string) (bool, string, *types.Band) {
	fuelType = strings.ToLower(fuelType)

	if v.source == nil {
		return v.validateWithFallback(fuelType, price)
	}

	since := v.nowFunc().Add(-v.freshness)
	samples, err := v.source.RecentValidated(ctx, fuelType, region, since)
	if err != nil {
		log.Error().Err(err).Str("fuel_type", fuelType).Msg("Price validator: sample query failed, using fallback range")
		return v.validateWithFallback(fuelType, price)
	}

	if len(samples) < v.minSamples {
		log.Info().Str("fuel_type", fuelType).Int("samples", len(samples)).Int("min_samples", v.minSamples).Msg("Price validator: insufficient market data, using fallback range")
		return v.validateWithFallback(fuelType, price)
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	avg := sum / float64(len(samples))
	band := &types.Band{
		Basis:   types.BasisMarket,
		Average: round2(avg),
		Min:     round2(avg * (1 - v.tolerance)),
		Max:     round2(avg * (1 + v.tolerance)),
		Samples: len(samples),
	}

	// Inclusive on both bounds, against the unrounded band.
	minValid := avg * (1 - v.tolerance)
	maxValid := avg * (1 + v.tolerance)
	if minValid <= price && price <= maxValid {
		return true, "price within market range", band
	}
	return false, fmt.Sprintf("price outside valid range ($%.2f - $%.2f)", minValid, maxValid), band
}

// validateWithFallback applies the static range table. An unknown fuel type
// passes with a note rather than rejecting; new fuel types show up in the
// field before anyone adds a range for them.
func (v *Validator) validateWithFallback(fuelType string, price float64) (bool, string, *types.Band) {
	r, ok := v.fallback[fuelType]
	if !ok {
		return true, "no price bounds configured for this fuel type", nil
	}

	band := &types.Band{
		Basis: types.BasisFallback,
		Min:   r.Min,
		Max:   r.Max,
	}
	if r.Min <= price && price <= r.Max {
		return true, "price accepted (fallback range)", band
	}
	return false, fmt.Sprintf("price outside fallback range ($%.2f - $%.2f)", r.Min, r.Max), band
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

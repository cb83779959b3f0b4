// Package types defines common types and interfaces used throughout the admission gate.
package types

import (
	"context"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind identifies the class of an inbound submission.
type Kind string

const (
	KindPriceReport Kind = "price_report"
	KindReview      Kind = "review"
)

// Submission is an inbound crowdsourced report awaiting admission.
// Identity is the requesting client's network address and partitions
// the rate-limit windows.
type Submission struct {
	ID               string
	Kind             Kind
	Identity         string
	AttestationToken string

	// Price report fields.
	StationID     string
	FuelType      string
	ReportedPrice float64
	Region        string

	// Review fields.
	ReviewerName string
	Comment      string
	Rating       int
}

// BandBasis reports how a price band was derived.
type BandBasis string

const (
	BasisMarket   BandBasis = "market"
	BasisFallback BandBasis = "fallback"
)

// Band is the acceptable price interval a report was checked against.
type Band struct {
	Basis   BandBasis `json:"basis"`
	Average float64   `json:"market_average,omitempty"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Samples int       `json:"samples_count,omitempty"`
}

// Decision is the outcome of evaluating a submission against one gate,
// or against the whole pipeline. Reason is safe to return to the end user.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Gate     string `json:"gate,omitempty"`
	Band     *Band  `json:"band,omitempty"`
}

// Gate is one independent admission check. A rejecting gate must not leave
// partially recorded state behind; in particular a rejected rate-limit check
// never records an event.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, sub *Submission) Decision
}

// BackendClients holds initialized backend client instances.
type BackendClients struct {
	RedisClient    *redis.Client
	MemcacheClient *memcache.Client
	PGPool         *pgxpool.Pool
}

package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/internal/attestation"
	"github.com/dashstreaming/gasoradar3/internal/pricecheck"
	"github.com/dashstreaming/gasoradar3/internal/ratewindow"
	"github.com/dashstreaming/gasoradar3/types"
)

// Gate names, also used as metric labels.
const (
	GateAttestation = "attestation"
	GateRateLimit   = "rate_limit"
	GateContent     = "content"
)

// AttestationGate rejects submissions whose human-attestation token does not
// verify. It runs first so that unverified traffic never consumes a
// rate-limit slot.
type AttestationGate struct {
	verifier *attestation.Verifier
}

// NewAttestationGate wraps a verifier as a pipeline gate.
func NewAttestationGate(verifier *attestation.Verifier) *AttestationGate {
	return &AttestationGate{verifier: verifier}
}

func (g *AttestationGate) Name() string { return GateAttestation }

func (g *AttestationGate) Evaluate(ctx context.Context, sub *types.Submission) types.Decision {
	ok, msg := g.verifier.Verify(ctx, sub.AttestationToken, sub.Identity)
	return types.Decision{Accepted: ok, Reason: msg, Gate: GateAttestation}
}

// KindLimiter binds one window limiter to a submission kind, with the noun
// used in rejection messages ("price reports", "reviews").
type KindLimiter struct {
	Limiter ratewindow.Limiter
	Noun    string
	Window  string // human-readable window, e.g. "hour" or "day"
}

// RateGate consumes one sliding-window slot per admitted submission. A
// backend error fails closed.
type RateGate struct {
	limiters map[types.Kind]KindLimiter
}

// NewRateGate creates a RateGate over per-kind limiters.
func NewRateGate(limiters map[types.Kind]KindLimiter) *RateGate {
	return &RateGate{limiters: limiters}
}

func (g *RateGate) Name() string { return GateRateLimit }

func (g *RateGate) Evaluate(ctx context.Context, sub *types.Submission) types.Decision {
	kl, ok := g.limiters[sub.Kind]
	if !ok {
		log.Error().Str("kind", string(sub.Kind)).Msg("Rate gate: no limiter configured for submission kind")
		return types.Decision{Accepted: false, Reason: "unsupported submission kind", Gate: GateRateLimit}
	}

	res, err := kl.Limiter.CheckAndRecord(ctx, sub.Identity)
	if err != nil {
		log.Error().Err(err).Str("kind", string(sub.Kind)).Str("identity", sub.Identity).Msg("Rate gate: limiter backend error")
		return types.Decision{Accepted: false, Reason: "could not check submission rate", Gate: GateRateLimit}
	}

	if !res.Allowed {
		reason := fmt.Sprintf("rate limit exceeded: %d/%d %s per %s", res.Count, res.Limit, kl.Noun, kl.Window)
		return types.Decision{Accepted: false, Reason: reason, Gate: GateRateLimit}
	}
	return types.Decision{Accepted: true, Reason: "rate limit ok", Gate: GateRateLimit}
}

// ContentGate runs the kind-specific plausibility check: the market price
// band for price reports, basic field checks for reviews. It runs last, so a
// submission it rejects has already consumed a rate-limit slot; repeated
// implausible submissions still exhaust the sender's quota.
type ContentGate struct {
	validator *pricecheck.Validator
}

// NewContentGate creates a ContentGate over a price validator.
func NewContentGate(validator *pricecheck.Validator) *ContentGate {
	return &ContentGate{validator: validator}
}

func (g *ContentGate) Name() string { return GateContent }

func (g *ContentGate) Evaluate(ctx context.Context, sub *types.Submission) types.Decision {
	switch sub.Kind {
	case types.KindPriceReport:
		ok, msg, band := g.validator.Validate(ctx, sub.FuelType, sub.ReportedPrice, sub.Region)
		return types.Decision{Accepted: ok, Reason: msg, Gate: GateContent, Band: band}
	case types.KindReview:
		return evaluateReview(sub)
	default:
		log.Error().Str("kind", string(sub.Kind)).Msg("Content gate: unsupported submission kind")
		return types.Decision{Accepted: false, Reason: "unsupported submission kind", Gate: GateContent}
	}
}

func evaluateReview(sub *types.Submission) types.Decision {
	if len(strings.TrimSpace(sub.ReviewerName)) < 2 {
		return types.Decision{Accepted: false, Reason: "reviewer name too short (minimum 2 characters)", Gate: GateContent}
	}
	if len(strings.TrimSpace(sub.Comment)) < 10 {
		return types.Decision{Accepted: false, Reason: "comment too short (minimum 10 characters)", Gate: GateContent}
	}
	if sub.Rating < 1 || sub.Rating > 5 {
		return types.Decision{Accepted: false, Reason: "rating must be between 1 and 5", Gate: GateContent}
	}
	return types.Decision{Accepted: true, Reason: "review content ok", Gate: GateContent}
}

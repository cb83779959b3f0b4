package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/types"
)

// Pipeline evaluates submissions against an ordered list of gates with
// fail-fast semantics: the first rejecting gate terminates evaluation and
// its reason is surfaced verbatim. The order is part of the contract:
// attestation before rate limiting means unverified traffic consumes no
// slot, while content validation after rate limiting means an implausible
// submission has already spent one.
type Pipeline struct {
	gates []types.Gate
}

// NewPipeline creates a Pipeline over gates, evaluated in the given order.
func NewPipeline(gates ...types.Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

// Evaluate runs the submission through every gate until one rejects. The
// returned decision is safe to hand to the request layer as-is.
func (p *Pipeline) Evaluate(ctx context.Context, sub *types.Submission) types.Decision {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	log.Debug().Str("submission_id", sub.ID).Str("kind", string(sub.Kind)).Str("identity", sub.Identity).Msg("Pipeline: submission received")

	for _, gate := range p.gates {
		decision := gate.Evaluate(ctx, sub)
		if !decision.Accepted {
			log.Info().Str("submission_id", sub.ID).Str("kind", string(sub.Kind)).Str("identity", sub.Identity).Str("gate", gate.Name()).Str("reason", decision.Reason).Msg("Pipeline: submission rejected")
			return decision
		}
		log.Debug().Str("submission_id", sub.ID).Str("gate", gate.Name()).Msg("Pipeline: gate passed")
	}

	log.Info().Str("submission_id", sub.ID).Str("kind", string(sub.Kind)).Str("identity", sub.Identity).Msg("Pipeline: submission accepted")
	return types.Decision{Accepted: true, Reason: "all checks passed"}
}

// Package middleware adapts the admission pipeline to HTTP handlers.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/api"
	"github.com/dashstreaming/gasoradar3/metrics"
	"github.com/dashstreaming/gasoradar3/types"
)

// Evaluator is the pipeline capability the middleware needs.
type Evaluator interface {
	Evaluate(ctx context.Context, sub *types.Submission) types.Decision
}

// SubmissionFunc builds a submission from the request. Returning an error
// yields a 400 without touching the pipeline.
type SubmissionFunc func(*http.Request) (*types.Submission, error)

// AdmissionMiddleware guards a handler with the admission pipeline.
type AdmissionMiddleware struct {
	pipeline Evaluator
	metrics  *metrics.AdmissionMetrics
}

// NewAdmissionMiddleware creates an AdmissionMiddleware.
func NewAdmissionMiddleware(pipeline Evaluator, m *metrics.AdmissionMetrics) *AdmissionMiddleware {
	return &AdmissionMiddleware{pipeline: pipeline, metrics: m}
}

// Handle wraps next so it only runs for admitted submissions. Rejections map
// to 429 for rate limiting and 400 for everything else, with the gate's
// reason in the JSON body.
func (m *AdmissionMiddleware) Handle(next http.HandlerFunc, build SubmissionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := build(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, types.Decision{Accepted: false, Reason: err.Error()})
			return
		}
		if sub.Identity == "" {
			log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Admission: could not extract identity for request")
			writeJSON(w, http.StatusBadRequest, types.Decision{Accepted: false, Reason: "could not determine client identity"})
			return
		}

		decision := m.pipeline.Evaluate(r.Context(), sub)
		if m.metrics != nil {
			m.metrics.Record(sub.Kind, decision)
		}

		if !decision.Accepted {
			status := http.StatusBadRequest
			if decision.Gate == api.GateRateLimit {
				status = http.StatusTooManyRequests
			}
			writeJSON(w, status, decision)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSubmission(r.Context(), sub)))
	}
}

type submissionKey struct{}

func withSubmission(ctx context.Context, sub *types.Submission) context.Context {
	return context.WithValue(ctx, submissionKey{}, sub)
}

// SubmissionFromContext returns the admitted submission placed on the
// request context by Handle.
func SubmissionFromContext(ctx context.Context) (*types.Submission, bool) {
	sub, ok := ctx.Value(submissionKey{}).(*types.Submission)
	return sub, ok
}

// ClientIP extracts the client's IP address from the request, checking
// X-Forwarded-For, X-Real-IP and finally RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := sonic.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Admission: failed to marshal response body")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

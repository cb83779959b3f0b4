// Package attestation verifies human-attestation tokens against an external
// verification service. The verifier fails closed: any transport error,
// non-200 status or malformed response rejects the token, with the cause
// logged internally and only a generic reason returned to the caller.
package attestation

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

// minScore is the acceptance threshold for services that report a continuous
// risk score alongside the binary success flag.
const minScore = 0.5

// maxResponseBytes bounds how much of the verify response is read.
const maxResponseBytes = 1 << 20

// Verifier checks attestation tokens. An empty secret switches it into
// bypass mode: every non-empty token is accepted with a warning logged, a
// degraded mode intended for local development.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// verifyResponse is the expected reply shape of the verification service.
type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"`
	ErrorCodes []string `json:"error-codes"`
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		v.client = client
	}
}

// NewVerifier creates a Verifier calling verifyURL with the given secret.
// timeout bounds each outbound call; 10s is the recommended value.
func NewVerifier(secret, verifyURL string, timeout time.Duration, opts ...Option) *Verifier {
	v := &Verifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	if secret == "" {
		log.Warn().Msg("Attestation: secret not configured, verification will be bypassed")
	}
	return v
}

// Verify checks a token, optionally binding it to the client's identity.
// The returned message is safe to surface to the end user.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, string) {
	if token == "" {
		return false, "attestation token required"
	}

	if v.secret == "" {
		log.Warn().Msg("Attestation: secret not configured, bypassing verification")
		return true, "attestation bypassed"
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Error().Err(err).Msg("Attestation: failed to build verify request")
		return false, "could not verify attestation"
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Attestation: verify request failed")
		return false, "could not verify attestation"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Msg("Attestation: verify service returned non-200")
		return false, "could not verify attestation"
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Error().Err(err).Msg("Attestation: failed to read verify response")
		return false, "could not verify attestation"
	}

	var result verifyResponse
	if err := sonic.Unmarshal(body, &result); err != nil {
		log.Error().Err(err).Msg("Attestation: malformed verify response")
		return false, "could not verify attestation"
	}

	if !result.Success {
		log.Warn().Strs("error_codes", result.ErrorCodes).Msg("Attestation: verification failed")
		return false, "attestation invalid"
	}

	if result.Score != nil && *result.Score < minScore {
		log.Warn().Float64("score", *result.Score).Msg("Attestation: score below threshold")
		return false, "attestation score too low"
	}

	if result.Score != nil {
		log.Info().Float64("score", *result.Score).Msg("Attestation: verified")
	} else {
		log.Info().Msg("Attestation: verified")
	}
	return true, "attestation verified"
}

package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dashstreaming/gasoradar3/api"
	"github.com/dashstreaming/gasoradar3/internal/attestation"
	"github.com/dashstreaming/gasoradar3/internal/pricecheck"
	rwinmemory "github.com/dashstreaming/gasoradar3/internal/ratewindow/inmemory"
	"github.com/dashstreaming/gasoradar3/types"
)

// recordingGate notes the order it was called in and returns a fixed decision.
type recordingGate struct {
	name     string
	decision types.Decision
	calls    *[]string
}

func (g *recordingGate) Name() string { return g.name }

func (g *recordingGate) Evaluate(ctx context.Context, sub *types.Submission) types.Decision {
	*g.calls = append(*g.calls, g.name)
	return g.decision
}

func TestPipeline_GateOrderAndFailFast(t *testing.T) {
	var calls []string
	accept := types.Decision{Accepted: true, Reason: "ok"}
	reject := types.Decision{Accepted: false, Reason: "limit exceeded: 3/3", Gate: "second"}

	pipeline := api.NewPipeline(
		&recordingGate{name: "first", decision: accept, calls: &calls},
		&recordingGate{name: "second", decision: reject, calls: &calls},
		&recordingGate{name: "third", decision: accept, calls: &calls},
	)

	decision := pipeline.Evaluate(context.Background(), &types.Submission{Kind: types.KindPriceReport, Identity: "1.2.3.4"})

	require.False(t, decision.Accepted)
	// The failing gate's reason is surfaced verbatim.
	require.Equal(t, "limit exceeded: 3/3", decision.Reason)
	require.Equal(t, "second", decision.Gate)
	require.Equal(t, []string{"first", "second"}, calls, "no gate may run after the first rejection")
}

func TestPipeline_AllGatesPass(t *testing.T) {
	var calls []string
	accept := types.Decision{Accepted: true, Reason: "ok"}
	pipeline := api.NewPipeline(
		&recordingGate{name: "first", decision: accept, calls: &calls},
		&recordingGate{name: "second", decision: accept, calls: &calls},
	)

	sub := &types.Submission{Kind: types.KindReview, Identity: "1.2.3.4"}
	decision := pipeline.Evaluate(context.Background(), sub)

	require.True(t, decision.Accepted)
	require.Equal(t, []string{"first", "second"}, calls)
	require.NotEmpty(t, sub.ID, "the pipeline assigns a submission id")
}

// movableClock is shared by the end-to-end tests below.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMovableClock() *movableClock {
	return &movableClock{now: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// emptySource reports no market samples, forcing the fallback ranges.
type emptySource struct{}

func (emptySource) RecentValidated(ctx context.Context, fuelType, region string, since time.Time) ([]float64, error) {
	return nil, nil
}

// newTestPipeline wires real gates: bypassed attestation, an in-memory
// window of 3 price reports per hour, and fallback-only price validation.
func newTestPipeline(t *testing.T, clock *movableClock) *api.Pipeline {
	t.Helper()
	verifier := attestation.NewVerifier("", "http://unused.invalid", time.Second)
	validator := pricecheck.NewValidator(emptySource{}, 0.15, 5, 30*24*time.Hour, map[string]pricecheck.Range{
		"magna": {Min: 15.0, Max: 35.0},
	})
	priceLimiter := rwinmemory.NewLimiter("price_report", time.Hour, 3, rwinmemory.WithClock(clock.Now))
	reviewLimiter := rwinmemory.NewLimiter("review", 24*time.Hour, 2, rwinmemory.WithClock(clock.Now))

	return api.NewPipeline(
		api.NewAttestationGate(verifier),
		api.NewRateGate(map[types.Kind]api.KindLimiter{
			types.KindPriceReport: {Limiter: priceLimiter, Noun: "price reports", Window: "hour"},
			types.KindReview:      {Limiter: reviewLimiter, Noun: "reviews", Window: "day"},
		}),
		api.NewContentGate(validator),
	)
}

func priceReport(price float64) *types.Submission {
	return &types.Submission{
		Kind:             types.KindPriceReport,
		Identity:         "1.2.3.4",
		AttestationToken: "tok",
		FuelType:         "magna",
		ReportedPrice:    price,
	}
}

func TestPipeline_EndToEnd_RateLimitWindow(t *testing.T) {
	clock := newMovableClock()
	pipeline := newTestPipeline(t, clock)
	ctx := context.Background()

	// Three submissions within 10-minute steps are each admitted.
	for i := 0; i < 3; i++ {
		decision := pipeline.Evaluate(ctx, priceReport(16))
		require.True(t, decision.Accepted, "submission %d: %s", i+1, decision.Reason)
		clock.Advance(10 * time.Minute)
	}

	// A fourth within the same rolling hour reports 3/3.
	decision := pipeline.Evaluate(ctx, priceReport(16))
	require.False(t, decision.Accepted)
	require.Equal(t, api.GateRateLimit, decision.Gate)
	require.Contains(t, decision.Reason, "3/3")
}

func TestPipeline_PriceRejectionStillConsumesSlot(t *testing.T) {
	clock := newMovableClock()
	pipeline := newTestPipeline(t, clock)
	ctx := context.Background()

	// Three implausible prices all fail at the content gate...
	for i := 0; i < 3; i++ {
		decision := pipeline.Evaluate(ctx, priceReport(40))
		require.False(t, decision.Accepted)
		require.Equal(t, api.GateContent, decision.Gate, "submission %d", i+1)
	}

	// ...and have exhausted the quota anyway: the fourth submission is
	// stopped at the rate gate even though its price is plausible.
	decision := pipeline.Evaluate(ctx, priceReport(16))
	require.False(t, decision.Accepted)
	require.Equal(t, api.GateRateLimit, decision.Gate)
	require.Contains(t, decision.Reason, "3/3")
}

func TestPipeline_EmptyTokenRejectedBeforeRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true}`)
	}))
	defer srv.Close()

	clock := newMovableClock()
	verifier := attestation.NewVerifier("secret", srv.URL, time.Second)
	limiter := rwinmemory.NewLimiter("price_report", time.Hour, 3, rwinmemory.WithClock(clock.Now))
	validator := pricecheck.NewValidator(emptySource{}, 0.15, 5, 30*24*time.Hour, map[string]pricecheck.Range{"magna": {Min: 15, Max: 35}})
	pipeline := api.NewPipeline(
		api.NewAttestationGate(verifier),
		api.NewRateGate(map[types.Kind]api.KindLimiter{
			types.KindPriceReport: {Limiter: limiter, Noun: "price reports", Window: "hour"},
		}),
		api.NewContentGate(validator),
	)
	ctx := context.Background()

	// Hammer the pipeline with tokenless submissions.
	for i := 0; i < 5; i++ {
		sub := priceReport(16)
		sub.AttestationToken = ""
		decision := pipeline.Evaluate(ctx, sub)
		require.False(t, decision.Accepted)
		require.Equal(t, api.GateAttestation, decision.Gate)
		require.Equal(t, "attestation token required", decision.Reason)
	}

	// None of them consumed a rate-limit slot.
	for i := 0; i < 3; i++ {
		decision := pipeline.Evaluate(ctx, priceReport(16))
		require.True(t, decision.Accepted, "submission %d: %s", i+1, decision.Reason)
	}
}

func TestPipeline_BypassProceedsToLaterGates(t *testing.T) {
	clock := newMovableClock()
	pipeline := newTestPipeline(t, clock)
	ctx := context.Background()

	// With the secret unset any non-empty token passes attestation; the
	// review is then judged on its content.
	sub := &types.Submission{
		Kind:             types.KindReview,
		Identity:         "1.2.3.4",
		AttestationToken: "anything",
		ReviewerName:     "Ana",
		Comment:          "too short",
		Rating:           5,
	}
	decision := pipeline.Evaluate(ctx, sub)
	require.False(t, decision.Accepted)
	require.Equal(t, api.GateContent, decision.Gate)
	require.Equal(t, "comment too short (minimum 10 characters)", decision.Reason)
}

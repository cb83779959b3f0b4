// Package rwinmemory provides the in-memory sliding-window log backend.
// Windows live for the lifetime of the process only; acceptable as an
// ephemeral defense layer, a known limitation under horizontal scaling.
package rwinmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/internal/ratewindow"
)

// Limiter keeps one timestamp log per identity in a sync.Map. Each log is
// guarded by its own mutex, so the check-then-record step is serialized per
// identity while different identities proceed concurrently.
type Limiter struct {
	key        string
	windows    sync.Map
	windowSize time.Duration
	limit      int64
	nowFunc    func() time.Time
}

type windowLog struct {
	mu  sync.Mutex
	log deque.Deque[time.Time]
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets a custom clock (nowFunc) for the Limiter.
func WithClock(nowFunc func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = nowFunc
	}
}

// NewLimiter creates a new in-memory sliding-window limiter. key names the
// policy (e.g. "price_report") and is used only for logging.
func NewLimiter(key string, windowSize time.Duration, limit int64, opts ...Option) *Limiter {
	l := &Limiter{
		key:        key,
		windowSize: windowSize,
		limit:      limit,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().Str("backend", "InMemory").Str("limiter_key", key).Dur("window", windowSize).Int64("limit", limit).Msg("Window limiter: initialized")
	return l
}

// CheckAndRecord prunes the identity's window, compares the remaining count
// to the limit, and appends the current time only if the check passes.
func (l *Limiter) CheckAndRecord(ctx context.Context, identity string) (ratewindow.Result, error) {
	entry, _ := l.windows.LoadOrStore(identity, &windowLog{})
	wl, ok := entry.(*windowLog)
	if !ok {
		err := fmt.Errorf("unexpected window state type for identity %s in limiter '%s'", identity, l.key)
		log.Error().Err(err).Str("backend", "InMemory").Str("limiter_key", l.key).Msg("Window limiter: error in CheckAndRecord")
		return ratewindow.Result{Limit: l.limit}, err
	}

	wl.mu.Lock()
	defer wl.mu.Unlock()

	select {
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("backend", "InMemory").Str("limiter_key", l.key).Str("identity", identity).Msg("Window limiter: context cancelled during check")
		return ratewindow.Result{Limit: l.limit}, ctx.Err()
	default:
	}

	now := l.nowFunc()
	cutoff := now.Add(-l.windowSize)

	// Insertion is chronological, so pruning from the front is complete.
	for wl.log.Len() > 0 && wl.log.Front().Before(cutoff) {
		wl.log.PopFront()
	}

	count := int64(wl.log.Len())
	if count < l.limit {
		wl.log.PushBack(now)
		return ratewindow.Result{Allowed: true, Count: count, Limit: l.limit}, nil
	}

	log.Debug().Str("backend", "InMemory").Str("limiter_key", l.key).Str("identity", identity).Int64("count", count).Int64("limit", l.limit).Msg("Window limiter: denied")
	return ratewindow.Result{Allowed: false, Count: count, Limit: l.limit}, nil
}

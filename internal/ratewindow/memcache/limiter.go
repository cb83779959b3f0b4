// Package rwmemcache provides a Memcache sliding-window log backend. The
// window is a JSON list of event timestamps; prune and append are not atomic
// across replicas, so concurrent checks for one identity can transiently
// over-admit. The Redis backend is the stricter choice.
package rwmemcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/internal/memcacheiface"
	"github.com/dashstreaming/gasoradar3/internal/ratewindow"
)

// Limiter stores one timestamp list per identity under keyPrefix.
type Limiter struct {
	client     memcacheiface.Client
	keyPrefix  string
	windowSize time.Duration
	limit      int64
	nowFunc    func() time.Time
}

// windowState stores the timestamps of events for an identity.
type windowState struct {
	Timestamps []int64 `json:"timestamps"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets a custom clock (nowFunc) for the Limiter.
func WithClock(nowFunc func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = nowFunc
	}
}

// NewLimiter creates a new Memcache-backed sliding-window limiter.
func NewLimiter(client memcacheiface.Client, keyPrefix string, windowSize time.Duration, limit int64, opts ...Option) *Limiter {
	l := &Limiter{
		client:     client,
		keyPrefix:  keyPrefix,
		windowSize: windowSize,
		limit:      limit,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().Str("backend", "Memcache").Str("limiter_key_prefix", keyPrefix).Dur("window", windowSize).Int64("limit", limit).Msg("Window limiter: initialized")
	return l
}

// CheckAndRecord loads the identity's timestamp list, prunes entries older
// than the window, compares the remaining count to the limit, and saves the
// list back only when a new event was appended.
func (l *Limiter) CheckAndRecord(ctx context.Context, identity string) (ratewindow.Result, error) {
	memcacheKey := fmt.Sprintf("%s:%s", l.keyPrefix, identity)

	select {
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("backend", "Memcache").Str("limiter", l.keyPrefix).Str("identity", identity).Msg("Window limiter: context cancelled during check")
		return ratewindow.Result{Limit: l.limit}, ctx.Err()
	default:
	}

	now := l.nowFunc()
	nowMillis := now.UnixMilli()
	windowStartMillis := nowMillis - l.windowSize.Milliseconds()
	expirySeconds := int32(l.windowSize.Seconds())
	if expirySeconds < 1 {
		expirySeconds = 1
	}

	item, err := l.client.Get(memcacheKey)
	if err != nil && err != memcache.ErrCacheMiss {
		log.Error().Err(err).Str("backend", "Memcache").Str("limiter", l.keyPrefix).Str("identity", identity).Msg("Window limiter: failed to get timestamps")
		return ratewindow.Result{Limit: l.limit}, fmt.Errorf("memcache get failed: %w", err)
	}

	var state windowState
	if err == memcache.ErrCacheMiss {
		state.Timestamps = []int64{}
	} else {
		if errUnmarshal := json.Unmarshal(item.Value, &state); errUnmarshal != nil {
			log.Error().Err(errUnmarshal).Str("backend", "Memcache").Str("limiter", l.keyPrefix).Str("identity", identity).Msg("Window limiter: failed to unmarshal timestamps")
			return ratewindow.Result{Limit: l.limit}, fmt.Errorf("memcache unmarshal failed: %w", errUnmarshal)
		}
	}

	valid := state.Timestamps[:0]
	for _, ts := range state.Timestamps {
		if ts >= windowStartMillis {
			valid = append(valid, ts)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })

	count := int64(len(valid))
	if count >= l.limit {
		// Denied; the pruned list is deliberately not written back, so a
		// rejection performs no write at all.
		log.Debug().Str("backend", "Memcache").Str("limiter", l.keyPrefix).Str("identity", identity).Int64("count", count).Msg("Window limiter: denied")
		return ratewindow.Result{Allowed: false, Count: count, Limit: l.limit}, nil
	}

	valid = append(valid, nowMillis)
	newValue, errMarshal := json.Marshal(windowState{Timestamps: valid})
	if errMarshal != nil {
		log.Error().Err(errMarshal).Str("backend", "Memcache").Str("limiter", l.keyPrefix).Str("identity", identity).Msg("Window limiter: failed to marshal timestamps")
		return ratewindow.Result{Limit: l.limit}, fmt.Errorf("json marshal failed: %w", errMarshal)
	}

	if errSet := l.client.Set(&memcache.Item{Key: memcacheKey, Value: newValue, Expiration: expirySeconds}); errSet != nil {
		// The check itself passed; losing the write weakens the window but
		// rejecting here would punish the submitter for a cache fault.
		log.Warn().Err(errSet).Str("backend", "Memcache").Str("limiter", l.keyPrefix).Str("identity", identity).Msg("Window limiter: allowed, but failed to save updated timestamps")
	}

	return ratewindow.Result{Allowed: true, Count: count, Limit: l.limit}, nil
}

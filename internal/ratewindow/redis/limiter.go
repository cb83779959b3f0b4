// Package rwredis provides the Redis sliding-window log backend. It is the
// shared-store strengthening for multi-replica deployments: all replicas
// account against the same window.
package rwredis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/internal/ratewindow"
)

// Limiter runs the check-and-record script against a shared Redis instance.
type Limiter struct {
	key        string
	client     *redis.Client
	windowSize time.Duration
	limit      int64
	script     *redis.Script
	nowFunc    func() time.Time
	memberFunc func() string
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets a custom clock (nowFunc) for the Limiter.
func WithClock(nowFunc func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = nowFunc
	}
}

// WithMemberFunc sets the generator for ZSET member names. Members only need
// to be unique per event; the default is a random UUID.
func WithMemberFunc(memberFunc func() string) Option {
	return func(l *Limiter) {
		l.memberFunc = memberFunc
	}
}

// NewLimiter creates a new Redis-backed sliding-window limiter.
func NewLimiter(key string, windowSize time.Duration, limit int64, client *redis.Client, opts ...Option) *Limiter {
	l := &Limiter{
		key:        key,
		windowSize: windowSize,
		limit:      limit,
		client:     client,
		script:     checkAndRecordScript,
		nowFunc:    time.Now,
		memberFunc: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().Str("backend", "Redis").Str("limiter_key", key).Dur("window", windowSize).Int64("limit", limit).Msg("Window limiter: initialized")
	return l
}

// CheckAndRecord executes the window script for the identity's key.
func (l *Limiter) CheckAndRecord(ctx context.Context, identity string) (ratewindow.Result, error) {
	redisKey := l.key + ":" + identity
	now := l.nowFunc().UnixMilli()
	windowMillis := l.windowSize.Milliseconds()

	// KEYS: [windowKey]
	// ARGV: [now, windowMillis, limit, member]
	result, err := l.script.Run(ctx, l.client, []string{redisKey}, now, windowMillis, l.limit, l.memberFunc()).Result()
	if err != nil {
		log.Error().Err(err).Str("backend", "Redis").Str("limiter_key", l.key).Str("identity", identity).Msg("Window limiter: error executing script")
		return ratewindow.Result{Limit: l.limit}, fmt.Errorf("redis script error for limiter '%s', identity '%s': %w", l.key, identity, err)
	}

	// The script returns {allowed, count}.
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		err := fmt.Errorf("unexpected result shape from Redis script for key '%s': %T", redisKey, result)
		log.Error().Err(err).Str("backend", "Redis").Str("limiter_key", l.key).Str("identity", identity).Msg("Window limiter: bad script result")
		return ratewindow.Result{Limit: l.limit}, err
	}
	allowed, okAllowed := values[0].(int64)
	count, okCount := values[1].(int64)
	if !okAllowed || !okCount {
		err := fmt.Errorf("unexpected result types from Redis script for key '%s': %T, %T", redisKey, values[0], values[1])
		log.Error().Err(err).Str("backend", "Redis").Str("limiter_key", l.key).Str("identity", identity).Msg("Window limiter: bad script result")
		return ratewindow.Result{Limit: l.limit}, err
	}

	return ratewindow.Result{Allowed: allowed == 1, Count: count, Limit: l.limit}, nil
}

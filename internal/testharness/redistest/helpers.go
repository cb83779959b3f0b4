// Package redistest provides helpers for Redis-backed integration tests.
package redistest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// Address returns the Redis address for integration tests, or "" when none
// is configured. Tests should skip when it is empty.
func Address() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if os.Getenv("CI") == "true" {
		return "redis:6379"
	}
	return ""
}

// SetupRedisClient initializes a Redis client for integration tests,
// skipping the test when no Redis address is configured.
func SetupRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := Address()
	if addr == "" {
		t.Skip("set REDIS_ADDR to run Redis integration tests")
	}
	t.Logf("Connecting to Redis for integration tests at %s", addr)

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Fatalf("Failed to connect to Redis at %s: %v. Ensure Redis is running and accessible.", addr, err)
	}
	return client
}

// CleanupKeys deletes all window keys under "limiterKey:*".
func CleanupKeys(t *testing.T, client *redis.Client, limiterKey string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pattern := limiterKey + ":*"
	var cursor uint64
	for i := 0; i < 1000; i++ {
		keys, next, err := client.Scan(ctx, cursor, pattern, 50).Result()
		if err != nil {
			t.Fatalf("Failed to SCAN for keys with pattern '%s': %v", pattern, err)
		}
		if len(keys) > 0 {
			if _, err := client.Del(ctx, keys...).Result(); err != nil {
				t.Errorf("Failed to DEL keys during cleanup (pattern: %s): %v", pattern, err)
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
	t.Logf("Warning: SCAN for cleanup hit the iteration cap for pattern %s", pattern)
}

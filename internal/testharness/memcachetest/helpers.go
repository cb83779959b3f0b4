// Package memcachetest provides helpers for Memcache-backed integration tests.
package memcachetest

import (
	"os"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"
)

// Address returns the Memcached address for integration tests, or "" when
// none is configured. Tests should skip when it is empty.
func Address() string {
	if addr := os.Getenv("MEMCACHED_ADDR"); addr != "" {
		return addr
	}
	if os.Getenv("CI") == "true" {
		return "memcached:11211"
	}
	return ""
}

// SetupMemcachedClient initializes a *memcache.Client for integration tests,
// skipping the test when no address is configured. Connectivity is verified
// with a throwaway set/get.
func SetupMemcachedClient(t *testing.T) *memcache.Client {
	t.Helper()
	addr := Address()
	if addr == "" {
		t.Skip("set MEMCACHED_ADDR to run Memcache integration tests")
	}
	t.Logf("Connecting to Memcached for integration tests at %s", addr)

	mc := memcache.New(addr)
	if err := mc.Set(&memcache.Item{Key: "ping_test", Value: []byte("1"), Expiration: 10}); err != nil {
		t.Fatalf("Failed to connect to Memcached at %s: %v. Ensure Memcached is running and accessible.", addr, err)
	}
	if _, err := mc.Get("ping_test"); err != nil {
		t.Fatalf("Failed to read from Memcached at %s: %v", addr, err)
	}
	mc.Delete("ping_test")
	return mc
}

// CleanupKeys deletes the given keys, best-effort.
func CleanupKeys(t *testing.T, client *memcache.Client, keys []string) {
	t.Helper()
	for _, key := range keys {
		if err := client.Delete(key); err != nil && err != memcache.ErrCacheMiss {
			t.Logf("Warning: failed to delete Memcached key '%s': %v", key, err)
		}
	}
}

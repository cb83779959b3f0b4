package api

import (
	"fmt"

	"github.com/dashstreaming/gasoradar3/config"
	"github.com/dashstreaming/gasoradar3/internal/ratewindow"
	rwinmemory "github.com/dashstreaming/gasoradar3/internal/ratewindow/inmemory"
	rwmemcache "github.com/dashstreaming/gasoradar3/internal/ratewindow/memcache"
	rwredis "github.com/dashstreaming/gasoradar3/internal/ratewindow/redis"
	"github.com/dashstreaming/gasoradar3/types"
)

// newWindowLimiter creates the window backend selected by the configuration
// for one category key (e.g. "price_report").
func newWindowLimiter(key string, wc config.WindowConfig, backend config.BackendType, clients types.BackendClients) (ratewindow.Limiter, error) {
	switch backend {
	case config.InMemory:
		return rwinmemory.NewLimiter(key, wc.Window.Std(), wc.Limit), nil
	case config.Redis:
		if clients.RedisClient == nil {
			return nil, fmt.Errorf("redis client is required but not provided for limiter '%s'", key)
		}
		return rwredis.NewLimiter(key, wc.Window.Std(), wc.Limit, clients.RedisClient), nil
	case config.Memcache:
		if clients.MemcacheClient == nil {
			return nil, fmt.Errorf("memcache client is required but not provided for limiter '%s'", key)
		}
		return rwmemcache.NewLimiter(clients.MemcacheClient, key, wc.Window.Std(), wc.Limit), nil
	default:
		return nil, fmt.Errorf("unsupported backend type '%s' for limiter '%s'", backend, key)
	}
}

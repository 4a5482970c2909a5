package round

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ConfigCache holds recently used round configs. Entries expire after a TTL
// and are invalidated explicitly when a round changes.
type ConfigCache interface {
	Get(id string) (Config, bool)
	Set(cfg Config)
	Invalidate(id string)
}

// RistrettoCache is a ConfigCache backed by ristretto.
type RistrettoCache struct {
	cache *ristretto.Cache[string, Config]
	ttl   time.Duration
}

func NewRistrettoCache(maxEntries int64, ttl time.Duration) (*RistrettoCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Config]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("round config cache: %w", err)
	}
	return &RistrettoCache{cache: c, ttl: ttl}, nil
}

func (c *RistrettoCache) Get(id string) (Config, bool) {
	return c.cache.Get(id)
}

func (c *RistrettoCache) Set(cfg Config) {
	c.cache.SetWithTTL(cfg.ID, cfg, 1, c.ttl)
	c.cache.Wait()
}

func (c *RistrettoCache) Invalidate(id string) {
	c.cache.Del(id)
}

func (c *RistrettoCache) Close() {
	c.cache.Close()
}

// NopCache never caches.
type NopCache struct{}

func (NopCache) Get(string) (Config, bool) { return Config{}, false }
func (NopCache) Set(Config)                {}
func (NopCache) Invalidate(string)         {}

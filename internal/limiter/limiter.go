package limiter

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/23skdu/field/internal/cache"
	"github.com/23skdu/field/internal/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	RPS   int `envconfig:"RATE_LIMIT_RPS" default:"0"`   // 0 means disabled
	Burst int `envconfig:"RATE_LIMIT_BURST" default:"0"` // 0 means use RPS

	// Per-key limits, e.g. per user; 0 disables them.
	KeyRPS   int `envconfig:"RATE_LIMIT_KEY_RPS" default:"0"`
	KeyBurst int `envconfig:"RATE_LIMIT_KEY_BURST" default:"0"`
}

const (
	keyCacheSize = 100_000
	keyIdleTTL   = 10 * time.Minute
)

// RateLimiter wraps a global token bucket and optional per-key buckets.
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool

	keyMu    sync.Mutex
	keyRate  rate.Limit
	keyBurst int
	keys     *cache.TTLCache[*rate.Limiter]
}

func burstOr(burst, rps int) int {
	if burst <= 0 {
		return rps
	}
	return burst
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg Config) *RateLimiter {
	l := &RateLimiter{}
	if cfg.RPS > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burstOr(cfg.Burst, cfg.RPS))
		l.enabled = true
	}
	if cfg.KeyRPS > 0 {
		l.keyRate = rate.Limit(cfg.KeyRPS)
		l.keyBurst = burstOr(cfg.KeyBurst, cfg.KeyRPS)
		l.keys = cache.NewTTLCache[*rate.Limiter](keyCacheSize, keyIdleTTL, "rate_limit_keys")
		l.enabled = true
	}
	return l
}

func (l *RateLimiter) forKey(key string) *rate.Limiter {
	h := cache.Key("limiter", key)
	l.keyMu.Lock()
	defer l.keyMu.Unlock()
	if lim, ok := l.keys.Get(h); ok {
		l.keys.Put(h, lim)
		return lim
	}
	lim := rate.NewLimiter(l.keyRate, l.keyBurst)
	l.keys.Put(h, lim)
	return lim
}

// Allow reports whether a request for key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}
	if l.keys != nil && key != "" && !l.forKey(key).Allow() {
		metrics.RateLimitRequestsTotal.WithLabelValues("throttled_key").Inc()
		return false
	}
	if l.limiter != nil && !l.limiter.Allow() {
		metrics.RateLimitRequestsTotal.WithLabelValues("throttled").Inc()
		return false
	}
	metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
	return true
}

// Middleware rejects throttled requests with 429. keyFn picks the per-key
// bucket; nil uses the client IP.
func (l *RateLimiter) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = func(c *gin.Context) string { return c.ClientIP() }
	}
	return func(c *gin.Context) {
		if !l.enabled {
			c.Next()
			return
		}
		if !l.Allow(keyFn(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter applies a token-bucket limit per client. Buckets are kept in
// memory keyed by client IP, which fits a single-instance deployment in
// front of one federation; a shared store would be needed before scaling
// horizontally.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int

	// visitorTTL controls when idle buckets are evicted.
	visitorTTL time.Duration
	// lookups since the last eviction sweep.
	lookups int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing rps requests per second with the
// given burst per client IP.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors:   make(map[string]*visitor),
		rps:        rate.Limit(rps),
		burst:      burst,
		visitorTTL: 10 * time.Minute,
	}
}

// allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()

	rl.lookups++
	if rl.lookups >= 5000 {
		rl.lookups = 0
		rl.evictStale()
	}

	return v.limiter.Allow()
}

// evictStale drops buckets idle beyond the TTL. Caller holds rl.mu.
func (rl *RateLimiter) evictStale() {
	cutoff := time.Now().Add(-rl.visitorTTL)
	for k, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, k)
		}
	}
}

// Handler returns the Gin middleware enforcing the limit. Over-limit
// requests receive a JSON 429 carrying the correlation ID.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.allow(c.ClientIP()) {
			c.Next()
			return
		}

		rid, _ := c.Get(requestIDKey)
		LoggerFrom(c).Warn().Str("client_ip", c.ClientIP()).Msg("rate limit exceeded")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": asString(rid),
			"code":       "rate_limited",
			"message":    "too many requests",
		})
	}
}

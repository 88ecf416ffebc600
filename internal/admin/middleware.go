package admin

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// apiKeyAuth gates every route on the x-api-key header. A missing key is
// distinguished from a wrong one so operators can tell misconfiguration
// from a bad secret.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("x-api-key")
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		if got != key {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

const (
	limiterRate    = rate.Limit(10)
	limiterBurst   = 20
	limiterMaxIdle = 5 * time.Minute
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per caller address. Idle buckets
// are swept on the fly once they pass the idle cutoff.
type rateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerLimiter
	now     func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		callers: make(map[string]*callerLimiter),
		now:     time.Now,
	}
}

func (rl *rateLimiter) allow(caller string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for id, cl := range rl.callers {
		if now.Sub(cl.lastSeen) > limiterMaxIdle {
			delete(rl.callers, id)
		}
	}

	cl, ok := rl.callers[caller]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(limiterRate, limiterBurst)}
		rl.callers[caller] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

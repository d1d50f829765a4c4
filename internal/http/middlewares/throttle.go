package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Throttle smooths general API traffic with a token bucket per client,
// complementing the fixed-window limiter on the auth endpoints. Idle client
// buckets are swept lazily on the request path, so there is no background
// goroutine to leak.
type Throttle struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	clients   map[string]*throttleClient
	lastSweep time.Time
}

type throttleClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		rps:       rate.Limit(rps),
		burst:     burst,
		clients:   make(map[string]*throttleClient),
		lastSweep: time.Now(),
	}
}

func (t *Throttle) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			key = clientIP(c)
		}

		if !t.limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":      "RATE_LIMITED",
					"message":   "Too many requests. Please try again shortly.",
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			})

			return
		}

		c.Next()
	}
}

func (t *Throttle) limiterFor(key string) *rate.Limiter {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > 10*time.Minute {
		cutoff := now.Add(-time.Hour)

		for k, cl := range t.clients {
			if cl.lastSeen.Before(cutoff) {
				delete(t.clients, k)
			}
		}

		t.lastSweep = now
	}

	cl, ok := t.clients[key]

	if !ok {
		cl = &throttleClient{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.clients[key] = cl
	}

	cl.lastSeen = now

	return cl.limiter
}

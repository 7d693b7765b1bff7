package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// WriteLimiter throttles state-changing requests per caller. Callers are keyed
// by uid, or by client IP before authentication.
type WriteLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

func NewWriteLimiter(requestsPerMin int) *WriteLimiter {
	burst := requestsPerMin / 10
	if burst < 1 {
		burst = 1
	}
	return &WriteLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](10000, nil, 10*time.Minute),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
	}
}

func (l *WriteLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters.Add(key, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (l *WriteLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, _ := c.Get(KeyUID).(string)
		if key == "" {
			key = "ip:" + c.RealIP()
		}
		if !l.allow(key) {
			c.Response().Header().Set("Retry-After", "10")
			return c.JSON(http.StatusTooManyRequests, map[string]map[string]string{
				"error": {"code": "rate_limited", "message": "too many requests, please slow down"},
			})
		}
		return next(c)
	}
}

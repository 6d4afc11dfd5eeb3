package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ehr/triage/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleTTL:           time.Hour,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.BurstSize),
		}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Sweep evicts limiters idle since before now minus IdleTTL.
func (l *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.cfg.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Run sweeps idle limiters every interval until ctx is done.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

// Middleware limits each authenticated user, or each client IP when the
// request carries no identity.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	limit := strconv.FormatFloat(l.cfg.RequestsPerSecond, 'f', -1, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = uid + ":" + key
			}

			now := time.Now()
			limiter := l.get(key, now)
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !limiter.AllowN(now, 1) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter(limiter, now, l.cfg.RequestsPerSecond)))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// RateLimit returns a rate limiting middleware backed by a fresh limiter.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return NewRateLimiter(cfg).Middleware()
}

func retryAfter(l *rate.Limiter, now time.Time, rps float64) int {
	if rps <= 0 {
		return 1
	}
	missing := 1 - l.TokensAt(now)
	if missing <= 0 {
		return 1
	}
	return int(math.Ceil(missing / rps))
}

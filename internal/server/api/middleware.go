package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// bucket tracks the upload allowance for a single client IP.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// bucketStaleAfter is how long an idle IP's bucket is kept before it
// is swept.
const bucketStaleAfter = 10 * time.Minute

// UploadLimiter is a per-IP token bucket guarding the EPUB intake
// route. A browser mints one book at a time, so sustained bursts are
// scripts, not readers. Stale buckets are swept inline during allow
// checks; the backend runs no background tasks.
type UploadLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     int     // max tokens
	lastSweep time.Time
}

// NewUploadLimiter creates a limiter with the given rate (uploads/sec) and burst size.
func NewUploadLimiter(rps float64, burst int) *UploadLimiter {
	return &UploadLimiter{
		buckets:   make(map[string]*bucket),
		rate:      rps,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Middleware returns an echo middleware function that rejects uploads
// beyond the configured rate.
func (ul *UploadLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !ul.allow(ip) {
				slog.Warn("upload rate limit exceeded",
					"ip", ip,
					"token_id", c.Param("tokenId"),
				)
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "too many uploads, try again later",
				})
			}
			return next(c)
		}
	}
}

func (ul *UploadLimiter) allow(ip string) bool {
	now := time.Now()

	ul.mu.Lock()
	defer ul.mu.Unlock()

	if now.Sub(ul.lastSweep) > bucketStaleAfter {
		for addr, b := range ul.buckets {
			if now.Sub(b.lastSeen) > bucketStaleAfter {
				delete(ul.buckets, addr)
			}
		}
		ul.lastSweep = now
	}

	b, ok := ul.buckets[ip]
	if !ok {
		ul.buckets[ip] = &bucket{
			tokens:   float64(ul.burst) - 1,
			lastSeen: now,
		}
		return true
	}

	// Refill for the time elapsed since this IP's last upload
	b.tokens += now.Sub(b.lastSeen).Seconds() * ul.rate
	if b.tokens > float64(ul.burst) {
		b.tokens = float64(ul.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

// RequestLogger returns an echo middleware that logs one line per
// request using slog. Routes addressing a single token carry its id,
// so a mint's record insert and its EPUB upload can be correlated in
// the logs.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
			}
			if id := c.Param("tokenId"); id != "" {
				attrs = append(attrs, "token_id", id)
			}
			slog.Info("request", attrs...)

			return err
		}
	}
}

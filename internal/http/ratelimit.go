package http

import (
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP. Buckets of idle
// clients are evicted after the idle period.
type IPRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
	idle     time.Duration
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b.
func NewIPRateLimiter(r rate.Limit, b int, idle time.Duration) *IPRateLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &IPRateLimiter{
		limiters: cache.New(idle, idle),
		r:        r,
		b:        b,
		idle:     idle,
	}
}

// PerMinute creates a limiter allowing n events per minute per IP.
func PerMinute(n int) *IPRateLimiter {
	if n <= 0 {
		n = 1
	}
	return NewIPRateLimiter(rate.Every(time.Minute/time.Duration(n)), n, 10*time.Minute)
}

// GetLimiter returns the bucket of an IP address, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	if value, found := i.limiters.Get(ip); found {
		limiter := value.(*rate.Limiter)
		i.limiters.Set(ip, limiter, i.idle)
		return limiter
	}

	limiter := rate.NewLimiter(i.r, i.b)
	if err := i.limiters.Add(ip, limiter, i.idle); err != nil {
		if value, found := i.limiters.Get(ip); found {
			return value.(*rate.Limiter)
		}
	}
	return limiter
}

// Allow consumes one token for the IP.
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

// RateLimit rejects requests over the per-IP budget with 429.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	responder := newResponder(nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				responder.writeJSON(r.Context(), w, http.StatusTooManyRequests, errorResponse{
					ErrorCode: "RATE_LIMITED",
					Message:   "too many requests, try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

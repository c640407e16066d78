// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tickethub/tickethub/pkg/ctx"
	"github.com/tickethub/tickethub/pkg/response"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window request counter keyed by client IP.
type Limiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter allows max requests per period for each key.
func NewLimiter(max int, period time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow counts one request for key and reports whether it is within the
// limit, plus the time the current window resets.
func (l *Limiter) Allow(key string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
		l.sweep(now)
	}

	w.count++
	return w.count <= l.max, w.resetAt
}

// sweep drops expired windows so idle clients do not accumulate. Caller
// holds mu.
func (l *Limiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// Handler answers 429 with Retry-After once a client exceeds the limit.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, resetAt := l.Allow(ctx.ClientIP(r))
		if !allowed {
			secs := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			response.TooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit is shorthand for NewLimiter(max, period).Handler.
//
//	auth.Post("/forgot-password", "auth.forgot", h, middleware.RateLimit(5, time.Minute))
func RateLimit(max int, period time.Duration) func(http.Handler) http.Handler {
	return NewLimiter(max, period).Handler
}

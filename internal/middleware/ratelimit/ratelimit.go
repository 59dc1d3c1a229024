// Package ratelimit throttles the public read API per caller address with
// token buckets. Health endpoints are exempt so orchestration checks never
// compete with API traffic for tokens.
package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pnslabs/pns-indexer/internal/middleware/realip"
)

// Config holds the per-caller throttle settings.
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	// CleanupMinutes bounds how long an idle caller's bucket is kept.
	CleanupMinutes int
}

// bucket pairs a caller's limiter with its last activity, so the sweep can
// drop callers that went quiet.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per caller address.
type Limiter struct {
	refill rate.Limit
	burst  int
	idle   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
}

// New builds a Limiter and starts its sweep loop. Stop releases it.
func New(cfg Config) *Limiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	l := &Limiter{
		refill:  rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:   cfg.BurstSize,
		idle:    idle,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Stop ends the sweep loop.
func (l *Limiter) Stop() {
	close(l.done)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.done:
			return
		}
	}
}

// sweep drops buckets idle past the configured window. A dropped caller
// simply starts over with a full burst on its next request.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.idle)
	for caller, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, caller)
		}
	}
}

// allow takes one token from the caller's bucket, creating it on first sight.
func (l *Limiter) allow(caller string) bool {
	l.mu.Lock()
	b, ok := l.buckets[caller]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[caller] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// exemptPaths bypass the throttle entirely.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/healthz": {},
	"/readyz":  {},
}

// Handler wraps next with the per-caller throttle. Over-limit requests get a
// 429 with the API's error envelope and a Retry-After hint.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, exempt := exemptPaths[r.URL.Path]; exempt {
			next.ServeHTTP(w, r)
			return
		}

		if !l.allow(realip.Caller(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`,
				"RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Middleware builds a throttle from cfg, or a pass-through when disabled.
// The backing Limiter's sweep loop lives for the life of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return New(cfg).Handler
}

package http

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	rateWindow      = 1 * time.Minute
	cleanupInterval = 1 * time.Minute
)

// RateLimiter limits signup attempts per client IP over a sliding window.
type RateLimiter struct {
	limit       int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
	cleanupDone chan struct{}
	closeOnce   sync.Once
	exempt      map[string]bool
	now         func() time.Time
}

// NewRateLimiter starts the cleanup goroutine; Close must be called on shutdown.
func NewRateLimiter(limit int, exemptPaths []string) (*RateLimiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}

	rl := &RateLimiter{
		limit:       limit,
		window:      rateWindow,
		requests:    make(map[string][]time.Time),
		cleanupDone: make(chan struct{}),
		exempt:      lo.SliceToMap(exemptPaths, func(p string) (string, bool) { return p, true }),
		now:         time.Now,
	}

	go rl.cleanupLoop()
	return rl, nil
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.exempt[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := ExtractIP(r)
		allowed, oldest := rl.allow(ip)
		if !allowed {
			retryAfter := int(rl.window.Seconds() - rl.now().Sub(oldest).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) (bool, time.Time) {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := filterValidTimestamps(rl.requests[ip], cutoff)
	if len(valid) >= rl.limit {
		rl.requests[ip] = valid
		return false, valid[0]
	}

	rl.requests[ip] = append(valid, now)
	return true, time.Time{}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.cleanupDone:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, timestamps := range rl.requests {
		valid := filterValidTimestamps(timestamps, cutoff)
		if len(valid) == 0 {
			delete(rl.requests, ip)
		} else {
			rl.requests[ip] = valid
		}
	}
}

func filterValidTimestamps(timestamps []time.Time, cutoff time.Time) []time.Time {
	return lo.Filter(timestamps, func(ts time.Time, _ int) bool {
		return ts.After(cutoff)
	})
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.cleanupDone)
	})
}

// Package ratelimit is a fixed-window, per-client request limiter.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"bollette/internal/metrics"
)

// Limiter counts requests per client key inside a fixed window.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	limit           int
	window          time.Duration
	cleanupInterval time.Duration
	staleAfter      time.Duration
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

// Config holds rate limiter configuration.
type Config struct {
	// Limit is the number of requests allowed per Window.
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
	// StaleAfter drops clients idle for longer than this.
	StaleAfter time.Duration
}

// DefaultConfig allows 60 writes per minute per client.
func DefaultConfig() Config {
	return Config{
		Limit:           60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
		StaleAfter:      10 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine. Call Stop
// to release it.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}

	rl := &Limiter{
		clients:         make(map[string]*clientInfo),
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		limit:           config.Limit,
		window:          config.Window,
		cleanupInterval: config.CleanupInterval,
		staleAfter:      config.StaleAfter,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether the client may proceed. When it may not, the
// second value is how long until its window resets.
func (rl *Limiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients[key]
	if !exists || now.Sub(client.windowStart) >= rl.window {
		rl.clients[key] = &clientInfo{windowStart: now, requests: 1}
		return true, 0
	}

	client.requests++
	if client.requests > rl.limit {
		return false, client.windowStart.Add(rl.window).Sub(now)
	}
	return true, 0
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-rl.staleAfter)
	for key, client := range rl.clients {
		if client.windowStart.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop shuts down the cleanup goroutine. Safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware limits requests whose method is in methods (all methods when
// empty). Rejected requests get 429 with Retry-After, written by onLimit
// when given.
func (rl *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request), methods ...string) func(http.Handler) http.Handler {
	limited := make(map[string]bool, len(methods))
	for _, m := range methods {
		limited[m] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(limited) > 0 && !limited[r.Method] {
				next.ServeHTTP(w, r)
				return
			}

			ok, retryAfter := rl.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncSecurityEvent("rate_limited")
			secs := int(retryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}

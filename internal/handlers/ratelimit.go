package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
)

const staleClientAfter = 5 * time.Minute

// RateLimiter limits prediction requests per client address.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	proxied  bool
}

// NewRateLimiter allows perSecond requests per client with a burst of
// burst. Stale clients are dropped until ctx is done. With trustProxy set the
// client is taken from forwarding headers, otherwise from the peer address.
func NewRateLimiter(ctx context.Context, perSecond float64, burst int, trustProxy bool) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		clients:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		proxied:  trustProxy,
	}
	go rl.cleanupLoop(ctx, time.Minute)
	return rl
}

func (rl *RateLimiter) limiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastSeen[client] = time.Now()
	l, ok := rl.clients[client]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.clients[client] = l
	}
	return l
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.sweep(now.Add(-staleClientAfter))
		}
	}
}

func (rl *RateLimiter) sweep(threshold time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, seen := range rl.lastSeen {
		if seen.Before(threshold) {
			delete(rl.clients, client)
			delete(rl.lastSeen, client)
		}
	}
}

// Allow reports whether client may make another request now.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.limiter(client).Allow()
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r, rl.proxied)) {
			apperrors.WriteError(w, apperrors.RateLimitedError(1))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// predictOnly limits dataset listings only when they ask for predictions.
func (rl *RateLimiter) predictOnly(next http.Handler) http.Handler {
	limited := rl.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if on, _ := strconv.ParseBool(r.URL.Query().Get("predict")); !on {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// clientIP reads forwarding headers only when trustProxy is set; any client
// can forge them otherwise.
func clientIP(r *http.Request, trustProxy bool) string {
	if !trustProxy {
		return remoteHost(r.RemoteAddr)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return remoteHost(r.RemoteAddr)
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// bucketIdleTTL is how long an address can stay quiet before its bucket
	// is dropped; idle buckets are refilled anyway, so nothing is lost.
	bucketIdleTTL = 10 * time.Minute
	sweepEvery    = time.Minute
)

// IPRateLimiter keeps a token bucket per client address. Stale buckets are
// swept during lookups so the map stays bounded by recent traffic rather
// than by every address that ever connected.
type IPRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type ipBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter builds a per-IP limiter. limit is in events per second;
// for N per minute pass rate.Limit(float64(N) / 60.0).
func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		buckets:   make(map[string]*ipBucket),
		limit:     limit,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// AuthRateLimiter is tuned for login and registration: 10 requests per
// minute per IP with a burst of 5, slow enough to blunt credential stuffing
// without locking out a fumbled password.
func AuthRateLimiter() *IPRateLimiter {
	return NewIPRateLimiter(rate.Limit(10.0/60.0), 5)
}

// Middleware rejects requests beyond the per-IP rate with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r), time.Now()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *IPRateLimiter) allow(addr string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepEvery {
		for key, b := range l.buckets {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[addr]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = now
	return b.lim.Allow()
}

// clientIP trusts the first X-Forwarded-For hop, then X-Real-IP, then falls
// back to the connection's remote address with the port stripped.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter limits requests per client IP using a token bucket per IP.
// Buckets idle for longer than idleTTL are dropped by Prune.
type IPRateLimiter struct {
	mu      sync.Mutex
	ips     map[string]*visitor
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// NewIPRateLimiter creates a per-IP rate limiter. limit is events per second;
// for N per minute use rate.Limit(float64(N)/60.0). burst is max tokens per bucket.
func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:     make(map[string]*visitor),
		limit:   limit,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// AuthRateLimiter returns a limiter for login and registration: perMinute
// requests per minute per IP with the given burst.
func AuthRateLimiter(perMinute, burst int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return NewIPRateLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

func (l *IPRateLimiter) reserve(ip string) *rate.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	v, ok := l.ips[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.ips[ip] = v
	}
	v.lastSeen = now
	return v.lim.ReserveN(now, 1)
}

// Prune forgets buckets not used within the idle TTL and returns how many were dropped.
func (l *IPRateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	n := 0
	for ip, v := range l.ips {
		if v.lastSeen.Before(cutoff) {
			delete(l.ips, ip)
			n++
		}
	}
	return n
}

// clientIP returns RemoteAddr without its port. Forwarding headers are not read
// here; behind a trusted proxy, chi's RealIP rewrites RemoteAddr first.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware returns 429 with Retry-After when the client IP exceeds the rate.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := l.reserve(clientIP(r))
		if delay := res.DelayFrom(l.now()); delay > 0 {
			res.CancelAt(l.now())
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

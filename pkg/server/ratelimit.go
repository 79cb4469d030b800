package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/ecoroute/pkg/core"
)

const (
	// maxTrackedClients bounds the limiter table; the least recently seen
	// client is dropped first
	maxTrackedClients = 10000

	// clientIdleTTL is how long a silent client keeps its bucket
	clientIdleTTL = 3 * time.Minute
)

// ClientLimiter applies a token bucket per client address
type ClientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewClientLimiter allows limit requests per second per client with bursts of burst
func NewClientLimiter(limit rate.Limit, burst int) *ClientLimiter {
	return newClientLimiter(limit, burst, maxTrackedClients, clientIdleTTL)
}

func newClientLimiter(limit rate.Limit, burst, size int, ttl time.Duration) *ClientLimiter {
	return &ClientLimiter{
		limit:   limit,
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

// bucket returns the limiter for client, refreshing its idle timer
func (l *ClientLimiter) bucket(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(client)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Add(client, b)
	return b
}

// Allow reports whether client may make a request now
func (l *ClientLimiter) Allow(client string) bool {
	return l.bucket(client).Allow()
}

// Tracked is the number of clients currently holding a bucket
func (l *ClientLimiter) Tracked() int {
	return l.buckets.Len()
}

// Stop forgets every client
func (l *ClientLimiter) Stop() {
	l.buckets.Purge()
}

// Middleware answers 429 with a RATE_LIMIT error once a client's bucket is empty
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, core.NewError(core.ErrRateLimit, "too many requests").
				WithGuidance("Slow down and retry shortly."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first forwarded address, then X-Real-IP, then the
// socket peer. Header values that are not addresses are ignored.
func clientIP(r *http.Request) string {
	var candidates []string
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		candidates = append(candidates, strings.TrimSpace(first))
	}
	candidates = append(candidates, r.Header.Get("X-Real-IP"))

	for _, c := range candidates {
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

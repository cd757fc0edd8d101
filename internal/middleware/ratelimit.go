package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is one per-client token-bucket policy. The router mounts a loose
// policy on the whole surface and a tighter one on the query endpoint, where
// a single request fans out to schema introspection, the model provider, and
// a database read.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// PerMinute expresses a requests-per-minute budget as a per-second rate.
func PerMinute(n int) float64 {
	return float64(n) / 60
}

const (
	clientIdleEvict  = 10 * time.Minute
	clientSweepEvery = 5 * time.Minute
)

// RateLimiter enforces lim separately per client IP. Clients are keyed by
// RemoteAddr only — X-Forwarded-For is spoofable and deliberately ignored.
// Rejections use the gateway's JSON error envelope with a Retry-After hint.
func RateLimiter(lim RateLimit) func(http.Handler) http.Handler {
	buckets := newIPBuckets(lim)
	go buckets.sweep()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := buckets.get(clientIP(r))

			res := limiter.Reserve()
			if !res.OK() {
				rejectRateLimited(w, 0)
				return
			}
			if delay := res.Delay(); delay > 0 {
				// Granting now would exceed the rate; give the tokens back.
				res.Cancel()
				rejectRateLimited(w, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(lim.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

type ipBuckets struct {
	mu  sync.Mutex
	lim RateLimit
	m   map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPBuckets(lim RateLimit) *ipBuckets {
	return &ipBuckets{lim: lim, m: make(map[string]*clientBucket)}
}

func (b *ipBuckets) get(ip string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.m[ip]
	if !ok {
		cb = &clientBucket{limiter: rate.NewLimiter(rate.Limit(b.lim.PerSecond), b.lim.Burst)}
		b.m[ip] = cb
	}
	cb.lastSeen = time.Now()
	return cb.limiter
}

// sweep drops buckets for clients that went quiet, so the map does not grow
// with every address that ever connected.
func (b *ipBuckets) sweep() {
	for {
		time.Sleep(clientSweepEvery)
		b.mu.Lock()
		for ip, cb := range b.m {
			if time.Since(cb.lastSeen) > clientIdleEvict {
				delete(b.m, ip)
			}
		}
		b.mu.Unlock()
	}
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rejectRateLimited(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
}

package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
)

const limiterIdleTTL = 10 * time.Minute

// ipRateLimiter hands out one token bucket per client IP. Buckets idle for
// limiterIdleTTL are evicted.
type ipRateLimiter struct {
	limiters *ttlcache.Cache[string, *rate.Limiter]
	lock     sync.Mutex
	rps      rate.Limit
	burst    int
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	l := &ipRateLimiter{
		limiters: ttlcache.New[string, *rate.Limiter](
			ttlcache.WithTTL[string, *rate.Limiter](limiterIdleTTL),
		),
		rps:   rate.Limit(rps),
		burst: burst,
	}
	go l.limiters.Start()
	return l
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if item := l.limiters.Get(ip); item != nil {
		return item.Value().Allow()
	}
	limiter := rate.NewLimiter(l.rps, l.burst)
	l.limiters.Set(ip, limiter, ttlcache.DefaultTTL)
	return limiter.Allow()
}

func (l *ipRateLimiter) Stop() {
	l.limiters.Stop()
}

// clientIP uses the connection address only; forwarded headers are client
// controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects callers that exceed their per-IP budget with
// 429. It is a no-op when rate limiting is disabled.
func (s *Server) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, oautherrors.CodeInvalidRequest, "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

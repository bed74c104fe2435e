package api

import (
	"net/http"
	"sync"

	"github.com/veilcash/pullauth/pkg/auth"
	"golang.org/x/time/rate"
)

// RateLimitPolicy configures per-caller request limiting.
type RateLimitPolicy struct {
	RPS   rate.Limit
	Burst int
}

// callerLimiter hands out one token bucket per caller.
type callerLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	policy  RateLimitPolicy
}

func (c *callerLimiter) allow(actor string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.buckets[actor]
	if !ok {
		l = rate.NewLimiter(c.policy.RPS, c.policy.Burst)
		c.buckets[actor] = l
	}
	return l.Allow()
}

// RateLimitMiddleware enforces per-caller rate limiting. The actor is
// the authenticated caller address, falling back to the remote address
// for unauthenticated paths.
func RateLimitMiddleware(policy RateLimitPolicy) func(http.Handler) http.Handler {
	limiter := &callerLimiter{buckets: make(map[string]*rate.Limiter), policy: policy}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := r.RemoteAddr
			if caller, err := auth.CallerFrom(r.Context()); err == nil {
				actor = caller.Address.Hex()
			}
			if !limiter.allow(actor) {
				WriteTooManyRequests(w, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

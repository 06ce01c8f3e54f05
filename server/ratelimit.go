package server

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdle is how long a user's bucket survives without requests.
const limiterIdle = 10 * time.Minute

// RateLimiter keeps one token bucket per user. Buckets expire only after
// limiterIdle without a request.
type RateLimiter struct {
	limiters *cache.Cache
	rps      rate.Limit
	burst    int
}

// NewRateLimiter returns nil when rps <= 0; a nil limiter allows everything.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return newRateLimiter(rps, burst, limiterIdle)
}

func newRateLimiter(rps float64, burst int, idle time.Duration) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: cache.New(idle, 2*idle),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the user may make a request now.
func (r *RateLimiter) Allow(userID string) bool {
	if r == nil {
		return true
	}
	if v, ok := r.limiters.Get(userID); ok {
		l := v.(*rate.Limiter)
		// Get does not extend expiry; refresh it so an active user keeps their bucket.
		r.limiters.Set(userID, l, cache.DefaultExpiration)
		return l.Allow()
	}
	l := rate.NewLimiter(r.rps, r.burst)
	// Another request may have raced us; keep whichever bucket won.
	if err := r.limiters.Add(userID, l, cache.DefaultExpiration); err != nil {
		if v, ok := r.limiters.Get(userID); ok {
			l = v.(*rate.Limiter)
		}
	}
	return l.Allow()
}

package ingress

import (
	"golang.org/x/time/rate"
)

// limiterFor returns the token bucket for a source address, creating one on
// first sight. The backing LRU bounds memory against address churn; an
// evicted source simply starts over with a full bucket.
func (s *Server) limiterFor(source string) *rate.Limiter {
	if existing, ok := s.limiters.Get(source); ok {
		return existing
	}
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	actual, _ := s.limiters.GetOrSet(source, limiter)
	return actual
}

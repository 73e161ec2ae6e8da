package http

import "golang.org/x/time/rate"

// frameLimiter bounds inbound control frames per connection.
type frameLimiter struct {
	limiter *rate.Limiter
}

func newFrameLimiter(perSecond float64, burst int) *frameLimiter {
	if perSecond <= 0 || burst <= 0 {
		return &frameLimiter{}
	}
	return &frameLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (f *frameLimiter) allow() bool {
	if f == nil || f.limiter == nil {
		return true
	}
	return f.limiter.Allow()
}

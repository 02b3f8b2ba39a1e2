package crawl

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// throttle spaces consecutive dispatches at least delay apart. The first
// dispatch goes out immediately.
type throttle struct {
	lim   *rate.Limiter
	first bool
}

func newThrottle(delay time.Duration) *throttle {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &throttle{lim: rate.NewLimiter(limit, 1), first: true}
}

// Wait blocks until the next dispatch is allowed. It returns an error only
// when ctx ends first.
func (t *throttle) Wait(ctx context.Context) error {
	if t.first {
		t.first = false
		// Consume the initial token so the second dispatch waits a full delay.
		t.lim.Allow()
		return nil
	}
	return t.lim.Wait(ctx)
}

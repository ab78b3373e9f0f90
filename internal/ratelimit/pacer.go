// internal/ratelimit/pacer.go
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out iterations of the dispatcher receive loop using a
// token bucket. It replaces a fixed sleep between receives: bursts are
// absorbed up to the bucket size while the long-run rate stays capped.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer that allows one iteration per interval with
// the given burst capacity.
func NewPacer(interval time.Duration, burst int) *Pacer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until the next iteration may proceed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

package scanners

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DialGate bounds how many connection attempts run at once and, optionally,
// how many start per second. A nil gate admits everything.
type DialGate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewDialGate creates a gate. perSecond <= 0 disables pacing.
func NewDialGate(maxConcurrent, perSecond int) *DialGate {
	gate := &DialGate{}
	if maxConcurrent > 0 {
		gate.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if perSecond > 0 {
		gate.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return gate
}

// Acquire blocks until a dial may start or ctx is done
func (g *DialGate) Acquire(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.sem != nil {
		return g.sem.Acquire(ctx, 1)
	}
	return ctx.Err()
}

// Release returns the slot taken by a successful Acquire
func (g *DialGate) Release() {
	if g != nil && g.sem != nil {
		g.sem.Release(1)
	}
}

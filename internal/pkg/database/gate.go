package database

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// Gate bounds concurrent database work to the size of the connection pool.
// Callers that cannot get a slot within the acquire timeout fail fast with
// ServiceUnavailableError instead of queueing behind sql.DB.
type Gate struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewGate creates a gate with size slots. A nil *Gate admits everything.
func NewGate(size int, timeout time.Duration) *Gate {
	if size <= 0 {
		size = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size)), timeout: timeout}
}

// Acquire takes a slot and returns its release func.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if g.sem.TryAcquire(1) {
		return func() { g.sem.Release(1) }, nil
	}
	if g.timeout <= 0 {
		return nil, claimerr.New(claimerr.KindServiceUnavailable, "database pool saturated")
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, claimerr.Wrap(claimerr.KindServiceUnavailable, err, "database pool saturated")
	}
	return func() { g.sem.Release(1) }, nil
}

package mosaic

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is the counting admission control bounding concurrent sessions.
// Acquire happens before any session-scoped resource is created; Release
// rides the teardown path so every acquired unit is returned exactly once.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate returns a Gate with the given capacity, minimum 1.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire blocks until a capacity unit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire takes a unit without blocking, reporting whether it succeeded.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release returns one capacity unit.
func (g *Gate) Release() {
	g.sem.Release(1)
}

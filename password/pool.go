package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many hash computations run at once so a burst of logins
// cannot occupy every CPU. A nil Pool runs work inline.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool returns a pool with the given number of slots; workers <= 0 means
// GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), size: workers}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}

// Do waits for a free slot, then runs fn. It returns ctx.Err() if the context
// ends before a slot frees up; fn is not run in that case.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if p == nil {
		fn()
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	fn()
	return nil
}

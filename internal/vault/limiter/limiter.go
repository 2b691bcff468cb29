// Package limiter bounds concurrent opens of embedded store handles.
// Probing many mounted containers at once (a UI listing them all) is the
// dominant cost driver; admission control caps worst-case resource usage
// without ever blocking the caller.
package limiter

import "golang.org/x/sync/semaphore"

// DefaultCapacity is the default number of in-flight store opens.
const DefaultCapacity = 3

// Gate is a non-blocking admission gate. Acquire never waits: at capacity it
// returns false and the caller is expected to skip the expensive operation
// and fall back to a safe default (e.g. a credential count of 0).
type Gate struct {
	sem *semaphore.Weighted
}

// New returns a Gate admitting at most capacity concurrent holders.
// A capacity below 1 is treated as DefaultCapacity.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire attempts to enter the gate without blocking.
func (g *Gate) Acquire() bool {
	return g.sem.TryAcquire(1)
}

// Release exits the gate. Must be called exactly once per successful
// Acquire, and never while holding any lock the gated work also takes.
func (g *Gate) Release() {
	g.sem.Release(1)
}

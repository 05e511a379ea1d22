// Package sync provides synchronization primitives for code that runs before
// (and after) the scheduler is available.
package sync

import (
	"sync/atomic"

	"kaviz/kernel/cpu"
)

var (
	// yieldFn is invoked by Acquire after a number of failed attempts to
	// grab the lock so a blocked task does not simply burn its timeslice.
	// It defaults to a no-op so the lock still works before sched.Init
	// wires it up, and tests can substitute their own function.
	yieldFn func() = func() {}
)

// SetYieldFunc installs the function invoked by a spinning Acquire once it
// has spun past spinAttemptsBeforeYielding. sched.Init calls this with
// sched.Yield once the scheduler is up.
func SetYieldFunc(fn func()) {
	yieldFn = fn
}

// spinAttemptsBeforeYielding caps how many PAUSE-spins Acquire performs
// before giving up its timeslice via yieldFn.
const spinAttemptsBeforeYielding = 1000

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	attempts := uint32(0)
	for !l.TryToAcquire() {
		attempts++
		if attempts >= spinAttemptsBeforeYielding {
			attempts = 0
			yieldFn()
			continue
		}
		cpu.Pause()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Package urefcount provides an atomic single-owner/shared-owner counter
// used to gate copy-on-write decisions in ubuf and to drive pipe and
// manager lifecycles in upipe.
package urefcount

import "go.uber.org/atomic"

// Refcount is a refcount starting at 1 on construction (the allocator's
// own reference). Use and Release are safe for concurrent use by multiple
// goroutines without a mutex (§5: the refcount is one of the few pieces
// of cross-thread shared state in the runtime).
type Refcount struct {
	n atomic.Int64
}

// New returns a Refcount with an initial count of 1.
func New() *Refcount {
	r := &Refcount{}
	r.n.Store(1)
	return r
}

// Reset reinitializes a pool-recycled Refcount back to 1, for a shared
// structure popped from a free-list instead of freshly allocated
// (mirrors ubuf_block_mem's urefcount_reset on shared-pool reuse).
// ubuf.Manager does not call it: Alloc gives every region a fresh
// Refcount from New.
func (r *Refcount) Reset() { r.n.Store(1) }

// Use increments the count. Called whenever a new reference to the
// refcounted object is created (dup, manager use()).
func (r *Refcount) Use() { r.n.Inc() }

// Release decrements the count and reports whether it reached zero --
// the caller owns tearing down the object in that case, and must not
// call Release on it again.
func (r *Refcount) Release() bool {
	return r.n.Dec() == 0
}

// Single reports whether this is the only outstanding reference. A block
// buffer's backing region may only be written or extended in place when
// Single is true (§4.3): any other referrer means writes must first
// materialise a private copy.
func (r *Refcount) Single() bool { return r.n.Load() == 1 }

// Count returns the current reference count, for diagnostics only --
// never branch production logic on its exact value beyond Single().
func (r *Refcount) Count() int64 { return r.n.Load() }

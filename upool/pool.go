// Package upool implements the bounded, fixed-capacity multi-producer/
// multi-consumer object stack (§4.1) that backs every pooled allocator in
// the runtime (block buffer handles, backing regions). Push and Pop are
// non-blocking: Push reports false when the pool is full, Pop reports ok
// == false when it is empty. The common case never takes a lock -- both
// operations are compare-and-swap loops over a tagged top-of-stack word,
// the same "array of slots, CAS the head" shape used by lock-free object
// pools elsewhere in the ecosystem.
package upool

import "go.uber.org/atomic"

// head packs a 1-based slot index (low 32 bits) and an ABA-guarding
// generation counter (high 32 bits) into a single word so both can be
// updated together with one CAS.
func packHead(slot, gen uint32) uint64 { return uint64(gen)<<32 | uint64(slot) }
func headSlot(h uint64) uint32         { return uint32(h) }
func headGen(h uint64) uint32          { return uint32(h >> 32) }

// Pool is a bounded CAS stack of T values. The zero value is not usable;
// construct with New.
type Pool[T any] struct {
	slots []T
	next  []uint32 // next[i] is the 1-based successor slot of slots[i] on the free chain
	free  atomic.Uint64
	top   atomic.Uint64 // 0 means empty
}

// New returns a Pool with room for exactly capacity objects. All slots
// start on the free chain, so the pool can absorb `capacity` Push calls
// before the first Pop, or be drained by Vacuum immediately.
func New[T any](capacity int) *Pool[T] {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pool[T]{
		slots: make([]T, capacity),
		next:  make([]uint32, capacity),
	}
	for i := 0; i < capacity-1; i++ {
		p.next[i] = uint32(i + 2) // 1-based index of the next slot
	}
	p.free.Store(packHead(1, 0))
	return p
}

// Cap returns the fixed capacity the pool was created with.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// Push stores v in the pool and returns true, or returns false if the
// pool is already at capacity (all slots occupied).
func (p *Pool[T]) Push(v T) bool {
	for {
		h := p.free.Load()
		slot := headSlot(h)
		if slot == 0 {
			return false // no free slot: pool is full
		}
		newHead := packHead(p.next[slot-1], headGen(h)+1)
		if p.free.CAS(h, newHead) {
			p.slots[slot-1] = v
			p.publish(slot)
			return true
		}
	}
}

// publish pushes the now-occupied slot onto the pop-able top chain.
func (p *Pool[T]) publish(slot uint32) {
	for {
		h := p.top.Load()
		p.next[slot-1] = headSlot(h)
		newHead := packHead(slot, headGen(h)+1)
		if p.top.CAS(h, newHead) {
			return
		}
	}
}

// Pop removes and returns an arbitrary object from the pool. ok is false
// if the pool was empty, in which case the caller must allocate fresh.
func (p *Pool[T]) Pop() (v T, ok bool) {
	for {
		h := p.top.Load()
		slot := headSlot(h)
		if slot == 0 {
			return v, false
		}
		newHead := packHead(p.next[slot-1], headGen(h)+1)
		if p.top.CAS(h, newHead) {
			v = p.slots[slot-1]
			var zero T
			p.slots[slot-1] = zero
			p.release(slot)
			return v, true
		}
	}
}

func (p *Pool[T]) release(slot uint32) {
	for {
		h := p.free.Load()
		p.next[slot-1] = headSlot(h)
		newHead := packHead(slot, headGen(h)+1)
		if p.free.CAS(h, newHead) {
			return
		}
	}
}

// Vacuum drains every object currently resident in the pool, calling fn
// once per object, and returns it to the free chain. It is intended as a
// debug/shutdown tool (mirrors the original allocator's mgr_vacuum: "release
// all structures currently kept in pools", §5 "Pools are drained on manager
// release"). It is built on Pop, so it may run alongside concurrent
// Push/Pop calls; objects pushed while it runs may be drained as well.
func (p *Pool[T]) Vacuum(fn func(T)) {
	for {
		v, ok := p.Pop()
		if !ok {
			return
		}
		if fn != nil {
			fn(v)
		}
	}
}

// Package ubuf implements the polymorphic buffer object (§3 C4, §4.3):
// a typed, pool-recycled handle. The block variant is a copy-on-write
// window onto one or more pooled, refcounted backing regions -- cheap to
// duplicate, and able to grow/shrink/splice without ever copying payload
// bytes unless the caller asks for a private copy explicitly (DupDeep).
//
// Grounded on ubuf_block_mem.c: a shared struct (region + refcount) is
// what Dup actually bumps; window metadata (offset, size) lives on the
// per-handle struct. Writes and in-place extends are only legal while
// Refcount.Single() holds, matching "write fails when refcount(backing)
// > 1" (§4.3).
package ubuf

import (
	"go.uber.org/atomic"

	"github.com/openheadend/upipe-go/internal/xassert"
	"github.com/openheadend/upipe-go/umem"
	"github.com/openheadend/upipe-go/urefcount"
)

// Kind identifies the payload shape a Buf carries. Only Block is given a
// full implementation here (§1: "this specification covers... the
// generic machinery"); Picture and Sound are left as typed markers for
// collaborator codecs to build on, per §1's non-goal on codec specifics.
type Kind int

const (
	KindBlock Kind = iota
	KindPicture
	KindSound
)

// Buf is the common handle every buffer kind satisfies.
type Buf interface {
	Kind() Kind
	Size() int
}

// segment is one contiguous window onto a shared, refcounted backing
// region. A Block is a sequence of segments logically concatenated
// (§3: "optional linked list of additional segments for cheap appends").
type segment struct {
	region *umem.Region
	rc     *urefcount.Refcount
	off    int // first live byte inside region.Buffer()
	size   int // number of live bytes starting at off
}

// Block is the block-variant Buf: a CoW window (or chain of windows)
// onto pooled backing storage.
type Block struct {
	segs    []segment
	readers atomic.Int32 // debug-only outstanding read/write mapping count
	mgr     *Manager
}

var _ Buf = (*Block)(nil)

// Kind implements Buf.
func (b *Block) Kind() Kind { return KindBlock }

// Size returns the total number of live bytes across all segments.
func (b *Block) Size() int {
	n := 0
	for _, s := range b.segs {
		n += s.size
	}
	return n
}

// locate returns the index of the segment containing logical offset off,
// and the offset's position within that segment. ok is false if off is
// at or past the end of the block.
func (b *Block) locate(off int) (idx, within int, ok bool) {
	pos := 0
	for i, s := range b.segs {
		if off < pos+s.size {
			return i, off - pos, true
		}
		pos += s.size
	}
	return 0, 0, false
}

// Read returns a contiguous read-only span starting at off. If [off,
// off+n) crosses a segment boundary, the returned span is shorter than n
// and stops at the end of the segment that contains off (§3, §4.3: "Read
// always succeeds up to the end of the current segment"). The caller
// must call Unmap once done with the span.
func (b *Block) Read(off, n int) (span []byte, actual int) {
	idx, within, ok := b.locate(off)
	if !ok || n <= 0 {
		return nil, 0
	}
	s := b.segs[idx]
	avail := s.size - within
	if n > avail {
		n = avail
	}
	b.readers.Inc()
	return s.region.Buffer()[s.off+within : s.off+within+n], n
}

// Write returns a mutable span starting at off, like Read, but fails
// (ok == false) unless the covering segment's backing region is
// single-owned (§4.3: "Write fails when refcount(backing) > 1").
func (b *Block) Write(off, n int) (span []byte, actual int, ok bool) {
	idx, within, found := b.locate(off)
	if !found || n <= 0 {
		return nil, 0, false
	}
	s := b.segs[idx]
	if !s.rc.Single() {
		return nil, 0, false
	}
	avail := s.size - within
	if n > avail {
		n = avail
	}
	b.readers.Inc()
	return s.region.Buffer()[s.off+within : s.off+within+n], n, true
}

// Unmap balances a Read or Write call. The debug readers counter must be
// zero by the time the Block is freed (§3).
func (b *Block) Unmap() { b.readers.Dec() }

// checkReadersZero panics (under -tags debug) if outstanding mappings
// remain, matching ubuf_block_mem_free's `assert(readers == 0)`.
func (b *Block) checkReadersZero() {
	xassert.Assert(b.readers.Load() == 0, "ubuf: freed block with %d outstanding read/write mappings", b.readers.Load())
}

// Dup returns a new handle sharing this Block's backing storage in O(1):
// every segment's refcount is bumped, and no bytes are copied.
func (b *Block) Dup() *Block {
	dup := b.mgr.newBlock()
	dup.segs = append(dup.segs[:0], b.segs...)
	for _, s := range dup.segs {
		s.rc.Use()
	}
	return dup
}

// DupDeep materialises a private, single-owned copy of the block's
// contents. §4.3: copy-on-write is not automatic; callers that must
// mutate a shared buffer call this first.
func (b *Block) DupDeep() *Block {
	size := b.Size()
	fresh := b.mgr.Alloc(size)
	pos := 0
	for _, s := range b.segs {
		copy(fresh.segs[0].region.Buffer()[fresh.segs[0].off+pos:], s.region.Buffer()[s.off:s.off+s.size])
		pos += s.size
	}
	return fresh
}

// Extend grows the block by prepend bytes at the front and/or append
// bytes at the back, in place when possible (§4.3). It fails if any
// prepend is requested while the first segment is shared, or any append
// is requested while the last segment is shared.
func (b *Block) Extend(prepend, appendN int) bool {
	if prepend < 0 || appendN < 0 {
		return false
	}
	if prepend > 0 {
		first := &b.segs[0]
		// Matches the original's ubuf_block_mem_extend: any prepend growth
		// requires single ownership, even when it fits inside existing
		// front padding, not just when a real reallocation is needed.
		if !first.rc.Single() {
			return false
		}
		if prepend > first.off {
			// Not enough front padding: grow the region upwards by
			// re-basing the window (rare; umem has no native "prepend
			// room" concept, so we allocate fresh room).
			needed := prepend - first.off
			grown := umem.GrowOrCopy(first.region, first.region.Size()+needed)
			if grown != first.region {
				copy(grown.Buffer()[needed:], first.region.Buffer())
				first.region = grown
			} else {
				copy(first.region.Buffer()[first.off+needed:], first.region.Buffer()[first.off:first.off+first.size])
			}
			first.off += needed
		}
		first.off -= prepend
		first.size += prepend
	}
	if appendN > 0 {
		last := &b.segs[len(b.segs)-1]
		if !last.rc.Single() {
			return false
		}
		needed := last.off + last.size + appendN
		if needed > last.region.Size() {
			last.region = umem.GrowOrCopy(last.region, needed)
		}
		last.size += appendN
	}
	return true
}

// Resize adjusts the block's window: newOff bytes are dropped from the
// front (newOff must be >= 0), and the live size becomes newSize, or is
// left as "current size minus newOff" when newSize == -1 (§4.3). This is
// the Go analogue of the original's uref_block_resize(uref, off, size).
func (b *Block) Resize(newOff, newSize int) bool {
	if newOff < 0 {
		return false
	}
	if newOff > 0 && !b.Delete(0, newOff) {
		return false
	}
	cur := b.Size()
	if newSize == -1 {
		return true
	}
	if newSize < 0 {
		return false
	}
	switch {
	case cur > newSize:
		return b.Delete(newSize, cur-newSize)
	case cur < newSize:
		return b.Extend(0, newSize-cur)
	default:
		return true
	}
}

// Insert splices other's segments into this block at logical offset off,
// sharing other's backing storage (O(1), no payload copy). other is
// consumed: the caller must not use it again.
func (b *Block) Insert(off int, other *Block) bool {
	if off < 0 || off > b.Size() {
		return false
	}
	// other's segments are moved, not duplicated: their existing
	// references transfer to b, and releaseBlockShell below only
	// recycles other's shell without touching segment refcounts.
	cloned := make([]segment, len(other.segs))
	copy(cloned, other.segs)

	if off == b.Size() {
		b.segs = append(b.segs, cloned...)
		b.mgr.releaseBlockShell(other)
		return true
	}

	idx, within, ok := b.locate(off)
	if !ok {
		return false
	}
	if within == 0 {
		out := make([]segment, 0, len(b.segs)+len(cloned))
		out = append(out, b.segs[:idx]...)
		out = append(out, cloned...)
		out = append(out, b.segs[idx:]...)
		b.segs = out
	} else {
		s := b.segs[idx]
		s.rc.Use()
		left := segment{region: s.region, rc: s.rc, off: s.off, size: within}
		right := segment{region: s.region, rc: s.rc, off: s.off + within, size: s.size - within}
		out := make([]segment, 0, len(b.segs)+len(cloned)+1)
		out = append(out, b.segs[:idx]...)
		out = append(out, left)
		out = append(out, cloned...)
		out = append(out, right)
		out = append(out, b.segs[idx+1:]...)
		b.segs = out
	}
	b.mgr.releaseBlockShell(other)
	return true
}

// Delete removes the n bytes starting at logical offset off, splitting
// or dropping segments as needed, without copying any retained bytes.
func (b *Block) Delete(off, n int) bool {
	if off < 0 || n < 0 || off+n > b.Size() {
		return false
	}
	if n == 0 {
		return true
	}
	delStart, delEnd := off, off+n
	out := make([]segment, 0, len(b.segs)+1)
	pos := 0
	for _, s := range b.segs {
		segStart, segEnd := pos, pos+s.size
		pos = segEnd

		switch {
		case segEnd <= delStart || segStart >= delEnd:
			// No overlap.
			out = append(out, s)
		case delStart <= segStart && delEnd >= segEnd:
			// Fully covered: drop it.
			if s.rc.Release() {
				b.mgr.releaseRegion(s.region)
			}
		case delStart <= segStart:
			// Deletion covers the segment's front: keep the tail.
			drop := delEnd - segStart
			out = append(out, segment{region: s.region, rc: s.rc, off: s.off + drop, size: s.size - drop})
		case delEnd >= segEnd:
			// Deletion covers the segment's back: keep the head.
			keep := delStart - segStart
			out = append(out, segment{region: s.region, rc: s.rc, off: s.off, size: keep})
		default:
			// Deletion is strictly inside: split into head and tail, both
			// sharing the same backing region.
			s.rc.Use()
			headSize := delStart - segStart
			tailOff := s.off + (delEnd - segStart)
			tailSize := segEnd - delEnd
			out = append(out, segment{region: s.region, rc: s.rc, off: s.off, size: headSize})
			out = append(out, segment{region: s.region, rc: s.rc, off: tailOff, size: tailSize})
		}
	}
	b.segs = out
	return true
}

// Free releases every segment's reference to its backing region and
// returns the Block handle itself to the manager's pool.
func (b *Block) Free() {
	b.checkReadersZero()
	for _, s := range b.segs {
		if s.rc.Release() {
			b.mgr.releaseRegion(s.region)
		}
	}
	b.mgr.free(b)
}

// Package ustream implements the stream-accumulator helper (§3 C9,
// §4.4): a byte-aligned logical view across a sequence of block Refs
// delivered one at a time, letting a framer treat many small input
// buffers as one continuous byte stream. Payload bytes are only copied
// when a caller reads them into its own buffer with Peek; Extract
// shares the stored segments.
//
// Grounded on the segment-splicing machinery of ubuf.Block (Insert,
// Resize, Delete) -- the accumulator is a thin bookkeeping layer over
// a queue of Refs, and every byte-moving operation it performs is
// really a window adjustment on shared backing storage.
package ustream

import (
	"github.com/openheadend/upipe-go/ubuf"
	"github.com/openheadend/upipe-go/uref"
)

// Accumulator buffers a sequence of Refs and exposes them as one
// logical byte stream.
type Accumulator struct {
	queue     []*uref.Ref
	headOff   int // bytes already consumed from queue[0]
	total     int // bytes still buffered, across the whole queue
	pseudo    *uref.Ref
	onPromote func(pseudo *uref.Ref)
}

// New returns an empty accumulator. onPromote, if non-nil, is invoked
// every time the stream head is promoted from empty to non-empty,
// with a header-only Ref carrying the metadata (dates, discontinuity)
// of the Ref that triggered the promotion -- this is the "pseudo-
// record" whose dates get forwarded to frames later emitted from the
// stream.
func New(onPromote func(pseudo *uref.Ref)) *Accumulator {
	return &Accumulator{onPromote: onPromote}
}

// Append queues ref's payload onto the end of the stream. ref is
// consumed: ownership passes to the accumulator, which frees it once
// fully drained by Consume.
func (a *Accumulator) Append(ref *uref.Ref) {
	block, ok := ref.Block()
	if !ok {
		ref.Free()
		return
	}
	wasEmpty := a.total == 0
	a.total += block.Size()
	a.queue = append(a.queue, ref)

	if wasEmpty {
		pseudo := ref.Dup()
		pseudo.Free() // drop the duplicated Buf; keep only the Dict
		a.pseudo = pseudo
		if a.onPromote != nil {
			a.onPromote(a.pseudo)
		}
	}
}

// Reset drops every buffered Ref (freeing each one) and clears the
// pseudo-record, without disturbing the onPromote callback. Framers
// call this on a discontinuity, where any in-flight frame must be
// abandoned rather than carried forward.
func (a *Accumulator) Reset() {
	for _, r := range a.queue {
		r.Free()
	}
	a.queue = nil
	a.headOff = 0
	a.total = 0
	if a.pseudo != nil {
		a.pseudo.Free()
		a.pseudo = nil
	}
}

// Size returns the number of bytes currently buffered.
func (a *Accumulator) Size() int { return a.total }

// Consume advances the stream head by n bytes, releasing any Ref fully
// drained in the process. It fails if n exceeds the buffered size.
func (a *Accumulator) Consume(n int) bool {
	if n < 0 || n > a.total {
		return false
	}
	for n > 0 {
		head := a.queue[0]
		block, _ := head.Block()
		avail := block.Size() - a.headOff
		if n < avail {
			a.headOff += n
			a.total -= n
			n = 0
			continue
		}
		a.total -= avail
		n -= avail
		head.Free()
		a.queue = a.queue[1:]
		a.headOff = 0
	}
	return true
}

// Extract removes the next n bytes as a new Ref whose Buf is a shared,
// zero-copy view onto the stored segments, and whose Dict carries the
// current pseudo-record's dates. It does not advance the stream head;
// callers that mean to both extract and drop the bytes call Consume
// afterwards.
func (a *Accumulator) Extract(n int) (*uref.Ref, bool) {
	if n < 0 || n > a.total {
		return nil, false
	}
	out := a.pseudo.Dup()
	if n == 0 {
		return out, true
	}

	var result *ubuf.Block
	off := a.headOff
	remaining := n
	for i := 0; remaining > 0; i++ {
		head := a.queue[i]
		block, _ := head.Block()
		avail := block.Size() - off
		take := remaining
		if take > avail {
			take = avail
		}
		piece := block.Dup()
		piece.Resize(off, take)
		if result == nil {
			result = piece
		} else {
			result.Insert(result.Size(), piece)
		}
		remaining -= take
		off = 0
	}
	out.Buf = result
	return out, true
}

// Peek copies up to len(dst) bytes starting at logical offset off into
// dst without consuming them, returning the number of bytes copied.
// Unlike ubuf.Block.Read it transparently crosses both segment and
// Ref boundaries, which is what sync-word scanning needs.
func (a *Accumulator) Peek(off int, dst []byte) int {
	if off < 0 || off >= a.total {
		return 0
	}
	n := 0
	pos := -a.headOff
	for _, ref := range a.queue {
		block, _ := ref.Block()
		size := block.Size()
		segStart, segEnd := pos, pos+size
		pos = segEnd
		if segEnd <= off {
			continue
		}
		readFrom := 0
		if off > segStart {
			readFrom = off - segStart
		}
		for readFrom < size && n < len(dst) {
			span, got := block.Read(readFrom, len(dst)-n)
			if got == 0 {
				break
			}
			copy(dst[n:], span)
			block.Unmap()
			n += got
			readFrom += got
		}
		if n >= len(dst) {
			break
		}
	}
	return n
}

// Scan returns the offset (relative to the stream head) of the first
// occurrence of needle at or after off, or (-1, false) if it is not
// present in the buffered bytes.
func (a *Accumulator) Scan(off int, needle []byte) (int, bool) {
	if len(needle) == 0 {
		return off, true
	}
	window := make([]byte, len(needle))
	for candidate := off; candidate+len(needle) <= a.total; candidate++ {
		n := a.Peek(candidate, window)
		if n < len(needle) {
			break
		}
		if string(window) == string(needle) {
			return candidate, true
		}
	}
	return -1, false
}

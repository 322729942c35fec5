// Package a52 implements the A/52 (AC-3 and E-AC-3 Annex E) framer
// (§3 C10, §4.8): it turns an unframed byte stream of audio elementary
// data into one Ref per syncframe, synchronising on the 0x0B 0x77 sync
// word and branching header parsing on BSID.
//
// Grounded on upipe_a52_framer.c: upipe_a52f_work's main loop,
// upipe_a52f_check_frame's "peek past the frame, confirm the next sync
// word" logic, and upipe_a52f_output_frame's date-rebasing are carried
// over near-verbatim in control flow, rewritten against uref/ubuf/
// ustream/upipe instead of upipe's uref_block_* macro family.
package a52

import (
	"github.com/openheadend/upipe-go/uprobe"
	"github.com/openheadend/upipe-go/upipe"
	"github.com/openheadend/upipe-go/uref"
	"github.com/openheadend/upipe-go/ustream"
)

// Signature tags control commands and log lines belonging to a52
// pipes.
const Signature uint32 = 0x41353246 // "A52F"

type manager struct{}

func (manager) Signature() uint32       { return Signature }
func (manager) AcceptedFlowDef() string { return "block." }

// Manager returns the a52 pipe manager.
func Manager() upipe.Manager { return manager{} }

// Pipe is an A/52 framer instance.
type Pipe struct {
	*upipe.Base

	acc             *ustream.Accumulator
	nextFrameSize   int // -1 until a header has been parsed for the pending frame
	firstHeaderSeen bool
	auUref          *uref.Ref // pseudo-record: dates forwarded to the next frame
}

var _ upipe.Sink = (*Pipe)(nil)

// New allocates an A/52 framer pipe bound to probes.
func New(probes *uprobe.Chain) *Pipe {
	p := &Pipe{
		Base:          upipe.NewBase(manager{}, probes),
		nextFrameSize: -1,
		auUref:        uref.New(nil),
	}
	p.acc = ustream.New(p.onPromote)
	return p
}

func (p *Pipe) onPromote(pseudo *uref.Ref) {
	for _, d := range []uref.Domain{uref.DomainSys, uref.DomainProg, uref.DomainOrig} {
		if v, kind, ok := pseudo.GetDTS(d); ok {
			p.auUref.SetDTS(d, v, kind)
		}
	}
}

// Input implements upipe.Sink. It consumes ownership of ref.
func (p *Pipe) Input(ref *uref.Ref) {
	if _, ok := ref.Block(); !ok {
		// Header-only record (e.g. a bare flow-def passthrough): forward
		// unchanged.
		p.Output.Emit(ref)
		return
	}

	if ref.Discontinuity() {
		p.acc.Reset()
		p.nextFrameSize = -1
		p.Sync.Lost()
	}

	p.acc.Append(ref)
	p.work()
}

// Control dispatches the generic pipe commands; A/52 has no local
// commands of its own.
func (p *Pipe) Control(cmd upipe.Command) (upipe.Result, bool) {
	return p.Base.Control(cmd)
}

func (p *Pipe) work() {
	for p.acc.Size() > 0 {
		if !p.Sync.IsAcquired() {
			off, found := p.acc.Scan(0, syncWord)
			if !found {
				// Keep the last byte: it may be the start of a sync word
				// that straddles the next input Ref.
				if p.acc.Size() > 0 {
					p.acc.Consume(p.acc.Size() - 1)
				}
				return
			}
			p.acc.Consume(off)
		}

		if p.nextFrameSize == -1 {
			valid, enough := p.parseHeader()
			if !enough {
				return // need more bytes to read the 6-octet header
			}
			if !valid {
				p.acc.Consume(1)
				p.Sync.Lost()
				continue
			}
		}

		ready, ok := p.checkFrame()
		if !ok {
			p.acc.Consume(1)
			p.nextFrameSize = -1
			p.Sync.Lost()
			continue
		}
		if !ready {
			return
		}

		p.Sync.Acquired()
		p.outputFrame()
		p.nextFrameSize = -1
	}
}

// parseHeader reads the 6-octet syncframe header and sets
// nextFrameSize. It returns (valid, enough): enough is false if fewer
// than 6 octets are buffered yet (the caller should wait for more
// input); valid is false if the header's BSID is neither AC-3 nor
// E-AC-3, a genuinely invalid frame.
func (p *Pipe) parseHeader() (valid, enough bool) {
	if p.acc.Size() < 6 {
		return false, false
	}
	header := make([]byte, 6)
	p.acc.Peek(0, header)

	switch bsid(header) {
	case bsidAC3:
		return p.parseAC3(header), true
	case bsidEAC3:
		return p.parseEAC3(header), true
	default:
		return false, true
	}
}

func (p *Pipe) parseAC3(header []byte) bool {
	fc := frmsizecod(header)
	octets, ok := frameSizeAC3(fscod(header), fc)
	if !ok {
		return false
	}
	p.nextFrameSize = octets

	// The "first header seen" latch (§9 Design Notes, Open Question):
	// once an output flow def has been sent, later headers never
	// rewrite it, even across a BSID change. Honoured as-is, matching
	// the source's documented (if debatable) behaviour.
	if p.firstHeaderSeen {
		return true
	}
	def := uref.New(nil)
	def.SetFlowDef("block.ac3.sound.")
	def.SetOctetrate(octetrateAC3(fc))
	p.SetFlowDef(def)
	p.firstHeaderSeen = true
	return true
}

func (p *Pipe) parseEAC3(header []byte) bool {
	p.nextFrameSize = frameSizeEAC3(frmsiz(header))

	if p.firstHeaderSeen {
		return true
	}
	def := uref.New(nil)
	def.SetFlowDef("block.eac3.sound.")
	p.SetFlowDef(def)
	p.firstHeaderSeen = true
	return true
}

// checkFrame reports whether the frame currently being parsed is ready
// to emit. Grounded on upipe_a52f_check_frame: not enough data is
// "wait" (ready=false, ok=true); a missing next sync word while
// already acquired is accepted anyway, to avoid delaying packets
// unnecessarily; a present-but-wrong next sync word is "invalid"
// (ok=false).
func (p *Pipe) checkFrame() (ready, ok bool) {
	size := p.acc.Size()
	if size < p.nextFrameSize {
		return false, true
	}

	var words [2]byte
	got := p.acc.Peek(p.nextFrameSize, words[:])
	if got < 2 {
		return p.Sync.IsAcquired(), true
	}
	if words[0] != syncWord[0] || words[1] != syncWord[1] {
		return false, false
	}
	return true, true
}

func (p *Pipe) outputFrame() {
	snapshot := p.auUref
	p.auUref = uref.New(nil) // flush: from now on dates impact only the next frame

	frame, ok := p.acc.Extract(p.nextFrameSize)
	if !ok {
		p.Throw(uprobe.Event{Kind: uprobe.Fatal, ErrCode: uprobe.ErrAlloc})
		return
	}
	p.acc.Consume(p.nextFrameSize)

	// Sample-rate-derived duration is left at zero: §1 scopes codec
	// bit-rate arithmetic beyond syncframe boundaries as a collaborator
	// concern, matching the source's own disabled duration computation.
	const duration = 0
	for _, d := range []uref.Domain{uref.DomainSys, uref.DomainProg, uref.DomainOrig} {
		if date, kind, has := snapshot.GetDTS(d); has {
			frame.SetDTS(d, date, kind)
			p.auUref.SetDTS(d, date+duration, kind)
		} else {
			frame.DeleteDTS(d)
		}
	}
	frame.SetDtsPtsDelay(0)

	p.Output.Emit(frame)
}

// Package pesd implements the PES decapsulator (§3 C11, §4.9): it
// strips PES headers off a stream of TS-payload Refs, reassembling a
// header split across several input Refs, and rebases any PTS/DTS it
// finds onto uref's original clock domain.
//
// Grounded on upipe_ts_pesd.c: upipe_ts_pesd_input's flow-def rewrite
// ("block.mpegtspes." -> "block."), upipe_ts_pesd_work's reassembly
// state machine (start / continuation / forward-while-acquired /
// drop), and upipe_ts_pesd_decaps's header parsing are carried over in
// control flow, rewritten against uref/ubuf/upipe instead of upipe's
// uref_block_* macro family.
package pesd

import (
	"strings"

	"github.com/golang/glog"

	"github.com/openheadend/upipe-go/ubuf"
	"github.com/openheadend/upipe-go/uprobe"
	"github.com/openheadend/upipe-go/upipe"
	"github.com/openheadend/upipe-go/uref"
)

// Signature tags control commands and log lines belonging to pesd
// pipes.
const Signature uint32 = 0x50455344 // "PESD"

type manager struct{}

func (manager) Signature() uint32       { return Signature }
func (manager) AcceptedFlowDef() string { return ExpectedFlowDef }

// Manager returns the PES decapsulator pipe manager.
func Manager() upipe.Manager { return manager{} }

// Pipe is a PES decapsulator instance.
type Pipe struct {
	*upipe.Base

	next *uref.Ref // in-progress header reassembly, nil when none
}

var _ upipe.Sink = (*Pipe)(nil)

// New allocates a PES decapsulator pipe bound to probes.
func New(probes *uprobe.Chain) *Pipe {
	return &Pipe{Base: upipe.NewBase(manager{}, probes)}
}

// Control dispatches control commands. Unlike most pipe types, pesd
// has no GET_FLOW_DEF/SET_FLOW_DEF of its own: flow definitions arrive
// exclusively through Input (a header-only Ref carrying f.def), since
// the output flow def is derived from the input one by string rewrite
// rather than accepted or rejected wholesale.
func (p *Pipe) Control(cmd upipe.Command) (upipe.Result, bool) {
	switch cmd.Kind {
	case upipe.CmdGetOutput, upipe.CmdSetOutput:
		return p.Base.Control(cmd)
	default:
		return upipe.Result{}, false
	}
}

// Input implements upipe.Sink. It consumes ownership of ref.
func (p *Pipe) Input(ref *uref.Ref) {
	if _, ok := ref.Block(); !ok {
		p.setFlowDef(ref)
		return
	}

	if _, ok := p.GetFlowDef(); !ok {
		ref.Free()
		p.Throw(uprobe.Event{Kind: uprobe.Error, ErrCode: uprobe.ErrInvalid})
		return
	}

	if ref.Discontinuity() {
		p.flush()
	}

	switch {
	case ref.Start():
		if p.next != nil {
			glog.Warningf("%s: truncated PES header, dropping", p.ProbeName())
			p.next.Free()
		}
		p.next = ref
		p.decaps()

	case p.next != nil:
		block := ref.Buf
		ref.Buf = nil
		nextBlock, _ := p.next.Block()
		if !nextBlock.Insert(nextBlock.Size(), block) {
			p.flush()
			p.Throw(uprobe.Event{Kind: uprobe.Fatal, ErrCode: uprobe.ErrAlloc})
			return
		}
		p.decaps()

	case p.Sync.IsAcquired():
		p.Output.Emit(ref)

	default:
		ref.Free()
	}
}

func (p *Pipe) flush() {
	if p.next != nil {
		p.next.Free()
		p.next = nil
	}
	p.Sync.Lost()
}

// setFlowDef handles a header-only Ref carrying the upstream flow
// definition (§4.9): it must start with ExpectedFlowDef, and the
// stored output definition drops that prefix in favour of "block.".
func (p *Pipe) setFlowDef(ref *uref.Ref) {
	p.flush()

	def, ok := ref.FlowDef()
	if !ok || !strings.HasPrefix(def, ExpectedFlowDef) {
		ref.Free()
		p.Throw(uprobe.Event{Kind: uprobe.Error, ErrCode: uprobe.ErrInvalid})
		return
	}
	ref.Free()

	out := uref.New(nil)
	out.SetFlowDef("block." + strings.TrimPrefix(def, ExpectedFlowDef))
	p.Base.StoreFlowDef(out)
}

// decaps attempts to strip a full PES header off p.next, emitting the
// decapsulated payload once enough bytes have been gathered. It may be
// called repeatedly as more fragments arrive, returning without effect
// each time fewer bytes are buffered than the header currently needs.
//
// Grounded on upipe_ts_pesd_decaps's three-way branch: the
// no-optional-header stream IDs, the normal PTS/DTS-bearing group, and
// the various "wrong" / "not enough yet" exits.
func (p *Pipe) decaps() {
	block, _ := p.next.Block()

	header, ok := peek(block, 0, headerSize)
	if !ok {
		return
	}
	if header[0] != 0x00 || header[1] != 0x00 || header[2] != 0x01 {
		glog.Warningf("%s: wrong PES start code", p.ProbeName())
		p.flush()
		return
	}
	streamID := header[3]
	length := int(header[4])<<8 | int(header[5])

	if streamID == streamIDPadding {
		p.flush()
		return
	}

	switch streamID {
	case streamIDPSM, streamIDPrivate2, streamIDECM, streamIDEMM,
		streamIDDSMCC, streamIDPSD, streamIDH222_1E:
		block.Resize(headerSize, -1)
		ref := p.next
		p.next = nil
		p.Sync.Acquired()
		p.Output.Emit(ref)
		return
	}

	if length != 0 && length < optionalSize {
		glog.Warningf("%s: PES length too small for optional header", p.ProbeName())
		p.flush()
		return
	}

	opt, ok := peek(block, headerSize, optionalSize)
	if !ok {
		return
	}
	if opt[0]&0xc0 != 0x80 {
		glog.Warningf("%s: wrong PES optional header marker bits", p.ProbeName())
		p.flush()
		return
	}
	alignment := opt[0]&0x04 != 0
	ptsDtsFlags := opt[1] >> 6 & 0x3
	hasPTS := ptsDtsFlags != 0
	hasDTS := ptsDtsFlags == 3
	headerLength := int(opt[2])

	if length != 0 && headerLength+optionalSize > length {
		glog.Warningf("%s: PES header length exceeds packet length", p.ProbeName())
		p.flush()
		return
	}
	if hasPTS && headerLength < tsFieldSize {
		glog.Warningf("%s: PES header length too small for PTS", p.ProbeName())
		p.flush()
		return
	}
	if hasDTS && headerLength < 2*tsFieldSize {
		glog.Warningf("%s: PES header length too small for PTS+DTS", p.ProbeName())
		p.flush()
		return
	}

	if block.Size() < headerSizeNoPTS+headerLength {
		return // more fragments still to come
	}

	var pts, dts uint64
	if hasPTS {
		n := tsFieldSize
		if hasDTS {
			n = 2 * tsFieldSize
		}
		ts, ok := peek(block, headerSizeNoPTS, n)
		if !ok {
			return
		}
		ptsNibble := byte(0x2)
		if hasDTS {
			ptsNibble = 0x3
		}
		var valid bool
		pts, valid = parseTSField(ts[:tsFieldSize], ptsNibble)
		if !valid {
			glog.Warningf("%s: invalid PTS marker bits", p.ProbeName())
			p.flush()
			return
		}
		dts = pts
		if hasDTS {
			dts, valid = parseTSField(ts[tsFieldSize:2*tsFieldSize], 0x1)
			if !valid {
				glog.Warningf("%s: invalid DTS marker bits", p.ProbeName())
				p.flush()
				return
			}
		}
		p.next.SetPTSOrig(pts)
		if pts > dts {
			p.next.SetDtsPtsDelay(pts - dts)
		}
	}

	if alignment {
		p.next.SetStart()
	} else {
		p.next.DeleteStart()
	}

	block.Resize(headerSizeNoPTS+headerLength, -1)
	ref := p.next
	p.next = nil
	p.Sync.Acquired()
	p.Output.Emit(ref)
}

// peek copies n bytes starting at offset off out of block, crossing
// internal segment boundaries transparently. It returns ok=false if
// fewer than n bytes are currently available.
func peek(block *ubuf.Block, off, n int) ([]byte, bool) {
	if off < 0 || off+n > block.Size() {
		return nil, false
	}
	out := make([]byte, n)
	got := 0
	for got < n {
		span, k := block.Read(off+got, n-got)
		if k == 0 {
			return nil, false
		}
		copy(out[got:], span)
		block.Unmap()
		got += k
	}
	return out, true
}

// parseTSField decodes a 5-byte PTS or DTS field (ISO/IEC 13818-1
// §2.4.3.7), validating the 4-bit prefix nibble and the three marker
// bits.
func parseTSField(b []byte, nibble byte) (uint64, bool) {
	if b[0]>>4 != nibble {
		return 0, false
	}
	if b[0]&0x1 != 1 || b[2]&0x1 != 1 || b[4]&0x1 != 1 {
		return 0, false
	}
	v := uint64(b[0]>>1&0x07) << 30
	v |= uint64(b[1]) << 22
	v |= uint64(b[2]>>1&0x7f) << 15
	v |= uint64(b[3]) << 7
	v |= uint64(b[4]>>1&0x7f)
	return v, true
}

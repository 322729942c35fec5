package pesd_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openheadend/upipe-go/ts/pesd"
	"github.com/openheadend/upipe-go/ubuf"
	"github.com/openheadend/upipe-go/upipe"
	"github.com/openheadend/upipe-go/uprobe"
	"github.com/openheadend/upipe-go/uref"
)

type captureSink struct {
	refs []*uref.Ref
}

func (s *captureSink) Input(ref *uref.Ref) { s.refs = append(s.refs, ref) }

func newPESD() (*pesd.Pipe, *captureSink, *[]uprobe.EventKind) {
	var events []uprobe.EventKind
	chain := uprobe.NewChain(uprobe.HandlerFunc(func(t uprobe.Thrower, ev uprobe.Event) bool {
		events = append(events, ev.Kind)
		return true
	}))
	p := pesd.New(chain)
	sink := &captureSink{}
	p.Output.SetOutput(sink)
	return p, sink, &events
}

func mkBlockRef(mgr *ubuf.Manager, data []byte) *uref.Ref {
	b := mgr.Alloc(len(data))
	span, _, _ := b.Write(0, len(data))
	copy(span, data)
	b.Unmap()
	ref := uref.New(b)
	ref.SetStart()
	return ref
}

func flowDefRef(def string) *uref.Ref {
	r := uref.New(nil)
	r.SetFlowDef(def)
	return r
}

// encodeTSField encodes a 5-byte PTS or DTS field with the given 4-bit
// prefix nibble, matching ISO/IEC 13818-1 §2.4.3.7's bit layout.
func encodeTSField(nibble byte, v uint64) []byte {
	b := make([]byte, 5)
	b[0] = nibble<<4 | byte(v>>30&0x07)<<1 | 1
	b[1] = byte(v >> 22 & 0xff)
	b[2] = byte(v>>15&0x7f)<<1 | 1
	b[3] = byte(v >> 7 & 0xff)
	b[4] = byte(v&0x7f)<<1 | 1
	return b
}

func uint16be(v int) (byte, byte) { return byte(v >> 8), byte(v) }

func TestDecapsNoOptionalHeaderStreamID(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	p, sink, _ := newPESD()
	p.Input(flowDefRef("block.mpegtspes.data"))

	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	hi, lo := uint16be(len(payload))
	header := []byte{0x00, 0x00, 0x01, 0xbc, hi, lo} // PSM: no optional header
	pkt := append(append([]byte(nil), header...), payload...)

	p.Input(mkBlockRef(mgr, pkt))

	require.Len(t, sink.refs, 2) // flow-def + payload
	block, ok := sink.refs[1].Block()
	require.True(t, ok)
	require.Equal(t, len(payload), block.Size())
}

func TestDecapsPTSOnly(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	p, sink, _ := newPESD()
	p.Input(flowDefRef("block.mpegtspes.video"))

	const pts = uint64(54_000_000) & ((1 << 33) - 1)
	optional := []byte{0x80, 0x80, 0x05} // marker '10', PTS_DTS_flags=10, header_length=5
	optional = append(optional, encodeTSField(0x2, pts)...)

	payload := make([]byte, 2048)
	for i := range payload {
		payload[i] = byte(i)
	}
	hi, lo := uint16be(len(optional) + len(payload))
	mandatory := []byte{0x00, 0x00, 0x01, 0xe0, hi, lo}
	pkt := append(append(append([]byte(nil), mandatory...), optional...), payload...)

	p.Input(mkBlockRef(mgr, pkt))

	require.Len(t, sink.refs, 2)
	block, ok := sink.refs[1].Block()
	require.True(t, ok)
	require.Equal(t, len(payload), block.Size())

	got, ok := sink.refs[1].GetPTSOrig()
	require.True(t, ok)
	require.Equal(t, pts, got)

	_, hasDelay := sink.refs[1].GetDtsPtsDelay()
	require.False(t, hasDelay, "PTS-only header carries no dts_pts_delay")
}

func TestDecapsPTSAndDTS(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	p, sink, _ := newPESD()
	p.Input(flowDefRef("block.mpegtspes.video"))

	const dts = uint64(27_000_000)
	const pts = dts + 27_000_000 // dts_pts_delay == 27_000_000

	optional := []byte{0x80, 0xc0, 0x0a} // PTS_DTS_flags=11, header_length=10
	optional = append(optional, encodeTSField(0x3, pts)...)
	optional = append(optional, encodeTSField(0x1, dts)...)

	payload := make([]byte, 2048)
	hi, lo := uint16be(len(optional) + len(payload))
	mandatory := []byte{0x00, 0x00, 0x01, 0xe0, hi, lo}
	pkt := append(append(append([]byte(nil), mandatory...), optional...), payload...)

	p.Input(mkBlockRef(mgr, pkt))

	require.Len(t, sink.refs, 2)
	block, ok := sink.refs[1].Block()
	require.True(t, ok)
	require.Equal(t, 2048, block.Size())

	gotPTS, ok := sink.refs[1].GetPTSOrig()
	require.True(t, ok)
	require.Equal(t, pts, gotPTS)

	delay, ok := sink.refs[1].GetDtsPtsDelay()
	require.True(t, ok)
	require.Equal(t, uint64(27_000_000), delay)
}

// TestDecapsLongPayloadUnboundedLength mirrors a PES stream whose
// payload exceeds the 16-bit pes_length field's range: the encapsulator
// is required to write pes_length=0 in that case (ISO/IEC 13818-1
// §2.4.3.7, "unbounded" form, legal for video streams), and the
// decapsulator must not reject it on the header-length-vs-pes-length
// check.
func TestDecapsLongPayloadUnboundedLength(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	p, sink, _ := newPESD()
	p.Input(flowDefRef("block.mpegtspes.video"))

	const pts = uint64(12_345_678)
	optional := []byte{0x80, 0x80, 0x05}
	optional = append(optional, encodeTSField(0x2, pts)...)

	payload := make([]byte, 70000)
	mandatory := []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00} // pes_length == 0
	pkt := append(append(append([]byte(nil), mandatory...), optional...), payload...)

	p.Input(mkBlockRef(mgr, pkt))

	require.Len(t, sink.refs, 2)
	block, ok := sink.refs[1].Block()
	require.True(t, ok)
	require.Equal(t, len(payload), block.Size())
}

func TestDecapsReassemblyAcrossFragments(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	p, sink, _ := newPESD()
	p.Input(flowDefRef("block.mpegtspes.audio"))

	payload := make([]byte, 16)
	hi, lo := uint16be(len(payload))
	header := []byte{0x00, 0x00, 0x01, 0xbc, hi, lo}
	full := append(append([]byte(nil), header...), payload...)

	first := mkBlockRef(mgr, full[:3]) // split mid mandatory-header
	p.Input(first)
	require.Empty(t, sink.refs, "not enough bytes for the mandatory header yet")

	cont := mkBlockRef(mgr, full[3:])
	cont.DeleteStart()
	p.Input(cont)

	require.Len(t, sink.refs, 2)
	block, ok := sink.refs[1].Block()
	require.True(t, ok)
	require.Equal(t, len(payload), block.Size())
}

func TestFlowDefRewriteStripsPrefix(t *testing.T) {
	p, _, _ := newPESD()
	p.Input(flowDefRef("block.mpegtspes.video"))

	def, ok := p.GetFlowDef()
	require.True(t, ok)
	got, ok := def.FlowDef()
	require.True(t, ok)
	require.Equal(t, "block.video", got)
}

func TestFlowDefMismatchThrowsError(t *testing.T) {
	p, _, events := newPESD()
	p.Input(flowDefRef("block.mpegts.video")) // missing the "pes" segment

	_, ok := p.GetFlowDef()
	require.False(t, ok)

	found := false
	for _, e := range *events {
		if e == uprobe.Error {
			found = true
		}
	}
	require.True(t, found)
}

func TestDiscontinuityFlushesReassembly(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	p, sink, events := newPESD()
	p.Input(flowDefRef("block.mpegtspes.data"))

	// Partial mandatory header: reassembly starts but never completes.
	partial := mkBlockRef(mgr, []byte{0x00, 0x00, 0x01})
	p.Input(partial)

	disc := mkBlockRef(mgr, []byte{0xbc, 0x00, 0x04})
	disc.DeleteStart()
	disc.SetDiscontinuity()
	p.Input(disc)

	require.Empty(t, sink.refs, "the partial reassembly never completed and was discarded")

	for _, e := range *events {
		require.NotEqual(t, uprobe.SyncLost, e, "sync was never acquired, so Lost() is a no-op")
	}
}

func TestControlHasNoFlowDefCommands(t *testing.T) {
	p, _, _ := newPESD()
	_, handled := p.Control(upipe.Command{Kind: upipe.CmdGetFlowDef})
	require.False(t, handled, "pesd drives flow defs through Input, not Control")
}

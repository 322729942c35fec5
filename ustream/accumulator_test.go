package ustream_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openheadend/upipe-go/ubuf"
	"github.com/openheadend/upipe-go/uref"
	"github.com/openheadend/upipe-go/ustream"
)

func mkRef(mgr *ubuf.Manager, s string) *uref.Ref {
	b := mgr.Alloc(len(s))
	span, _, _ := b.Write(0, len(s))
	copy(span, s)
	b.Unmap()
	return uref.New(b)
}

func TestAppendPromotesHeadOnFirstRef(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	var promoted []*uref.Ref
	acc := ustream.New(func(p *uref.Ref) { promoted = append(promoted, p) })

	r := mkRef(mgr, "abc")
	r.SetDtsPtsDelay(42)
	acc.Append(r)

	require.Len(t, promoted, 1)
	v, ok := promoted[0].GetDtsPtsDelay()
	require.True(t, ok)
	require.EqualValues(t, 42, v)
	require.Equal(t, 3, acc.Size())
}

func TestAppendDoesNotRepromoteWhileNonEmpty(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	count := 0
	acc := ustream.New(func(p *uref.Ref) { count++ })

	acc.Append(mkRef(mgr, "ab"))
	acc.Append(mkRef(mgr, "cd"))
	require.Equal(t, 1, count)
	require.Equal(t, 4, acc.Size())
}

func TestConsumeAcrossMultipleRefs(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	acc.Append(mkRef(mgr, "ab"))
	acc.Append(mkRef(mgr, "cd"))

	require.True(t, acc.Consume(3))
	require.Equal(t, 1, acc.Size())

	var dst [1]byte
	n := acc.Peek(0, dst[:])
	require.Equal(t, 1, n)
	require.Equal(t, byte('d'), dst[0])
}

func TestConsumeFailsWhenExceedsSize(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	acc.Append(mkRef(mgr, "ab"))
	require.False(t, acc.Consume(5))
}

func TestExtractSpansTwoRefsZeroCopy(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	acc.Append(mkRef(mgr, "abc"))
	acc.Append(mkRef(mgr, "def"))

	out, ok := acc.Extract(5)
	require.True(t, ok)
	block, _ := out.Block()
	require.Equal(t, 5, block.Size())
	// One shared segment per source Ref: each Read stops at a segment end.
	got, n := block.Read(0, 5)
	require.Equal(t, 3, n)
	require.Equal(t, "abc", string(got))
	block.Unmap()
	got2, n2 := block.Read(3, 2)
	require.Equal(t, 2, n2)
	require.Equal(t, "de", string(got2))
	block.Unmap()
	block.Free()

	// Extract does not consume: the stream still has everything buffered.
	require.Equal(t, 6, acc.Size())
}

func TestExtractCarriesPromotedDates(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	r := mkRef(mgr, "abcdef")
	r.SetDTS(uref.DomainSys, 90000, uref.DateDirect)
	acc.Append(r)

	out, ok := acc.Extract(3)
	require.True(t, ok)
	v, kind, ok2 := out.GetDTS(uref.DomainSys)
	require.True(t, ok2)
	require.EqualValues(t, 90000, v)
	require.Equal(t, uref.DateDirect, kind)
	out.Free()
}

func TestPeekReturnsZeroPastEnd(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	acc.Append(mkRef(mgr, "ab"))

	var dst [4]byte
	require.Equal(t, 0, acc.Peek(10, dst[:]))
}

func TestScanFindsNeedleAcrossRefs(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	acc.Append(mkRef(mgr, "ab"))
	acc.Append(mkRef(mgr, "Xcd"))

	off, ok := acc.Scan(0, []byte("bX"))
	require.True(t, ok)
	require.Equal(t, 1, off)
}

func TestScanNotFound(t *testing.T) {
	mgr := ubuf.NewManager(8, 0, 0, 0)
	acc := ustream.New(nil)
	acc.Append(mkRef(mgr, "abcd"))

	_, ok := acc.Scan(0, []byte("zz"))
	require.False(t, ok)
}

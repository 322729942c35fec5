package upipe_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openheadend/upipe-go/upipe"
	"github.com/openheadend/upipe-go/uprobe"
	"github.com/openheadend/upipe-go/uref"
)

type testManager struct {
	sig    uint32
	accept string
}

func (m testManager) Signature() uint32       { return m.sig }
func (m testManager) AcceptedFlowDef() string { return m.accept }

type recordingSink struct {
	received []*uref.Ref
}

func (s *recordingSink) Input(ref *uref.Ref) { s.received = append(s.received, ref) }

func TestNewBaseThrowsReadyAndStartsReady(t *testing.T) {
	var caught []uprobe.EventKind
	chain := uprobe.NewChain(uprobe.HandlerFunc(func(th uprobe.Thrower, ev uprobe.Event) bool {
		caught = append(caught, ev.Kind)
		return true
	}))
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, chain)
	require.Equal(t, upipe.StateReady, b.State())
	require.Equal(t, []uprobe.EventKind{uprobe.Ready}, caught)
}

func TestSetFlowDefAcceptsMatchingPrefix(t *testing.T) {
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, uprobe.NewChain())
	def := uref.New(nil)
	def.SetFlowDef("block.mpegtspes.")

	ok := b.SetFlowDef(def)
	require.True(t, ok)
	require.Equal(t, upipe.StateLive, b.State())

	got, ok := b.GetFlowDef()
	require.True(t, ok)
	gotDef, _ := got.FlowDef()
	require.Equal(t, "block.mpegtspes.", gotDef)
}

func TestSetFlowDefRejectsMismatchAndThrowsError(t *testing.T) {
	var caught []uprobe.EventKind
	chain := uprobe.NewChain(uprobe.HandlerFunc(func(th uprobe.Thrower, ev uprobe.Event) bool {
		caught = append(caught, ev.Kind)
		return true
	}))
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, chain)

	def := uref.New(nil)
	def.SetFlowDef("pic.")
	ok := b.SetFlowDef(def)

	require.False(t, ok)
	require.Equal(t, upipe.StateFlowErr, b.State())
	require.Contains(t, caught, uprobe.Error)
}

func TestReleaseToZeroThrowsDeadOnce(t *testing.T) {
	var deadCount int
	chain := uprobe.NewChain(uprobe.HandlerFunc(func(th uprobe.Thrower, ev uprobe.Event) bool {
		if ev.Kind == uprobe.Dead {
			deadCount++
		}
		return true
	}))
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, chain)
	b.Use()

	require.False(t, b.Release()) // still one ref left (the implicit one from NewBase)
	require.True(t, b.Release())
	require.Equal(t, upipe.StateDead, b.State())
	require.Equal(t, 1, deadCount)
}

func TestOutputEmitsFlowDefBeforeFirstData(t *testing.T) {
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, uprobe.NewChain())
	sink := &recordingSink{}
	b.Output.SetOutput(sink)

	def := uref.New(nil)
	def.SetFlowDef("block.")
	require.True(t, b.SetFlowDef(def))

	data := uref.New(nil)
	b.Output.Emit(data)

	require.Len(t, sink.received, 2)
	gotDef, _ := sink.received[0].FlowDef()
	require.Equal(t, "block.", gotDef)
	require.Same(t, data, sink.received[1])
}

func TestOutputSendsFlowDefOnlyOnceUntilChanged(t *testing.T) {
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, uprobe.NewChain())
	sink := &recordingSink{}
	b.Output.SetOutput(sink)

	def := uref.New(nil)
	def.SetFlowDef("block.")
	require.True(t, b.SetFlowDef(def))

	b.Output.Emit(uref.New(nil))
	b.Output.Emit(uref.New(nil))
	require.Len(t, sink.received, 3) // one flow-def, two data
}

func TestControlGetSetOutput(t *testing.T) {
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, uprobe.NewChain())
	sink := &recordingSink{}

	res, handled := b.Control(upipe.Command{Kind: upipe.CmdSetOutput, Output: sink})
	require.True(t, handled)
	require.True(t, res.OK)

	res2, handled2 := b.Control(upipe.Command{Kind: upipe.CmdGetOutput})
	require.True(t, handled2)
	require.Same(t, sink, res2.Output)
}

func TestAcceptsSignature(t *testing.T) {
	b := upipe.NewBase(testManager{sig: 42, accept: "block."}, uprobe.NewChain())
	require.True(t, b.AcceptsSignature(42))
	require.False(t, b.AcceptsSignature(7))
}

func TestSyncAcquiredAndLostAreIdempotent(t *testing.T) {
	var caught []uprobe.EventKind
	chain := uprobe.NewChain(uprobe.HandlerFunc(func(th uprobe.Thrower, ev uprobe.Event) bool {
		caught = append(caught, ev.Kind)
		return true
	}))
	b := upipe.NewBase(testManager{sig: 1, accept: "block."}, chain)
	caught = nil // drop the Ready event from NewBase

	b.Sync.Acquired()
	b.Sync.Acquired()
	require.Equal(t, []uprobe.EventKind{uprobe.SyncAcquired}, caught)
	require.True(t, b.Sync.IsAcquired())

	caught = nil
	b.Sync.Lost()
	b.Sync.Lost()
	require.Equal(t, []uprobe.EventKind{uprobe.SyncLost}, caught)
	require.False(t, b.Sync.IsAcquired())
}

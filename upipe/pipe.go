// Package upipe implements the pipe runtime (§3 C8, §4.5): allocation,
// input, control dispatch, lifecycle and output wiring shared by every
// concrete pipe type (framers, decapsulators, sinks).
//
// Grounded on xaction/demand/demand.go's pattern of a small embeddable
// base struct (XactDemandBase) that concrete xactions compose, and on
// uprobe_log.c / upipe.h for the probe-throwing and state-machine
// vocabulary.
package upipe

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openheadend/upipe-go/uprobe"
	"github.com/openheadend/upipe-go/uref"
	"github.com/openheadend/upipe-go/urefcount"
)

// State is a position in the pipe lifecycle state machine (§4.5):
// NEW -> READY -> (LIVE | FlowErr) -> DEAD.
type State int

const (
	StateNew State = iota
	StateReady
	StateLive
	StateFlowErr
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateLive:
		return "live"
	case StateFlowErr:
		return "flow-error"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Manager is the vtable every pipe type implements: a factory that
// allocates pipe instances bound to a probe chain, tagged by a
// signature used to route manager-specific control commands.
type Manager interface {
	// Signature identifies this manager for control-command routing
	// (§4.5: "tagged with a 32-bit signature identifying the manager
	// that owns it").
	Signature() uint32
	// AcceptedFlowDef is the flow-definition prefix this manager's
	// pipes require (e.g. "block.").
	AcceptedFlowDef() string
}

// Base is the embeddable pipe struct every concrete pipe type composes,
// the Go analogue of XactDemandBase: it carries everything generic
// (manager reference, probe chain, refcount, lifecycle state, output
// helper, sync helper) so concrete pipes only add their own private
// fields and input/control logic.
type Base struct {
	mgr    Manager
	probes *uprobe.Chain
	rc     *urefcount.Refcount
	state  State
	name   string

	Output Output
	Sync   Sync
}

var _ uprobe.Thrower = (*Base)(nil)

// NewBase allocates a pipe's generic state, bound to mgr and probes.
// It throws Ready to the probe chain before returning, per §4.5:
// "allocation emits READY to the probe chain."
func NewBase(mgr Manager, probes *uprobe.Chain) *Base {
	b := &Base{
		mgr:    mgr,
		probes: probes,
		rc:     urefcount.New(),
		state:  StateReady,
		name:   fmt.Sprintf("pipe-%08x-%s", mgr.Signature(), uuid.NewString()[:8]),
	}
	b.Output.owner = b
	b.Sync.owner = b
	b.Throw(uprobe.Event{Kind: uprobe.Ready})
	return b
}

// ProbeName implements uprobe.Thrower, used to prefix log lines.
func (b *Base) ProbeName() string { return b.name }

// Manager returns the owning manager.
func (b *Base) Manager() Manager { return b.mgr }

// State returns the pipe's current lifecycle state.
func (b *Base) State() State { return b.state }

// Throw raises ev on this pipe's probe chain.
func (b *Base) Throw(ev uprobe.Event) bool {
	if b.probes == nil {
		return false
	}
	return b.probes.Throw(b, ev)
}

// Use bumps the pipe's refcount, the Go analogue of upipe_use().
func (b *Base) Use() { b.rc.Use() }

// Release drops the pipe's refcount. When it reaches zero, the pipe
// transitions to Dead and throws Dead to the probe chain (§4.5:
// "release() when refcount reaches zero emits DEAD then cleans up").
// It returns true exactly when this call made the refcount reach zero.
func (b *Base) Release() bool {
	if !b.rc.Release() {
		return false
	}
	b.state = StateDead
	b.Throw(uprobe.Event{Kind: uprobe.Dead})
	return true
}

// SetFlowDef validates def's flow definition against the manager's
// accepted prefix and, if it matches, stores it as the pipe's current
// flow definition and moves the pipe to Live. On mismatch it moves the
// pipe to FlowErr, throws an Error event (§4.5: "throws a
// FLOW_DEF_ERROR event" -- rendered here as the generic Error event
// tagged ErrInvalid, matching uprobe's fixed error-code vocabulary),
// and returns false.
func (b *Base) SetFlowDef(def *uref.Ref) bool {
	prefix := b.mgr.AcceptedFlowDef()
	if !def.MatchDef(prefix) {
		b.state = StateFlowErr
		b.Throw(uprobe.Event{Kind: uprobe.Error, ErrCode: uprobe.ErrInvalid})
		return false
	}
	b.state = StateLive
	b.Output.setFlowDef(def)
	b.Throw(uprobe.Event{Kind: uprobe.NewFlowDef, FlowDef: def})
	return true
}

// StoreFlowDef installs def as the pipe's held output flow definition
// unconditionally and moves the pipe to Live, bypassing the prefix
// check SetFlowDef performs. Pipes that rewrite their own flow
// definition instead of simply validating it (the PES decapsulator,
// which strips a prefix rather than matching one) call this directly.
func (b *Base) StoreFlowDef(def *uref.Ref) {
	b.state = StateLive
	b.Output.setFlowDef(def)
	b.Throw(uprobe.Event{Kind: uprobe.NewFlowDef, FlowDef: def})
}

// GetFlowDef returns the pipe's held output flow definition, if any.
func (b *Base) GetFlowDef() (*uref.Ref, bool) {
	if b.Output.held == nil {
		return nil, false
	}
	return b.Output.held, true
}

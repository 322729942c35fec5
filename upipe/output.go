package upipe

import "github.com/openheadend/upipe-go/uref"

// Sink is anything downstream that accepts Refs, satisfied by another
// pipe's Input method.
type Sink interface {
	Input(ref *uref.Ref)
}

// Output is the output helper (§4.5): it stores the downstream pipe,
// the held flow-definition, and whether that flow-definition has been
// sent yet, guaranteeing a pipe never emits data before the flow
// definition describing it.
type Output struct {
	owner *Base

	downstream Sink
	held       *uref.Ref
	sent       bool
}

// SetOutput rewires this pipe's downstream sink (§4.5 control command
// set_output). A nil downstream detaches it.
func (o *Output) SetOutput(downstream Sink) {
	o.downstream = downstream
	o.sent = false
}

// GetOutput returns the currently wired downstream sink, or nil.
func (o *Output) GetOutput() Sink { return o.downstream }

func (o *Output) setFlowDef(def *uref.Ref) {
	o.held = def
	o.sent = false
}

// Emit dispatches ref downstream, first sending an updated flow-def
// record if the held definition changed since it was last sent (§4.5
// Output helper, rule 1-2). Emit consumes ref: the caller must not use
// it again.
func (o *Output) Emit(ref *uref.Ref) {
	if o.downstream == nil {
		ref.Free()
		return
	}
	if o.held != nil && !o.sent {
		o.downstream.Input(o.held.Dup())
		o.sent = true
	}
	o.downstream.Input(ref)
}

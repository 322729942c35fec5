package upipe

import "github.com/openheadend/upipe-go/uref"

// CommandKind enumerates the generic control commands every pipe
// understands (§4.5), plus Local for manager-specific extensions.
type CommandKind int

const (
	CmdGetFlowDef CommandKind = iota
	CmdSetFlowDef
	CmdGetOutput
	CmdSetOutput
	CmdLocal
)

// Command is a control message sent to a pipe via Control. Local
// commands carry a manager signature so a pipe can reject a command
// meant for a different manager type (§4.5: "callers mismatching the
// signature get a 'not handled' result").
type Command struct {
	Kind CommandKind

	FlowDef   *uref.Ref // SetFlowDef
	Output    Sink       // SetOutput

	Signature uint32      // Local
	LocalKind int         // Local
	Args      interface{} // Local
}

// Result carries a control command's outcome plus any returned value.
type Result struct {
	OK      bool
	FlowDef *uref.Ref // GetFlowDef
	Output  Sink       // GetOutput
}

// Control dispatches the generic commands common to every pipe. It
// returns (result, true) if it handled cmd, or (Result{}, false) if
// cmd is a Local command belonging to a different manager, or a Local
// command this Base alone cannot resolve -- callers must fall through
// to the concrete pipe's own Control for Local commands matching its
// signature.
func (b *Base) Control(cmd Command) (Result, bool) {
	switch cmd.Kind {
	case CmdGetFlowDef:
		def, ok := b.GetFlowDef()
		return Result{OK: ok, FlowDef: def}, true
	case CmdSetFlowDef:
		ok := b.SetFlowDef(cmd.FlowDef)
		return Result{OK: ok}, true
	case CmdGetOutput:
		return Result{OK: true, Output: b.Output.GetOutput()}, true
	case CmdSetOutput:
		b.Output.SetOutput(cmd.Output)
		return Result{OK: true}, true
	default:
		return Result{}, false
	}
}

// AcceptsSignature reports whether a Local command tagged sig belongs
// to this pipe's manager.
func (b *Base) AcceptsSignature(sig uint32) bool {
	return b.mgr.Signature() == sig
}

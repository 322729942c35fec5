// Package uprobe implements the out-of-band event chain (§3 C7): pipes
// throw events upward instead of calling back into a fixed observer
// interface, and each probe in the chain decides whether it has
// "handled" the event before letting it "pass" to the next one.
//
// Grounded on uprobe_log.c's fixed event enum and the helper/throw
// dispatch pattern; the Go rendering replaces uprobe's va_list payloads
// with a typed Event struct.
package uprobe

import "github.com/openheadend/upipe-go/uref"

// EventKind enumerates the fixed set of events a pipe may throw, mirroring
// upipe.h's enum uprobe_event.
type EventKind int

const (
	Ready EventKind = iota
	Dead
	Fatal
	Error
	SourceEnd
	SinkEnd
	NeedUrefMgr
	NeedUpumpMgr
	NeedUclockMgr
	NeedUbufMgr
	NewFlowDef
	NewRap
	SplitUpdate
	SyncAcquired
	SyncLost
	ClockRef
	ClockTS
	Log
)

func (k EventKind) String() string {
	switch k {
	case Ready:
		return "ready"
	case Dead:
		return "dead"
	case Fatal:
		return "fatal"
	case Error:
		return "error"
	case SourceEnd:
		return "source end"
	case SinkEnd:
		return "sink end"
	case NeedUrefMgr:
		return "need uref manager"
	case NeedUpumpMgr:
		return "need upump manager"
	case NeedUclockMgr:
		return "need uclock"
	case NeedUbufMgr:
		return "need ubuf manager"
	case NewFlowDef:
		return "new flow def"
	case NewRap:
		return "new random access point"
	case SplitUpdate:
		return "split update"
	case SyncAcquired:
		return "sync acquired"
	case SyncLost:
		return "sync lost"
	case ClockRef:
		return "clock ref"
	case ClockTS:
		return "clock timestamp"
	case Log:
		return "log"
	default:
		return "unknown"
	}
}

// ErrCode classifies the payload of a Fatal or Error event.
type ErrCode int

const (
	ErrAlloc ErrCode = iota
	ErrUpump
	ErrInvalid
	ErrExternal
)

func (c ErrCode) String() string {
	switch c {
	case ErrAlloc:
		return "allocation error"
	case ErrUpump:
		return "upump error"
	case ErrInvalid:
		return "invalid argument"
	case ErrExternal:
		return "external error"
	default:
		return "unknown error"
	}
}

// LogLevel is the severity of a Log event's message.
type LogLevel int

const (
	LevelVerbose LogLevel = iota
	LevelDebug
	LevelNotice
	LevelWarning
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelDebug:
		return "debug"
	case LevelNotice:
		return "notice"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "notice"
	}
}

// Event is the payload a pipe throws up its probe chain. Only the fields
// relevant to Kind are populated, mirroring the original's va_list args
// keyed off the event tag.
type Event struct {
	Kind EventKind

	ErrCode ErrCode // Fatal, Error
	FlowDef *uref.Ref // NewFlowDef, NeedUbufMgr
	Level   LogLevel  // Log
	Message string    // Log
}

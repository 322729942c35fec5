package uprobe

import (
	"github.com/golang/glog"

	"github.com/openheadend/upipe-go/uref"
)

// LogProbe is the fall-back probe that logs every event it is
// configured to watch, grounded on uprobe_log.c: a bitmap of events to
// log plus a flag for whether to log anything outside that set, and a
// configured glog verbosity level for informational lines. Fatal and
// Error events are always logged with glog.Errorf, and Log events at
// the event's own level.
type LogProbe struct {
	level          glog.Level
	watch          map[EventKind]bool
	logUnwatched   bool
}

// NewLogProbe returns a LogProbe that logs at level every event kind in
// events (or every event, if events is empty), and additionally logs
// events outside that set when logUnwatched is true.
func NewLogProbe(level glog.Level, logUnwatched bool, events ...EventKind) *LogProbe {
	watch := make(map[EventKind]bool, len(events))
	for _, e := range events {
		watch[e] = true
	}
	return &LogProbe{level: level, watch: watch, logUnwatched: logUnwatched}
}

var _ Handler = (*LogProbe)(nil)

// Catch implements Handler. It never reports handled: a logging probe
// is meant to observe, not to consume (uprobe_log_throw always
// `return false` after logging), so it always passes the event on to
// the rest of the chain.
func (p *LogProbe) Catch(thrower Thrower, ev Event) bool {
	if len(p.watch) > 0 && !p.watch[ev.Kind] {
		if !p.logUnwatched {
			return false
		}
	}

	name := "<anonymous>"
	if thrower != nil {
		name = thrower.ProbeName()
	}

	switch ev.Kind {
	case Ready:
		glog.V(p.level).Infof("%s: probe caught ready event", name)
	case Dead:
		glog.V(p.level).Infof("%s: probe caught dead event", name)
	case Fatal:
		glog.Errorf("%s: probe caught fatal error: %s", name, ev.ErrCode)
	case Error:
		glog.Errorf("%s: probe caught error: %s", name, ev.ErrCode)
	case SourceEnd:
		glog.V(p.level).Infof("%s: probe caught source end", name)
	case SinkEnd:
		glog.V(p.level).Infof("%s: probe caught sink end", name)
	case NeedUrefMgr:
		glog.V(p.level).Infof("%s: probe caught need uref manager", name)
	case NeedUpumpMgr:
		glog.V(p.level).Infof("%s: probe caught need upump manager", name)
	case NeedUclockMgr:
		glog.V(p.level).Infof("%s: probe caught need uclock", name)
	case NeedUbufMgr:
		glog.V(p.level).Infof("%s: probe caught need ubuf manager for flow def %q", name, flowDefString(ev.FlowDef))
	case NewFlowDef:
		glog.V(p.level).Infof("%s: probe caught new flow def %q", name, flowDefString(ev.FlowDef))
	case NewRap:
		glog.V(p.level).Infof("%s: probe caught new random access point", name)
	case SplitUpdate:
		glog.V(p.level).Infof("%s: probe caught split update", name)
	case SyncAcquired:
		glog.V(p.level).Infof("%s: probe caught sync acquired", name)
	case SyncLost:
		glog.V(p.level).Infof("%s: probe caught sync lost", name)
	case ClockRef:
		glog.V(p.level).Infof("%s: probe caught clock ref", name)
	case ClockTS:
		glog.V(p.level).Infof("%s: probe caught clock timestamp", name)
	case Log:
		logAtLevel(ev.Level, name, ev.Message)
	default:
		glog.V(p.level).Infof("%s: probe caught unknown event %s", name, ev.Kind)
	}
	return false
}

func flowDefString(r *uref.Ref) string {
	if r == nil {
		return "[invalid]"
	}
	if def, ok := r.FlowDef(); ok {
		return def
	}
	return "[invalid]"
}

func logAtLevel(level LogLevel, name, msg string) {
	switch level {
	case LevelError:
		glog.Errorf("%s: %s", name, msg)
	case LevelWarning:
		glog.Warningf("%s: %s", name, msg)
	default:
		glog.Infof("%s: %s", name, msg)
	}
}

// Package uref implements the record type (§3 C6): a (Buf, Dict) pair
// plus the flow-definition and clock helpers every pipe uses to read and
// rebase timestamps. A Ref owns its Buf until handed to a downstream
// input() call; Dup is cheap because it only clones the Dict and bumps
// the Buf's refcount (§3: "dup() is cheap (shares the underlying Buf)").
package uref

import (
	"strings"

	"github.com/openheadend/upipe-go/dict"
	"github.com/openheadend/upipe-go/ubuf"
)

// Domain is one of the three clock time bases a date can be expressed in.
type Domain int

const (
	DomainSys Domain = iota
	DomainProg
	DomainOrig
)

func (d Domain) name() string {
	switch d {
	case DomainProg:
		return "prog"
	case DomainOrig:
		return "orig"
	default:
		return "sys"
	}
}

// DateType tags how a clock value should be interpreted.
type DateType int

const (
	DateNone DateType = iota
	DateDirect
	DateCR
)

const (
	keyFlowDef        = "f.def"
	keyDiscontinuity  = "f.discontinuity"
	keyDtsPtsDelay    = "k.dtspts_delay"
	keyPTSOrig        = "k.pts_orig"
	keyOctetrate      = "f.octetrate"
	keyStart          = "b.start" // packet-start marker (TS/PES unit boundary)
)

func keyDTS(d Domain) string     { return "k." + d.name() + ".dts" }
func keyDTSType(d Domain) string { return "k." + d.name() + ".dts.type" }

// Ref is a record: an optional payload Buf plus an attribute Dict.
type Ref struct {
	Buf  *ubuf.Block
	Dict dict.Dict
}

// New wraps buf (which may be nil, for header-only/control records) in a
// fresh Ref with an empty dictionary.
func New(buf *ubuf.Block) *Ref {
	return &Ref{Buf: buf}
}

// Dup returns an independent Ref: the Dict is deep-copied and the Buf (if
// any) is O(1)-duplicated, sharing backing storage.
func (r *Ref) Dup() *Ref {
	out := &Ref{Dict: *r.Dict.Dup()}
	if r.Buf != nil {
		out.Buf = r.Buf.Dup()
	}
	return out
}

// Free releases the Ref's Buf, if any. The Dict needs no explicit
// release (it owns no pooled resources).
func (r *Ref) Free() {
	if r.Buf != nil {
		r.Buf.Free()
		r.Buf = nil
	}
}

// Block returns the Ref's Buf and true, or (nil, false) if this Ref
// carries no payload (a pure flow-definition or control record).
func (r *Ref) Block() (*ubuf.Block, bool) {
	return r.Buf, r.Buf != nil
}

// FlowDef returns the flow-definition string, if set.
func (r *Ref) FlowDef() (string, bool) { return r.Dict.GetString(keyFlowDef) }

// SetFlowDef sets the flow-definition string (§3: e.g.
// "block.mpegtspes.").
func (r *Ref) SetFlowDef(def string) { r.Dict.SetString(keyFlowDef, def) }

// MatchDef reports whether this Ref's flow definition starts with
// prefix, the standard compatibility check (§6).
func (r *Ref) MatchDef(prefix string) bool {
	def, ok := r.FlowDef()
	return ok && strings.HasPrefix(def, prefix)
}

// GetDTS returns the DTS value and type tag for domain.
func (r *Ref) GetDTS(domain Domain) (value uint64, kind DateType, ok bool) {
	v, ok1 := r.Dict.GetUint(keyDTS(domain))
	t, ok2 := r.Dict.GetUint(keyDTSType(domain))
	if !ok1 || !ok2 {
		return 0, DateNone, false
	}
	return v, DateType(t), true
}

// SetDTS sets the DTS value and type tag for domain.
func (r *Ref) SetDTS(domain Domain, value uint64, kind DateType) {
	r.Dict.SetUint(keyDTS(domain), value)
	r.Dict.SetUint(keyDTSType(domain), uint64(kind))
}

// DeleteDTS clears the DTS value for domain, setting type to NONE --
// the Go analogue of uref_clock_set_date_*(uref, UINT64_MAX,
// UREF_DATE_NONE).
func (r *Ref) DeleteDTS(domain Domain) {
	r.Dict.Delete(keyDTS(domain))
	r.Dict.Delete(keyDTSType(domain))
}

// GetPTSOrig returns the original-domain PTS set by the PES decapsulator.
func (r *Ref) GetPTSOrig() (uint64, bool) { return r.Dict.GetUint(keyPTSOrig) }

// SetPTSOrig sets the original-domain PTS.
func (r *Ref) SetPTSOrig(v uint64) { r.Dict.SetUint(keyPTSOrig, v) }

// SetOctetrate sets the flow's byte rate, as derived from the A/52
// bitrate table for constant-bitrate formats.
func (r *Ref) SetOctetrate(v uint64) { r.Dict.SetUint(keyOctetrate, v) }

// GetOctetrate returns the flow's byte rate, if set.
func (r *Ref) GetOctetrate() (uint64, bool) { return r.Dict.GetUint(keyOctetrate) }

// GetDtsPtsDelay returns the DTS-to-PTS delay in clock ticks.
func (r *Ref) GetDtsPtsDelay() (uint64, bool) { return r.Dict.GetUint(keyDtsPtsDelay) }

// SetDtsPtsDelay sets the DTS-to-PTS delay.
func (r *Ref) SetDtsPtsDelay(v uint64) { r.Dict.SetUint(keyDtsPtsDelay, v) }

// DeleteDtsPtsDelay clears the DTS-to-PTS delay.
func (r *Ref) DeleteDtsPtsDelay() { r.Dict.Delete(keyDtsPtsDelay) }

// Discontinuity reports whether the discontinuity flag is set.
func (r *Ref) Discontinuity() bool { return r.Dict.GetVoid(keyDiscontinuity) }

// SetDiscontinuity sets the discontinuity flag.
func (r *Ref) SetDiscontinuity() { r.Dict.SetVoid(keyDiscontinuity) }

// ClearDiscontinuity clears the discontinuity flag.
func (r *Ref) ClearDiscontinuity() { r.Dict.Delete(keyDiscontinuity) }

// Start reports whether this Ref marks the start of a higher-level unit
// (a TS packet carrying a PES unit-start, for instance).
func (r *Ref) Start() bool { return r.Dict.GetVoid(keyStart) }

// SetStart marks this Ref as a unit start.
func (r *Ref) SetStart() { r.Dict.SetVoid(keyStart) }

// DeleteStart clears the unit-start marker.
func (r *Ref) DeleteStart() { r.Dict.Delete(keyStart) }

// FlushDates resets DTS and dts_pts_delay across every domain, matching
// upipe_a52f_flush_dates: "From now on, PTS declaration only impacts the
// next frame."
func (r *Ref) FlushDates() {
	r.DeleteDTS(DomainSys)
	r.DeleteDTS(DomainProg)
	r.DeleteDTS(DomainOrig)
	r.DeleteDtsPtsDelay()
}

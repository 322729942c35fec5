package upipe

import "github.com/openheadend/upipe-go/uprobe"

// Sync is the sync helper (§4.7) used by pipes that resynchronise on
// sync words, such as framers: it tracks whether the pipe is currently
// locked onto the stream and throws SyncAcquired/SyncLost exactly on
// the edges, never redundantly.
type Sync struct {
	owner    *Base
	acquired bool
}

// Acquired reports sync acquisition, idempotently: the first call after
// a loss (or at startup) throws SyncAcquired; subsequent calls while
// already acquired are a no-op.
func (s *Sync) Acquired() {
	if s.acquired {
		return
	}
	s.acquired = true
	s.owner.Throw(uprobe.Event{Kind: uprobe.SyncAcquired})
}

// Lost reports sync loss, idempotently: the first call after being
// acquired throws SyncLost; subsequent calls while already lost are a
// no-op.
func (s *Sync) Lost() {
	if !s.acquired {
		return
	}
	s.acquired = false
	s.owner.Throw(uprobe.Event{Kind: uprobe.SyncLost})
}

// IsAcquired reports the current sync state.
func (s *Sync) IsAcquired() bool { return s.acquired }

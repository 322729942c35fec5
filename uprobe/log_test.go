package uprobe_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openheadend/upipe-go/uprobe"
)

func TestLogProbeNeverHandles(t *testing.T) {
	p := uprobe.NewLogProbe(0, true)
	handled := p.Catch(fakePipe{"src"}, uprobe.Event{Kind: uprobe.Ready})
	require.False(t, handled, "a log probe observes, it never consumes")
}

func TestLogProbeFiltersToWatchedEvents(t *testing.T) {
	p := uprobe.NewLogProbe(0, false, uprobe.SyncAcquired)
	require.False(t, p.Catch(fakePipe{"src"}, uprobe.Event{Kind: uprobe.Ready}))
	require.False(t, p.Catch(fakePipe{"src"}, uprobe.Event{Kind: uprobe.SyncAcquired}))
}

func TestLogProbeHandlesNilThrower(t *testing.T) {
	p := uprobe.NewLogProbe(0, true)
	require.NotPanics(t, func() {
		p.Catch(nil, uprobe.Event{Kind: uprobe.Dead})
	})
}

func TestLogProbeLogEventCarriesMessage(t *testing.T) {
	p := uprobe.NewLogProbe(0, true)
	require.NotPanics(t, func() {
		p.Catch(fakePipe{"a52"}, uprobe.Event{
			Kind:    uprobe.Log,
			Level:   uprobe.LevelWarning,
			Message: "BSID mismatch, discarding frame",
		})
	})
}

package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLivenessReapsStaleMirror is scenario 6 / invariant P7: a device
// that stops announcing must be removed from peers' mirror tables once
// LivenessTimeout elapses. This test checks the device mirror's removal.
func TestLivenessReapsStaleMirror(t *testing.T) {
	h := newHarness(t, "watcher", "transient")
	h.admins[0].cfg.LivenessTimeout = 200 * time.Millisecond
	h.admins[0].cfg.AnnouncementInterval = 50 * time.Millisecond
	registerAll(t, h)

	transientName := h.admins[1].DeviceName()
	_, seen := h.dbs[0].Device(transientName)
	require.True(t, seen, "watcher should have a mirror of transient before it goes silent")

	// transient stops ticking/announcing entirely (simulating a crash),
	// so watcher never hears another /device from it. Only the watcher
	// is driven forward from here.
	const step = 20 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < 2*time.Second; elapsed += step {
		h.now = h.now.Add(step)
		h.admins[0].Tick(h.now)
		h.pump()
	}

	_, stillThere := h.dbs[0].Device(transientName)
	require.False(t, stillThere, "stale mirror should have been reaped")
}

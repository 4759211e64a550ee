package admin

import (
	"testing"
	"time"

	"github.com/sigmap/sigmap/internal/wire"
	"github.com/stretchr/testify/require"
)

func registerAll(t *testing.T, h *harness) {
	h.run(3 * time.Second)
	for i, a := range h.admins {
		require.Equalf(t, StateRegistered, a.State(), "device %d failed to register", i)
	}
}

func TestLinkNegotiationCreatesLinkOnBothSides(t *testing.T) {
	h := newHarness(t, "src", "dst")
	registerAll(t, h)

	srcName := h.admins[0].DeviceName()
	dstName := h.admins[1].DeviceName()

	h.admins[0].RequestLink(dstName)
	h.run(2 * time.Second)

	_, srcHas := h.dbs[0].Link(srcName, dstName)
	_, dstHas := h.dbs[1].Link(srcName, dstName)
	require.True(t, srcHas, "requester should record the link")
	require.True(t, dstHas, "destination should record the link")

	require.Empty(t, h.admins[0].pendingLinks, "link request should no longer be pending")
}

func TestUnlinkRemovesLink(t *testing.T) {
	h := newHarness(t, "src", "dst")
	registerAll(t, h)
	dstName := h.admins[1].DeviceName()
	srcName := h.admins[0].DeviceName()

	h.admins[0].RequestLink(dstName)
	h.run(2 * time.Second)
	_, ok := h.dbs[0].Link(srcName, dstName)
	require.True(t, ok)

	h.admins[0].send("/unlink", wire.NewBuilder().Strs(srcName, dstName).Args())
	h.run(time.Second)

	_, srcHas := h.dbs[0].Link(srcName, dstName)
	_, dstHas := h.dbs[1].Link(srcName, dstName)
	require.False(t, srcHas)
	require.False(t, dstHas)
}

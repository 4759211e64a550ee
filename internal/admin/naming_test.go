package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamingDistinctIdentifiersRegisterIndependently(t *testing.T) {
	h := newHarness(t, "alpha", "beta")
	h.run(3 * time.Second)

	require.Equal(t, StateRegistered, h.admins[0].State())
	require.Equal(t, StateRegistered, h.admins[1].State())
	assert.Equal(t, "alpha.1", h.admins[0].DeviceName())
	assert.Equal(t, "beta.1", h.admins[1].DeviceName())
}

// TestNamingCollisionAssignsDistinctOrdinals is scenario 3 / invariant
// P2: three devices sharing one identifier must converge on three
// distinct "<identifier>.<ordinal>" names, never colliding.
func TestNamingCollisionAssignsDistinctOrdinals(t *testing.T) {
	h := newHarness(t, "node", "node", "node")
	h.run(6 * time.Second)

	names := map[string]bool{}
	for i, a := range h.admins {
		require.Equalf(t, StateRegistered, a.State(), "device %d failed to register", i)
		require.Falsef(t, names[a.DeviceName()], "duplicate name %s", a.DeviceName())
		names[a.DeviceName()] = true
	}
	assert.Len(t, names, 3)
}

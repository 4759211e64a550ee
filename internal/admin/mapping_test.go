package admin

import (
	"testing"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/stretchr/testify/require"
)

func registerSignal(db interface {
	AddOrUpdateSignal(*model.Signal)
}, device, name string, dir model.Direction) {
	db.AddOrUpdateSignal(&model.Signal{
		DeviceName: device, Name: name, Direction: dir,
		Type: model.TypeFloat, Length: 1, NumInstances: 1,
	})
}

func TestMappingNegotiationReachesReadyOnBothSides(t *testing.T) {
	h := newHarness(t, "src", "dst")
	registerAll(t, h)

	srcName := h.admins[0].DeviceName()
	dstName := h.admins[1].DeviceName()
	registerSignal(h.dbs[0], srcName, "out1", model.DirectionOutput)
	registerSignal(h.dbs[1], dstName, "in1", model.DirectionInput)

	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: srcName, SignalName: "out1"}},
		DstSlot:  model.Slot{DeviceName: dstName, SignalName: "in1"},
		Mode:     model.ModeBypass,
	}
	h.admins[0].ProposeMapping(m)
	h.run(2 * time.Second)

	srcMapping, srcOK := h.dbs[0].Mapping("m1")
	dstMapping, dstOK := h.dbs[1].Mapping("m1")
	require.True(t, srcOK)
	require.True(t, dstOK)
	require.Equal(t, model.StatusReady, srcMapping.Status)
	require.Equal(t, model.StatusReady, dstMapping.Status)
	require.Empty(t, h.admins[0].pendingMappings)
	require.Empty(t, h.admins[1].pendingMappings)
}

func TestMappingToUnknownSignalNeverBecomesReady(t *testing.T) {
	h := newHarness(t, "src", "dst")
	registerAll(t, h)

	srcName := h.admins[0].DeviceName()
	dstName := h.admins[1].DeviceName()
	registerSignal(h.dbs[0], srcName, "out1", model.DirectionOutput)
	// dst never registers "in1" locally.

	m := &model.Mapping{
		ID:       "m2",
		SrcSlots: []model.Slot{{DeviceName: srcName, SignalName: "out1"}},
		DstSlot:  model.Slot{DeviceName: dstName, SignalName: "in1"},
		Mode:     model.ModeBypass,
	}
	h.admins[0].ProposeMapping(m)
	h.run(1 * time.Second)

	_, dstOK := h.dbs[1].Mapping("m2")
	require.False(t, dstOK, "destination never reconciled the mapping")
	require.NotEqual(t, model.StatusReady, m.Status)
}

func TestMapModifyRevertsOnTimeout(t *testing.T) {
	h := newHarness(t, "src", "dst")
	registerAll(t, h)
	srcName := h.admins[0].DeviceName()
	dstName := h.admins[1].DeviceName()
	registerSignal(h.dbs[0], srcName, "out1", model.DirectionOutput)
	registerSignal(h.dbs[1], dstName, "in1", model.DirectionInput)

	m := &model.Mapping{
		ID:       "m3",
		SrcSlots: []model.Slot{{DeviceName: srcName, SignalName: "out1"}},
		DstSlot:  model.Slot{DeviceName: dstName, SignalName: "in1"},
		Mode:     model.ModeBypass,
	}
	h.admins[0].ProposeMapping(m)
	h.run(2 * time.Second)
	require.Equal(t, model.StatusReady, m.Status)

	// Sever the destination from the fabric so the modify ack never
	// arrives, forcing the timeout-revert path.
	h.buses[1].Close()

	h.admins[0].ModifyMapping(m, func(mm *model.Mapping) { mm.Muted = true })
	require.True(t, m.Muted)

	h.run(3 * time.Second)
	require.False(t, m.Muted, "unacked modification should revert")
	require.Equal(t, model.StatusReady, m.Status)
	require.Empty(t, h.admins[0].pendingMappings)
}

// TestCalibrateConvergesAcrossDevices is invariant P5: as the source
// device expands its calibrate-mode mapping's SrcMin/SrcMax from
// successive samples, those extremes reach the destination's mirror of
// the mapping via periodic /map/calibrate advertisement, and the mirror
// never narrows when a later advertisement carries a narrower range.
func TestCalibrateConvergesAcrossDevices(t *testing.T) {
	h := newHarness(t, "src", "dst")
	registerAll(t, h)
	srcName := h.admins[0].DeviceName()
	dstName := h.admins[1].DeviceName()
	registerSignal(h.dbs[0], srcName, "out1", model.DirectionOutput)
	registerSignal(h.dbs[1], dstName, "in1", model.DirectionInput)

	m := &model.Mapping{
		ID:       "m4",
		SrcSlots: []model.Slot{{DeviceName: srcName, SignalName: "out1"}},
		DstSlot:  model.Slot{DeviceName: dstName, SignalName: "in1"},
		Mode:     model.ModeCalibrate,
		DstMin:   model.Defined([]float64{0}),
		DstMax:   model.Defined([]float64{1}),
	}
	h.admins[0].ProposeMapping(m)
	h.run(2 * time.Second)
	require.Equal(t, model.StatusReady, m.Status)

	srcMapping, ok := h.dbs[0].Mapping("m4")
	require.True(t, ok)
	srcMapping.ExpandCalibration([]float64{2})
	srcMapping.ExpandCalibration([]float64{-3})
	h.run(2 * time.Second)

	dstMapping, ok := h.dbs[1].Mapping("m4")
	require.True(t, ok)
	require.Equal(t, []float64{-3}, dstMapping.SrcMin.Get())
	require.Equal(t, []float64{2}, dstMapping.SrcMax.Get())

	// A narrower, stale sample must never shrink the mirror's envelope.
	srcMapping.SrcMin = model.Defined([]float64{-1})
	srcMapping.SrcMax = model.Defined([]float64{1})
	h.run(2 * time.Second)

	require.Equal(t, []float64{-3}, dstMapping.SrcMin.Get())
	require.Equal(t, []float64{2}, dstMapping.SrcMax.Get())
}

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigmap/sigmap/internal/model"
)

func TestDeviceCallbacksFireOnNewModifiedRemoved(t *testing.T) {
	db := NewDatabase()

	var events []Event
	db.OnDeviceChange(func(d *model.Device, evt Event, ctx any) {
		events = append(events, evt)
	}, nil)

	dev := &model.Device{OrdinalName: "synth.1"}
	db.AddOrUpdateDevice(dev)
	db.AddOrUpdateDevice(dev)
	db.RemoveDevice("synth.1")

	require.Equal(t, []Event{EventNew, EventModified, EventRemoved}, events)
}

func TestCallbackRegistrationIdempotentByIdentity(t *testing.T) {
	db := NewDatabase()
	calls := 0
	cb := func(d *model.Device, evt Event, ctx any) { calls++ }

	db.OnDeviceChange(cb, "ctx-a")
	db.OnDeviceChange(cb, "ctx-a") // same (fn, ctx) identity: idempotent

	db.AddOrUpdateDevice(&model.Device{OrdinalName: "a.1"})
	require.Equal(t, 1, calls)
}

func TestCursorSkipsRecordsRemovedDuringIteration(t *testing.T) {
	db := NewDatabase()
	db.AddOrUpdateDevice(&model.Device{OrdinalName: "a.1"})
	db.AddOrUpdateDevice(&model.Device{OrdinalName: "b.1"})
	db.AddOrUpdateDevice(&model.Device{OrdinalName: "c.1"})

	cursor := db.AllDevices()
	defer cursor.Release()

	first, ok := cursor.Next()
	require.True(t, ok)
	require.Equal(t, "a.1", first.OrdinalName)

	db.RemoveDevice("b.1")

	second, ok := cursor.Next()
	require.True(t, ok)
	require.Equal(t, "c.1", second.OrdinalName, "b.1 was removed mid-iteration and must be skipped, not returned stale")

	_, ok = cursor.Next()
	require.False(t, ok)
}

func TestDevicesMatchingGlob(t *testing.T) {
	db := NewDatabase()
	db.AddOrUpdateDevice(&model.Device{OrdinalName: "synth.1"})
	db.AddOrUpdateDevice(&model.Device{OrdinalName: "synth.2"})
	db.AddOrUpdateDevice(&model.Device{OrdinalName: "controller.1"})

	cursor := db.DevicesMatching("synth.*")
	defer cursor.Release()

	var names []string
	for {
		d, ok := cursor.Next()
		if !ok {
			break
		}
		names = append(names, d.OrdinalName)
	}
	require.ElementsMatch(t, []string{"synth.1", "synth.2"}, names)
}

func TestMappingsByDeviceAndSourceSignal(t *testing.T) {
	db := NewDatabase()
	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: "synth.1", SignalName: "outsig"}},
		DstSlot:  model.Slot{DeviceName: "mixer.1", SignalName: "insig"},
	}
	db.AddOrUpdateMapping(m)

	cursor := db.MappingsByDevice("synth.1")
	defer cursor.Release()
	_, ok := cursor.Next()
	require.True(t, ok)

	cursor2 := db.MappingsBySourceSignal("synth.1/outsig")
	defer cursor2.Release()
	found, ok := cursor2.Next()
	require.True(t, ok)
	require.Equal(t, "m1", found.ID)
}

func TestRemoveDeviceSignalsFiresRemovedForEachSignal(t *testing.T) {
	db := NewDatabase()
	db.AddOrUpdateSignal(&model.Signal{DeviceName: "synth.1", Name: "a", Direction: model.DirectionOutput})
	db.AddOrUpdateSignal(&model.Signal{DeviceName: "synth.1", Name: "b", Direction: model.DirectionOutput})
	db.AddOrUpdateSignal(&model.Signal{DeviceName: "other.1", Name: "c", Direction: model.DirectionOutput})

	removed := 0
	db.OnSignalChange(func(s *model.Signal, evt Event, ctx any) {
		if evt == EventRemoved {
			removed++
		}
	}, nil)

	db.RemoveDeviceSignals("synth.1")
	require.Equal(t, 2, removed)

	_, stillThere := db.Signal("other.1", "c", model.DirectionOutput)
	require.True(t, stillThere)
}

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/store"
)

type fakeEmitter struct {
	calls []emitCall
}

type emitCall struct {
	mappingID  string
	instanceID int
	values     []float64
}

func (f *fakeEmitter) EmitSample(m *model.Mapping, dst *model.Signal, instanceID int, values []float64, timetag int64) error {
	f.calls = append(f.calls, emitCall{mappingID: m.ID, instanceID: instanceID, values: append([]float64(nil), values...)})
	return nil
}

func setup(t *testing.T) (*store.Database, *fakeEmitter, *Router) {
	db := store.NewDatabase()
	db.AddOrUpdateSignal(&model.Signal{DeviceName: "src.1", Name: "out", Direction: model.DirectionOutput, Type: model.TypeFloat, Length: 1})
	db.AddOrUpdateSignal(&model.Signal{DeviceName: "dst.1", Name: "in", Direction: model.DirectionInput, Type: model.TypeFloat, Length: 1})
	emitter := &fakeEmitter{}
	r := New(db, "src.1", emitter)
	return db, emitter, r
}

// TestLinearClampBoundaryClosure is spec §8 scenario 4 / invariant P4.
func TestLinearClampBoundaryClosure(t *testing.T) {
	db, emitter, r := setup(t)
	sig, _ := db.Signal("src.1", "out", model.DirectionOutput)

	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: "src.1", SignalName: "out"}},
		DstSlot:  model.Slot{DeviceName: "dst.1", SignalName: "in"},
		Mode:     model.ModeLinear,
		SrcMin:   model.Defined([]float64{0}),
		SrcMax:   model.Defined([]float64{10}),
		DstMin:   model.Defined([]float64{0}),
		DstMax:   model.Defined([]float64{1}),
		BoundMin: model.BoundClamp,
		BoundMax: model.BoundClamp,
		Status:   model.StatusReady,
	}
	db.AddOrUpdateMapping(m)

	for _, sample := range []float64{-5, 0, 5, 10, 15} {
		r.Dispatch(sig, []float64{sample}, 0, 0)
	}

	require.Len(t, emitter.calls, 5)
	want := []float64{0.0, 0.0, 0.5, 1.0, 1.0}
	for i, call := range emitter.calls {
		require.InDelta(t, want[i], call.values[0], 1e-9)
	}
}

func TestScopeGateBlocksUnadmittedDevice(t *testing.T) {
	db, emitter, _ := setup(t)
	sig, _ := db.Signal("src.1", "out", model.DirectionOutput)

	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: "src.1", SignalName: "out"}},
		DstSlot:  model.Slot{DeviceName: "dst.1", SignalName: "in"},
		Mode:     model.ModeBypass,
		Scope:    map[string]struct{}{"someone-else.1": {}},
		Status:   model.StatusReady,
	}
	db.AddOrUpdateMapping(m)

	r := New(db, "src.1", emitter)
	r.Dispatch(sig, []float64{3.0}, 0, 0)

	require.Empty(t, emitter.calls, "scope should gate out a device not in it (P6)")
}

func TestBypassDelivery(t *testing.T) {
	db, emitter, r := setup(t)
	sig, _ := db.Signal("src.1", "out", model.DirectionOutput)

	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: "src.1", SignalName: "out"}},
		DstSlot:  model.Slot{DeviceName: "dst.1", SignalName: "in"},
		Mode:     model.ModeBypass,
		Status:   model.StatusReady,
	}
	db.AddOrUpdateMapping(m)

	r.Dispatch(sig, []float64{3.0}, 0, 0)

	require.Len(t, emitter.calls, 1)
	require.Equal(t, []float64{3.0}, emitter.calls[0].values)
}

func TestMuteBoundDropsSample(t *testing.T) {
	db, emitter, r := setup(t)
	sig, _ := db.Signal("src.1", "out", model.DirectionOutput)

	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: "src.1", SignalName: "out"}},
		DstSlot:  model.Slot{DeviceName: "dst.1", SignalName: "in"},
		Mode:     model.ModeLinear,
		SrcMin:   model.Defined([]float64{0}),
		SrcMax:   model.Defined([]float64{10}),
		DstMin:   model.Defined([]float64{0}),
		DstMax:   model.Defined([]float64{1}),
		BoundMin: model.BoundMute,
		BoundMax: model.BoundMute,
		Status:   model.StatusReady,
	}
	db.AddOrUpdateMapping(m)

	r.Dispatch(sig, []float64{-5}, 0, 0)
	require.Empty(t, emitter.calls)
}

func TestFoldAndWrap(t *testing.T) {
	require.InDelta(t, 2.0, fold(12, 0, 10), 1e-9)
	require.InDelta(t, 2.0, wrap(12, 0, 10), 1e-9)
}

func TestMutedMappingSkipped(t *testing.T) {
	db, emitter, r := setup(t)
	sig, _ := db.Signal("src.1", "out", model.DirectionOutput)

	m := &model.Mapping{
		ID:       "m1",
		SrcSlots: []model.Slot{{DeviceName: "src.1", SignalName: "out"}},
		DstSlot:  model.Slot{DeviceName: "dst.1", SignalName: "in"},
		Mode:     model.ModeBypass,
		Muted:    true,
		Status:   model.StatusReady,
	}
	db.AddOrUpdateMapping(m)

	r.Dispatch(sig, []float64{1.0}, 0, 0)
	require.Empty(t, emitter.calls)
}

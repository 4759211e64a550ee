package device

import (
	"testing"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/transport"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, net *transport.MemoryNetwork, identifier, host string, port int) *Device {
	bus := net.Join(host, port)
	d, err := NewDevice(Config{
		Identifier:           identifier,
		Bus:                  bus,
		AnnouncementInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	return d
}

func pollUntilReady(t *testing.T, devices ...*Device) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		allReady := true
		for _, d := range devices {
			d.Poll(20 * time.Millisecond)
			if !d.Ready() {
				allReady = false
			}
		}
		if allReady {
			return
		}
	}
	t.Fatal("devices failed to reach ready state")
}

func pollFor(devices []*Device, total time.Duration) {
	deadline := time.Now().Add(total)
	for time.Now().Before(deadline) {
		for _, d := range devices {
			d.Poll(10 * time.Millisecond)
		}
	}
}

// TestLoopbackBypassDelivery is spec.md §8 scenario 1: a source device's
// output, mapped bypass to a destination device's input, arrives
// unmodified.
func TestLoopbackBypassDelivery(t *testing.T) {
	net := transport.NewMemoryNetwork()
	src := newTestDevice(t, net, "source", "10.1.0.1", 9100)
	dst := newTestDevice(t, net, "dest", "10.1.0.2", 9101)
	pollUntilReady(t, src, dst)

	outSig, err := src.RegisterOutput("out1", model.TypeFloat, 1, nil)
	require.NoError(t, err)

	var received []float64
	_, err = dst.RegisterInput("in1", model.TypeFloat, 1, nil, func(sig *model.Signal, instanceID int, values []float64, timetag int64) {
		received = append(received, values...)
	})
	require.NoError(t, err)

	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	m := &model.Mapping{
		ID:       "loop1",
		SrcSlots: []model.Slot{{DeviceName: src.DeviceName(), SignalName: "out1"}},
		DstSlot:  model.Slot{DeviceName: dst.DeviceName(), SignalName: "in1"},
		Mode:     model.ModeBypass,
	}
	src.admin.ProposeMapping(m)
	pollFor([]*Device{src, dst}, time.Second)

	require.NoError(t, src.UpdateSignal(outSig, []float64{42}, 0))
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	require.Equal(t, []float64{42}, received)
}

// TestReverseDirectionDelivery is scenario 2: the same topology with
// source/destination roles swapped, grounded on the original's
// testreverse.c variant of the loopback test.
func TestReverseDirectionDelivery(t *testing.T) {
	net := transport.NewMemoryNetwork()
	a := newTestDevice(t, net, "alpha", "10.2.0.1", 9110)
	b := newTestDevice(t, net, "beta", "10.2.0.2", 9111)
	pollUntilReady(t, a, b)

	_, err := a.RegisterInput("in1", model.TypeFloat, 1, nil, func(*model.Signal, int, []float64, int64) {})
	require.NoError(t, err)
	outSig, err := b.RegisterOutput("out1", model.TypeFloat, 1, nil)
	require.NoError(t, err)

	var received []float64
	_, err = a.RegisterInput("in2", model.TypeFloat, 1, nil, func(sig *model.Signal, instanceID int, values []float64, timetag int64) {
		received = append(received, values...)
	})
	require.NoError(t, err)
	pollFor([]*Device{a, b}, 500*time.Millisecond)

	m := &model.Mapping{
		ID:       "rev1",
		SrcSlots: []model.Slot{{DeviceName: b.DeviceName(), SignalName: "out1"}},
		DstSlot:  model.Slot{DeviceName: a.DeviceName(), SignalName: "in2"},
		Mode:     model.ModeBypass,
	}
	b.admin.ProposeMapping(m)
	pollFor([]*Device{a, b}, time.Second)

	require.NoError(t, b.UpdateSignal(outSig, []float64{7}, 0))
	pollFor([]*Device{a, b}, 500*time.Millisecond)

	require.Equal(t, []float64{7}, received)
}

// TestLinearMappingClampsAtBoundary is scenario 4 / invariant P4: a
// linear-mode mapping with bound_max=clamp never delivers a value past
// the destination's declared maximum.
func TestLinearMappingClampsAtBoundary(t *testing.T) {
	net := transport.NewMemoryNetwork()
	src := newTestDevice(t, net, "sensor", "10.3.0.1", 9120)
	dst := newTestDevice(t, net, "actuator", "10.3.0.2", 9121)
	pollUntilReady(t, src, dst)

	outSig, err := src.RegisterOutput("raw", model.TypeFloat, 1, nil)
	require.NoError(t, err)
	var received []float64
	_, err = dst.RegisterInput("scaled", model.TypeFloat, 1, nil, func(sig *model.Signal, instanceID int, values []float64, timetag int64) {
		received = values
	})
	require.NoError(t, err)
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	m := &model.Mapping{
		ID:       "lin1",
		SrcSlots: []model.Slot{{DeviceName: src.DeviceName(), SignalName: "raw"}},
		DstSlot:  model.Slot{DeviceName: dst.DeviceName(), SignalName: "scaled"},
		Mode:     model.ModeLinear,
		SrcMin:   model.Defined([]float64{0}),
		SrcMax:   model.Defined([]float64{10}),
		DstMin:   model.Defined([]float64{0}),
		DstMax:   model.Defined([]float64{100}),
		BoundMax: model.BoundClamp,
	}
	src.admin.ProposeMapping(m)
	pollFor([]*Device{src, dst}, time.Second)

	require.NoError(t, src.UpdateSignal(outSig, []float64{20}, 0)) // beyond srcMax -> 200 -> clamp to 100
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	require.Equal(t, []float64{100}, received)
}

// TestLinearMappingRoundsToInt32WithTiesToEven is spec.md §4.3's integer
// cast rule: a linear mapping into an int32 destination computes in f64
// and rounds the final sample half-to-even before it crosses the wire.
func TestLinearMappingRoundsToInt32WithTiesToEven(t *testing.T) {
	net := transport.NewMemoryNetwork()
	src := newTestDevice(t, net, "isrc", "10.4.0.1", 9130)
	dst := newTestDevice(t, net, "idst", "10.4.0.2", 9131)
	pollUntilReady(t, src, dst)

	outSig, err := src.RegisterOutput("raw", model.TypeFloat, 1, nil)
	require.NoError(t, err)
	var received []float64
	_, err = dst.RegisterInput("counts", model.TypeInt32, 1, nil, func(sig *model.Signal, instanceID int, values []float64, timetag int64) {
		received = values
	})
	require.NoError(t, err)
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	m := &model.Mapping{
		ID:       "lin-int",
		SrcSlots: []model.Slot{{DeviceName: src.DeviceName(), SignalName: "raw"}},
		DstSlot:  model.Slot{DeviceName: dst.DeviceName(), SignalName: "counts"},
		Mode:     model.ModeLinear,
		SrcMin:   model.Defined([]float64{0}),
		SrcMax:   model.Defined([]float64{1}),
		DstMin:   model.Defined([]float64{0}),
		DstMax:   model.Defined([]float64{5}),
	}
	src.admin.ProposeMapping(m)
	pollFor([]*Device{src, dst}, time.Second)

	require.NoError(t, src.UpdateSignal(outSig, []float64{0.5}, 0)) // dst = 2.5, ties-to-even -> 2
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	require.Equal(t, []float64{2}, received)
}

// TestRawModeCharPassthrough is spec.md:68's raw mode: a non-numeric,
// char-typed signal crosses a raw mapping without any numeric
// interpretation or rounding.
func TestRawModeCharPassthrough(t *testing.T) {
	net := transport.NewMemoryNetwork()
	src := newTestDevice(t, net, "csrc", "10.4.0.3", 9132)
	dst := newTestDevice(t, net, "cdst", "10.4.0.4", 9133)
	pollUntilReady(t, src, dst)

	outSig, err := src.RegisterOutput("byte", model.TypeChar, 1, nil)
	require.NoError(t, err)
	var received []float64
	_, err = dst.RegisterInput("byte", model.TypeChar, 1, nil, func(sig *model.Signal, instanceID int, values []float64, timetag int64) {
		received = values
	})
	require.NoError(t, err)
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	m := &model.Mapping{
		ID:       "raw1",
		SrcSlots: []model.Slot{{DeviceName: src.DeviceName(), SignalName: "byte"}},
		DstSlot:  model.Slot{DeviceName: dst.DeviceName(), SignalName: "byte"},
		Mode:     model.ModeRaw,
	}
	src.admin.ProposeMapping(m)
	pollFor([]*Device{src, dst}, time.Second)

	require.NoError(t, src.UpdateSignal(outSig, []float64{65}, 0)) // 'A'
	pollFor([]*Device{src, dst}, 500*time.Millisecond)

	require.Equal(t, []float64{65}, received)
}

// Package router implements the per-device outgoing dispatch engine of
// spec §4.3: for each local signal update it evaluates every outgoing
// mapping, applies the mapping's mode and boundary actions, and hands the
// transformed sample to an Emitter for delivery.
package router

import (
	"fmt"
	"log"
	"math"

	"github.com/sigmap/sigmap/internal/expreval"
	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/store"
)

// Emitter delivers one transformed sample to a mapping's destination.
// The router never touches sockets directly — spec §1 places the
// transport out of the core's scope — it only decides what value goes
// where.
type Emitter interface {
	EmitSample(mapping *model.Mapping, dst *model.Signal, instanceID int, values []float64, timetag int64) error
}

// Router is a per-device dispatch engine, owned exclusively by its
// device (spec §5).
type Router struct {
	db         *store.Database
	deviceName string
	emit       Emitter
}

func New(db *store.Database, deviceName string, emit Emitter) *Router {
	return &Router{db: db, deviceName: deviceName, emit: emit}
}

// Dispatch implements spec §4.3 steps 1-5 for one local output signal
// update. instanceID is the originating instance (0 if the signal has no
// instances).
func (r *Router) Dispatch(sig *model.Signal, values []float64, timetag int64, instanceID int) {
	cursor := r.db.MappingsBySourceSignal(sig.FullName())
	defer cursor.Release()

	for {
		m, ok := cursor.Next()
		if !ok {
			break
		}
		if m.Status != model.StatusReady && m.Status != model.StatusModified {
			continue
		}
		if m.Muted {
			continue
		}
		if !m.ScopeAdmits(r.deviceName) {
			continue // P6: scope gate
		}
		r.dispatchOne(m, sig, values, timetag, instanceID)
	}
}

func (r *Router) dispatchOne(m *model.Mapping, src *model.Signal, values []float64, timetag int64, instanceID int) {
	dst, ok := r.db.FindSignal(m.DstSlot.FullName())
	if !ok {
		log.Printf("router: mapping %s: destination signal %s unknown, dropping sample", m.ID, m.DstSlot.FullName())
		return
	}

	var out []float64
	var err error

	switch m.Mode {
	case model.ModeBypass, model.ModeNone:
		if src.Type != dst.Type || len(values) != dst.Length {
			log.Printf("router: mapping %s: bypass type/length mismatch, dropping sample", m.ID)
			return
		}
		out = append([]float64(nil), values...)

	case model.ModeRaw:
		out = append([]float64(nil), values...)

	case model.ModeLinear:
		out, err = linear(values, m.SrcMin, m.SrcMax, m.DstMin, m.DstMax, dst.Length)

	case model.ModeCalibrate:
		m.ExpandCalibration(values)
		out, err = linear(values, m.SrcMin, m.SrcMax, m.DstMin, m.DstMax, dst.Length)

	case model.ModeExpression:
		out, err = expreval.Evaluate(m.Expression, values)

	default:
		err = fmt.Errorf("router: mapping %s: unhandled mode %s", m.ID, m.Mode)
	}

	if err != nil {
		log.Printf("router: mapping %s: %v, muting sample", m.ID, err)
		return
	}

	out, muted := applyBounds(out, m)
	if muted {
		return // mute on any element mutes the whole vector
	}

	out = castToWireType(out, m.Mode, dst.Type)

	if err := r.emit.EmitSample(m, dst, instanceID, out, timetag); err != nil {
		log.Printf("router: mapping %s: emit failed: %v", m.ID, err)
	}
}

// linear computes dst = dst_min + (src-src_min)*(dst_max-dst_min)/(src_max-src_min)
// per element (spec §4.3). An undefined denominator (src_max==src_min)
// is represented as NaN, which applyBounds turns into a mute of the whole
// vector; a missing range is returned as an error, and dispatchOne drops
// the sample.
func linear(src []float64, srcMin, srcMax, dstMin, dstMax model.Optional[[]float64], dstLength int) ([]float64, error) {
	if !srcMin.IsDefined() || !srcMax.IsDefined() || !dstMin.IsDefined() || !dstMax.IsDefined() {
		return nil, fmt.Errorf("linear mode requires src/dst min and max")
	}
	sMin, sMax, dMin, dMax := srcMin.Get(), srcMax.Get(), dstMin.Get(), dstMax.Get()

	out := make([]float64, dstLength)
	for i := range out {
		si := elementAt(src, i)
		smi := elementAt(sMin, i)
		sma := elementAt(sMax, i)
		dmi := elementAt(dMin, i)
		dma := elementAt(dMax, i)

		denom := sma - smi
		if denom == 0 {
			out[i] = math.NaN() // undefined denominator: mute this sample
			continue
		}
		out[i] = dmi + (si-smi)*(dma-dmi)/denom
	}
	return out, nil
}

func elementAt(v []float64, i int) float64 {
	if len(v) == 0 {
		return 0
	}
	if i < len(v) {
		return v[i]
	}
	return v[len(v)-1]
}

// applyBounds implements spec §4.3 step 3: bound_min/bound_max applied
// independently per element, with mute on any element muting the whole
// sample (and NaN from linear's undefined-denominator case treated the
// same way).
func applyBounds(values []float64, m *model.Mapping) (out []float64, muted bool) {
	min := elementsOrNil(m.DstMin)
	max := elementsOrNil(m.DstMax)

	out = make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, true
		}
		lo := elementAt(min, i)
		hi := elementAt(max, i)

		action := m.BoundMin
		if v > hi {
			action = m.BoundMax
		} else if v >= lo {
			out[i] = v
			continue
		}

		switch action {
		case model.BoundNone:
			out[i] = v
		case model.BoundMute:
			return nil, true
		case model.BoundClamp:
			out[i] = clamp(v, lo, hi)
		case model.BoundFold:
			out[i] = fold(v, lo, hi)
		case model.BoundWrap:
			out[i] = wrap(v, lo, hi)
		}
	}
	return out, false
}

// castToWireType implements spec §4.3's integer cast rule: the pipeline
// computes entirely in f64, and only integer- or char-typed destinations
// get rounded (round-to-nearest-even) immediately before the sample is
// handed to the emitter. raw mode is exempt — it emits without
// interpretation, since it exists for non-numeric types the cast would
// corrupt.
func castToWireType(values []float64, mode model.Mode, t model.ValueType) []float64 {
	if mode == model.ModeRaw {
		return values
	}
	switch t {
	case model.TypeInt32, model.TypeChar:
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = math.RoundToEven(v)
		}
		return out
	default:
		return values
	}
}

func elementsOrNil(o model.Optional[[]float64]) []float64 {
	if !o.IsDefined() {
		return nil
	}
	return o.Get()
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fold reflects x back into [min, max) per spec §4.3:
// fold(x) = min + |((x-min) mod 2R) - R|, R = max-min.
func fold(x, min, max float64) float64 {
	r := max - min
	if r <= 0 {
		return min
	}
	m := math.Mod(x-min, 2*r)
	if m < 0 {
		m += 2 * r
	}
	return min + math.Abs(m-r)
}

// wrap implements modulo wraparound into the half-open range [min, max).
func wrap(x, min, max float64) float64 {
	r := max - min
	if r <= 0 {
		return min
	}
	m := math.Mod(x-min, r)
	if m < 0 {
		m += r
	}
	return min + m
}

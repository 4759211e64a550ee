// Package model holds the entities of the signal-mapping data model:
// devices, signals, links and mappings, and the property table shared by
// all of them on the wire.
package model

import "fmt"

// ValueType is one of the four wire-level sample types a signal may carry.
type ValueType byte

const (
	TypeInt32  ValueType = 'i'
	TypeFloat  ValueType = 'f'
	TypeDouble ValueType = 'd'
	TypeChar   ValueType = 'c'
)

func (t ValueType) Valid() bool {
	switch t {
	case TypeInt32, TypeFloat, TypeDouble, TypeChar:
		return true
	}
	return false
}

// Direction is whether a signal is produced (output) or consumed (input)
// by its owning device.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "input", "in":
		return DirectionInput, nil
	case "output", "out":
		return DirectionOutput, nil
	}
	return 0, fmt.Errorf("model: invalid direction %q", s)
}

// Device is a participant addressable by a stable ordinal name
// ("<identifier>.<ordinal>"). See spec §3.
type Device struct {
	OrdinalName  string
	Host         string
	Port         int
	CanAlias     bool
	RegisteredAt int64 // unix millis
	Properties   PropertyTable
	// Mirror is true for records synthesized from another device's
	// announcements rather than owned by this process.
	Mirror bool
}

// Signal is a named typed vector value belonging to a device.
type Signal struct {
	DeviceName   string
	Name         string
	Direction    Direction
	Type         ValueType
	Length       int
	Unit         Optional[string]
	Minimum      Optional[[]float64]
	Maximum      Optional[[]float64]
	Rate         Optional[float64]
	NumInstances int
	CurrentValue Optional[[]float64]
	Properties   PropertyTable
}

// FullName returns "<device>/<signal>", the data-plane path component.
func (s *Signal) FullName() string {
	return s.DeviceName + "/" + s.Name
}

// Validate checks the invariants from spec §3: length(min)==length(max)==
// length when present.
func (s *Signal) Validate() error {
	if s.Length < 1 {
		return fmt.Errorf("model: signal %s: length must be >= 1", s.FullName())
	}
	if !s.Type.Valid() {
		return fmt.Errorf("model: signal %s: invalid type %q", s.FullName(), s.Type)
	}
	if s.Minimum.IsDefined() && len(s.Minimum.Get()) != s.Length {
		return fmt.Errorf("model: signal %s: minimum length %d != signal length %d", s.FullName(), len(s.Minimum.Get()), s.Length)
	}
	if s.Maximum.IsDefined() && len(s.Maximum.Get()) != s.Length {
		return fmt.Errorf("model: signal %s: maximum length %d != signal length %d", s.FullName(), len(s.Maximum.Get()), s.Length)
	}
	if s.NumInstances < 1 {
		s.NumInstances = 1
	}
	return nil
}

// Link is a device-to-device data-plane affinity, created implicitly by
// the first mapping between two devices.
type Link struct {
	SrcDevice string
	DstDevice string
	Extra     PropertyTable
}

func (l *Link) Key() string {
	return l.SrcDevice + "->" + l.DstDevice
}

// Mode is the transform a mapping applies to samples flowing from source
// to destination.
type Mode int

const (
	ModeNone Mode = iota
	ModeRaw
	ModeBypass
	ModeLinear
	ModeExpression
	ModeCalibrate
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeBypass:
		return "bypass"
	case ModeLinear:
		return "linear"
	case ModeExpression:
		return "expression"
	case ModeCalibrate:
		return "calibrate"
	default:
		return "none"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "none", "":
		return ModeNone, nil
	case "raw":
		return ModeRaw, nil
	case "bypass":
		return ModeBypass, nil
	case "linear":
		return ModeLinear, nil
	case "expression":
		return ModeExpression, nil
	case "calibrate":
		return ModeCalibrate, nil
	}
	return 0, fmt.Errorf("model: invalid mode %q", s)
}

// BoundAction is the per-element saturation rule applied at the router's
// output boundary.
type BoundAction int

const (
	BoundNone BoundAction = iota
	BoundMute
	BoundClamp
	BoundFold
	BoundWrap
)

func ParseBoundAction(s string) (BoundAction, error) {
	switch s {
	case "none", "":
		return BoundNone, nil
	case "mute":
		return BoundMute, nil
	case "clamp":
		return BoundClamp, nil
	case "fold":
		return BoundFold, nil
	case "wrap":
		return BoundWrap, nil
	}
	return 0, fmt.Errorf("model: invalid bound action %q", s)
}

// MappingStatus tracks the negotiation lifecycle from spec §3/§4.4.
type MappingStatus int

const (
	StatusProposed MappingStatus = iota
	StatusPending
	StatusReady
	StatusModified
	StatusReleased
)

func (s MappingStatus) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusModified:
		return "modified"
	default:
		return "released"
	}
}

// Slot is one endpoint reference in a mapping: a device/signal pair.
type Slot struct {
	DeviceName string
	SignalName string
}

func (s Slot) FullName() string {
	return s.DeviceName + "/" + s.SignalName
}

// Mapping is a stateful route from one or more source signals to a
// destination signal.
type Mapping struct {
	ID              string
	SrcSlots        []Slot
	DstSlot         Slot
	Mode            Mode
	Expression      string
	SrcMin, SrcMax  Optional[[]float64]
	DstMin, DstMax  Optional[[]float64]
	BoundMin        BoundAction
	BoundMax        BoundAction
	Muted           bool
	SendAsInstance  bool
	Scope           map[string]struct{}
	Status          MappingStatus
	modifyDeadline  int64 // unix millis; 0 if no pending modify
	pendingSrcMin   Optional[[]float64]
	pendingSrcMax   Optional[[]float64]
}

// ScopeAdmits reports whether deviceName is allowed to originate samples
// for this mapping. An empty scope admits every device (the default when
// no explicit @scope was negotiated).
func (m *Mapping) ScopeAdmits(deviceName string) bool {
	if len(m.Scope) == 0 {
		return true
	}
	_, ok := m.Scope[deviceName]
	return ok
}

// ExpandCalibration grows SrcMin/SrcMax to include sample, implementing
// the monotonicity invariant P5.
func (m *Mapping) ExpandCalibration(sample []float64) {
	if !m.SrcMin.IsDefined() {
		m.SrcMin = Defined(append([]float64(nil), sample...))
	}
	if !m.SrcMax.IsDefined() {
		m.SrcMax = Defined(append([]float64(nil), sample...))
	}
	min := m.SrcMin.Get()
	max := m.SrcMax.Get()
	for i, v := range sample {
		if i >= len(min) {
			break
		}
		if v < min[i] {
			min[i] = v
		}
		if v > max[i] {
			max[i] = v
		}
	}
}

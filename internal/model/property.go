package model

// PropertyKey is one entry of the closed enumeration from spec §4.1,
// reproduced in full from original_source/src/params.c's
// prop_msg_strings[] table (the distilled spec only gives examples).
type PropertyKey string

const (
	PropBoundMax       PropertyKey = "@boundMax"
	PropBoundMin       PropertyKey = "@boundMin"
	PropCauseUpdate    PropertyKey = "@causeUpdate"
	PropDestLength     PropertyKey = "@destLength"
	PropDestMax        PropertyKey = "@destMax"
	PropDestMin        PropertyKey = "@destMin"
	PropDestType       PropertyKey = "@destType"
	PropDirection      PropertyKey = "@direction"
	PropExpression     PropertyKey = "@expression"
	PropID             PropertyKey = "@ID"
	PropInstances      PropertyKey = "@instances"
	PropIP             PropertyKey = "@IP"
	PropLength         PropertyKey = "@length"
	PropLibVersion     PropertyKey = "@libVersion"
	PropMax            PropertyKey = "@max"
	PropMin            PropertyKey = "@min"
	PropMode           PropertyKey = "@mode"
	PropMute           PropertyKey = "@mute"
	PropNumConnectsIn  PropertyKey = "@numConnectsIn"
	PropNumConnectsOut PropertyKey = "@numConnectsOut"
	PropNumInputs      PropertyKey = "@numInputs"
	PropNumLinks       PropertyKey = "@numLinks"
	PropNumOutputs     PropertyKey = "@numOutputs"
	PropNumSlots       PropertyKey = "@numSlots"
	PropPort           PropertyKey = "@port"
	PropRate           PropertyKey = "@rate"
	PropRev            PropertyKey = "@rev"
	PropScope          PropertyKey = "@scope"
	PropSendAsInstance PropertyKey = "@sendAsInstance"
	PropSlot           PropertyKey = "@slot"
	PropSrcLength      PropertyKey = "@srcLength"
	PropSrcMax         PropertyKey = "@srcMax"
	PropSrcMin         PropertyKey = "@srcMin"
	PropSrcType        PropertyKey = "@srcType"
	PropType           PropertyKey = "@type"
	PropUnits          PropertyKey = "@units"
	PropCanAlias       PropertyKey = "@canAlias"
)

// knownKeys is consulted by the decoder to tell a known key from an
// "extra" one. A slice (not a map) mirrors the teacher's and the
// original's linear scan; at ~35 entries this is cheap and keeps
// iteration order incidental, matching prop_msg_strings[]'s own layout.
var knownKeys = []PropertyKey{
	PropBoundMax, PropBoundMin, PropCauseUpdate, PropDestLength, PropDestMax,
	PropDestMin, PropDestType, PropDirection, PropExpression, PropID,
	PropInstances, PropIP, PropLength, PropLibVersion, PropMax, PropMin,
	PropMode, PropMute, PropNumConnectsIn, PropNumConnectsOut, PropNumInputs,
	PropNumLinks, PropNumOutputs, PropNumSlots, PropPort, PropRate, PropRev,
	PropScope, PropSendAsInstance, PropSlot, PropSrcLength, PropSrcMax,
	PropSrcMin, PropSrcType, PropType, PropUnits, PropCanAlias,
}

// IsKnownKey reports whether key is part of the closed ABI enumeration.
func IsKnownKey(key string) bool {
	for _, k := range knownKeys {
		if string(k) == key {
			return true
		}
	}
	return false
}

// PropertyValue is a single decoded property: its declared wire type and
// its vector of values, heterogeneous-type-rejected to length zero per
// spec §4.1 / §7.
type PropertyValue struct {
	Type   byte // 'i','f','d','c','s' (string) or 'b' (bool)
	Ints   []int64
	Floats []float64
	Chars  []byte
	Strs   []string
	Bools  []bool
}

// Len reports the vector length regardless of type.
func (v PropertyValue) Len() int {
	switch v.Type {
	case 'i':
		return len(v.Ints)
	case 'f', 'd':
		return len(v.Floats)
	case 'c':
		return len(v.Chars)
	case 's':
		return len(v.Strs)
	case 'b':
		return len(v.Bools)
	}
	return 0
}

// PropertyTable is an ordered string->value map used for both fixed and
// extensible ("extra") properties on any entity, per spec §3/§4.1.
type PropertyTable struct {
	order  []string
	values map[string]PropertyValue
}

func NewPropertyTable() PropertyTable {
	return PropertyTable{values: map[string]PropertyValue{}}
}

func (t *PropertyTable) ensure() {
	if t.values == nil {
		t.values = map[string]PropertyValue{}
	}
}

// Set stores value under key, preserving first-insertion order for
// serialization (§4.1: "a property table may be serialized as a sequence
// of @key, value(s) pairs").
func (t *PropertyTable) Set(key string, value PropertyValue) {
	t.ensure()
	if _, exists := t.values[key]; !exists {
		t.order = append(t.order, key)
	}
	t.values[key] = value
}

func (t *PropertyTable) Get(key string) (PropertyValue, bool) {
	t.ensure()
	v, ok := t.values[key]
	return v, ok
}

func (t *PropertyTable) Delete(key string) {
	t.ensure()
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (t *PropertyTable) Keys() []string {
	t.ensure()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Equal reports whether two tables hold the same multiset of
// (key, type, length, value) entries, the round-trip invariant P1.
func (t *PropertyTable) Equal(other *PropertyTable) bool {
	t.ensure()
	other.ensure()
	if len(t.values) != len(other.values) {
		return false
	}
	for k, v := range t.values {
		ov, ok := other.values[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

func valueEqual(a, b PropertyValue) bool {
	if a.Type != b.Type || a.Len() != b.Len() {
		return false
	}
	switch a.Type {
	case 'i':
		for i := range a.Ints {
			if a.Ints[i] != b.Ints[i] {
				return false
			}
		}
	case 'f', 'd':
		for i := range a.Floats {
			if a.Floats[i] != b.Floats[i] {
				return false
			}
		}
	case 'c':
		for i := range a.Chars {
			if a.Chars[i] != b.Chars[i] {
				return false
			}
		}
	case 's':
		for i := range a.Strs {
			if a.Strs[i] != b.Strs[i] {
				return false
			}
		}
	case 'b':
		for i := range a.Bools {
			if a.Bools[i] != b.Bools[i] {
				return false
			}
		}
	}
	return true
}

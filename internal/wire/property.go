package wire

import (
	"log"

	"github.com/sigmap/sigmap/internal/model"
)

// ParseProperties walks args left-to-right per spec §4.1: each "@key"
// string token opens a vector that collects every following argument of
// uniform type until the next key token or the end of the list. A
// heterogeneous run (type changes mid-vector) is rejected: the key's
// value is recorded with length zero and a diagnostic is logged, exactly
// as original_source/src/params.c's mapper_msg_parse_params does.
//
// path is used only for diagnostics. required names properties that must
// be present; the absence of any of them is reported via the second
// return value so callers can drop the message per spec §7.
func ParseProperties(path string, args []Arg, required ...string) (model.PropertyTable, bool) {
	table := model.NewPropertyTable()

	i := 0
	for i < len(args) {
		if !IsKeyToken(args[i]) {
			i++
			continue
		}
		key := args[i].S
		i++

		if i >= len(args) {
			table.Set(key, model.PropertyValue{})
			break
		}

		typ := args[i].Type
		value := model.PropertyValue{Type: typ}
		j := i
		for j < len(args) && !IsKeyToken(args[j]) {
			if args[j].Type != typ {
				log.Printf("wire: message %s, value vector for key %s has heterogeneous types", path, key)
				value = model.PropertyValue{Type: typ}
				break
			}
			appendArg(&value, args[j])
			j++
		}
		if value.Len() == 0 {
			log.Printf("wire: message %s, key %s has no values", path, key)
		}
		table.Set(key, value)
		i = j
	}

	for _, req := range required {
		if _, ok := table.Get(req); !ok {
			log.Printf("wire: message %s missing required key %s, dropping", path, req)
			return table, false
		}
	}

	return table, true
}

func appendArg(v *model.PropertyValue, a Arg) {
	switch a.Type {
	case 'i':
		v.Ints = append(v.Ints, a.I)
	case 'f', 'd':
		v.Floats = append(v.Floats, a.F)
	case 'c':
		v.Chars = append(v.Chars, a.C)
	case 's':
		v.Strs = append(v.Strs, a.S)
	case 'b':
		v.Bools = append(v.Bools, a.B)
	}
}

// Builder is the strongly-typed builder counterpart to
// ParseProperties: it appends a "@key" token followed by value's
// arguments, validated against the declared type of each key by the
// caller (spec §4.1: "a builder API prepares outgoing messages from a
// variadic key/value stream validated against the declared type of each
// key").
type Builder struct {
	args []Arg
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Key(key string) *Builder {
	b.args = append(b.args, Str(key))
	return b
}

func (b *Builder) Ints(vs ...int64) *Builder {
	for _, v := range vs {
		b.args = append(b.args, Int(v))
	}
	return b
}

func (b *Builder) Floats(vs ...float64) *Builder {
	for _, v := range vs {
		b.args = append(b.args, Float(v))
	}
	return b
}

func (b *Builder) Strs(vs ...string) *Builder {
	for _, v := range vs {
		b.args = append(b.args, Str(v))
	}
	return b
}

func (b *Builder) Bools(vs ...bool) *Builder {
	for _, v := range vs {
		b.args = append(b.args, Bool(v))
	}
	return b
}

func (b *Builder) Arg(a Arg) *Builder {
	b.args = append(b.args, a)
	return b
}

func (b *Builder) Args() []Arg {
	return b.args
}

// PropertyFloats reads a float/double-typed key as a []float64, or false
// if absent or wrongly typed.
func PropertyFloats(t *model.PropertyTable, key string) ([]float64, bool) {
	v, ok := t.Get(key)
	if !ok || v.Len() == 0 {
		return nil, false
	}
	if v.Type != 'f' && v.Type != 'd' {
		return nil, false
	}
	return v.Floats, true
}

// PropertyString reads a string-typed scalar key.
func PropertyString(t *model.PropertyTable, key string) (string, bool) {
	v, ok := t.Get(key)
	if !ok || v.Type != 's' || len(v.Strs) == 0 {
		return "", false
	}
	return v.Strs[0], true
}

// PropertyInt reads an int-typed scalar key.
func PropertyInt(t *model.PropertyTable, key string) (int64, bool) {
	v, ok := t.Get(key)
	if !ok || v.Type != 'i' || len(v.Ints) == 0 {
		return 0, false
	}
	return v.Ints[0], true
}

// PropertyBool reads a bool-typed scalar key.
func PropertyBool(t *model.PropertyTable, key string) (bool, bool) {
	v, ok := t.Get(key)
	if !ok || v.Type != 'b' || len(v.Bools) == 0 {
		return false, false
	}
	return v.Bools[0], true
}

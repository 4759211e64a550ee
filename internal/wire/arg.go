// Package wire implements the property schema & message codec of spec §4.1:
// encoding and decoding messages as a path followed by a flat,
// left-to-right tagged-argument list, where each "@key" string argument
// collects the following run of uniform-type arguments as its vector
// value.
package wire

// Arg is one tagged argument in a message's flat argument list, the unit
// the transport's tagged-argument model is built from (spec §1: "the core
// consumes a message-with-typed-arguments abstraction from it").
type Arg struct {
	Type byte // 'i' int32, 'f' float32, 'd' float64, 's' string, 'c' char, 'b' bool
	I    int64
	F    float64
	S    string
	C    byte
	B    bool
}

func Int(v int64) Arg    { return Arg{Type: 'i', I: v} }
func Float(v float64) Arg { return Arg{Type: 'f', F: v} }
func Double(v float64) Arg { return Arg{Type: 'd', F: v} }
func Str(v string) Arg   { return Arg{Type: 's', S: v} }
func Char(v byte) Arg    { return Arg{Type: 'c', C: v} }
func Bool(v bool) Arg    { return Arg{Type: 'b', B: v} }

// IsKeyToken reports whether a is a string argument naming a property key
// ("@..." by convention, per spec §4.1).
func IsKeyToken(a Arg) bool {
	return a.Type == 's' && len(a.S) > 0 && a.S[0] == '@'
}

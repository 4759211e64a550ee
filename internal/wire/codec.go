package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborArg is the wire shape of Arg. The teacher's own go.mod already
// declares fxamacker/cbor/v2 without exercising it anywhere in the
// retrieved files; this is its home, replacing the teacher's
// hand-rolled big-endian length-prefix value coding (pkg/messages.go
// writeValue/readValue) with a self-describing codec for the argument
// vector, while the outer envelope (path, sequence number) keeps the
// teacher's fixed binary framing (see message.go).
type cborArg struct {
	T byte    `cbor:"t"`
	I int64   `cbor:"i,omitempty"`
	F float64 `cbor:"f,omitempty"`
	S string  `cbor:"s,omitempty"`
	C byte    `cbor:"c,omitempty"`
	B bool    `cbor:"b,omitempty"`
}

// EncodeArgs serializes an argument list to its wire bytes.
func EncodeArgs(args []Arg) ([]byte, error) {
	wireArgs := make([]cborArg, len(args))
	for i, a := range args {
		wireArgs[i] = cborArg{T: a.Type, I: a.I, F: a.F, S: a.S, C: a.C, B: a.B}
	}
	return cbor.Marshal(wireArgs)
}

// DecodeArgs deserializes an argument list from its wire bytes.
func DecodeArgs(data []byte) ([]Arg, error) {
	var wireArgs []cborArg
	if err := cbor.Unmarshal(data, &wireArgs); err != nil {
		return nil, fmt.Errorf("wire: decode args: %w", err)
	}
	args := make([]Arg, len(wireArgs))
	for i, w := range wireArgs {
		args[i] = Arg{Type: w.T, I: w.I, F: w.F, S: w.S, C: w.C, B: w.B}
	}
	return args, nil
}

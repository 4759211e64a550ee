package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// magic identifies the wire envelope, mirroring the teacher's "SURP"
// magic string in pkg/messages.go.
const magic = "SGMP"

// Message is a (path, typed-argument-vector) pair, spec §3's wire unit.
type Message struct {
	SequenceNumber uint16
	Path           string
	Args           []Arg
}

// Encode produces the on-the-wire envelope: magic, sequence number, path
// length+bytes, then the cbor-coded argument vector. This keeps the
// teacher's fixed big-endian header shape (pkg/messages.go
// encodeAdvertiseMessage) while delegating value coding to cbor.
func Encode(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	if err := binary.Write(&buf, binary.BigEndian, msg.SequenceNumber); err != nil {
		return nil, err
	}
	if len(msg.Path) > 255 {
		return nil, fmt.Errorf("wire: path %q exceeds 255 bytes", msg.Path)
	}
	buf.WriteByte(byte(len(msg.Path)))
	buf.WriteString(msg.Path)

	argBytes, err := EncodeArgs(msg.Args)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(argBytes))); err != nil {
		return nil, err
	}
	buf.Write(argBytes)
	return buf.Bytes(), nil
}

// Decode parses a wire envelope. It returns ok=false (and logs nothing
// itself — callers are responsible for the malformed-message diagnostic
// per spec §7) on any structural problem, never panicking on attacker- or
// peer-controlled bytes.
func Decode(data []byte) (*Message, bool) {
	if len(data) < len(magic)+2+1 || string(data[:len(magic)]) != magic {
		return nil, false
	}
	rest := data[len(magic):]

	if len(rest) < 2 {
		return nil, false
	}
	seq := binary.BigEndian.Uint16(rest[:2])
	rest = rest[2:]

	if len(rest) < 1 {
		return nil, false
	}
	pathLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < pathLen {
		return nil, false
	}
	path := string(rest[:pathLen])
	rest = rest[pathLen:]

	if len(rest) < 4 {
		return nil, false
	}
	argLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < argLen {
		return nil, false
	}

	args, err := DecodeArgs(rest[:argLen])
	if err != nil {
		return nil, false
	}

	return &Message{SequenceNumber: seq, Path: path, Args: args}, true
}

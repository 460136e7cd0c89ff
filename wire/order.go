// Package wire implements the byte-level framing primitives this
// module treats as belonging to "the external marshaller" in spec
// terms: a byte-order mark, a fixed header prefix, and a compact
// encode/decode of the header-fields array. General value
// (de)marshalling of message bodies is out of scope; bodies are
// carried as opaque bytes by package message.
package wire

import "encoding/binary"

// ByteOrder is the DBus wire byte-order mark: 'l' for little-endian,
// 'B' for big-endian.
type ByteOrder byte

const (
	LittleEndian ByteOrder = 'l'
	BigEndian    ByteOrder = 'B'
)

// Std returns the encoding/binary.ByteOrder matching o.
func (o ByteOrder) Std() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Valid reports whether o is a recognised byte-order mark.
func (o ByteOrder) Valid() bool {
	return o == LittleEndian || o == BigEndian
}

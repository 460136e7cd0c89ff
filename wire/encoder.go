package wire

// Encoder writes the DBus-flavored primitives this module's header
// framing needs to a growing byte slice.
//
// Methods insert padding as needed to conform to DBus alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
type Encoder struct {
	Order ByteOrder
	Out   []byte
}

// Pad inserts padding bytes as needed to make the output a multiple
// of align bytes.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write writes bs as-is to the output.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint32 writes a uint32, padding to a 4-byte boundary first.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.Std().AppendUint32(e.Out, u32)
}

// String writes a length-prefixed, NUL-terminated string, padding to
// a 4-byte boundary first.
func (e *Encoder) String(s string) {
	e.Pad(4)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Struct pads to an 8-byte boundary, then runs elements to add the
// struct's fields.
func (e *Encoder) Struct(elements func()) {
	e.Pad(8)
	elements()
}

package wire

import (
	"fmt"
)

// Decoder reads the primitives Encoder writes back out of a fixed
// byte slice, tracking the read offset so Pad can compute alignment
// the same way Encoder does.
type Decoder struct {
	Order ByteOrder
	In    []byte
	off   int
}

// Pad consumes padding bytes as needed to make the next read start at
// a multiple of align bytes.
func (d *Decoder) Pad(align int) error {
	extra := d.off % align
	if extra == 0 {
		return nil
	}
	return d.skip(align - extra)
}

func (d *Decoder) skip(n int) error {
	if d.off+n > len(d.In) {
		return fmt.Errorf("wire: short buffer, need %d more bytes", d.off+n-len(d.In))
	}
	d.off += n
	return nil
}

// Read returns the next n bytes verbatim, with no padding.
func (d *Decoder) Read(n int) ([]byte, error) {
	if d.off+n > len(d.In) {
		return nil, fmt.Errorf("wire: short buffer, need %d more bytes", d.off+n-len(d.In))
	}
	bs := d.In[d.off : d.off+n]
	d.off += n
	return bs, nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint32 reads a uint32, consuming alignment padding first.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Std().Uint32(bs), nil
}

// String reads a length-prefixed, NUL-terminated string, consuming
// alignment padding first.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	bs, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	return string(bs[:len(bs)-1]), nil
}

// Offset reports the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

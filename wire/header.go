package wire

import "fmt"

// HeaderPrefixLen is the size in bytes of the fixed header prefix
// read in Phase A of the receive algorithm: byte-order mark, message
// type, flags, protocol version, serial, body length, and 4 reserved
// bytes that keep the prefix 8-byte aligned.
const HeaderPrefixLen = 16

// Prefix is the fixed 16-byte header prefix. It deliberately does not
// carry the header-fields-array length: that is read separately, in
// Phase B of the receive algorithm, because it is the one piece of
// the header whose size isn't known until the prefix has already
// been parsed.
type Prefix struct {
	Order   ByteOrder
	Type    byte
	Flags   byte
	Version byte
	Serial  uint32
	BodyLen uint32
}

// MarshalPrefix encodes p as the fixed 16-byte prefix.
func MarshalPrefix(p Prefix) []byte {
	buf := make([]byte, 0, HeaderPrefixLen)
	buf = append(buf, byte(p.Order), p.Type, p.Flags, p.Version)
	buf = p.Order.Std().AppendUint32(buf, p.Serial)
	buf = p.Order.Std().AppendUint32(buf, p.BodyLen)
	buf = append(buf, 0, 0, 0, 0)
	return buf
}

// UnmarshalPrefix decodes the fixed 16-byte prefix from the front of
// buf. buf must be at least HeaderPrefixLen bytes long.
func UnmarshalPrefix(buf []byte) (Prefix, error) {
	if len(buf) < HeaderPrefixLen {
		return Prefix{}, fmt.Errorf("wire: header prefix needs %d bytes, got %d", HeaderPrefixLen, len(buf))
	}
	order := ByteOrder(buf[0])
	if !order.Valid() {
		return Prefix{}, fmt.Errorf("wire: invalid byte order mark %q", buf[0])
	}
	std := order.Std()
	return Prefix{
		Order:   order,
		Type:    buf[1],
		Flags:   buf[2],
		Version: buf[3],
		Serial:  std.Uint32(buf[4:8]),
		BodyLen: std.Uint32(buf[8:12]),
	}, nil
}

// Header-field keys: Path=1, Interface=2, Member=3, ErrName=4,
// ReplySerial=5, Destination=6, Sender=7, Signature=8, NumFDs=9.
const (
	FieldPath        uint8 = 1
	FieldInterface   uint8 = 2
	FieldMember      uint8 = 3
	FieldErrorName   uint8 = 4
	FieldReplySerial uint8 = 5
	FieldDestination uint8 = 6
	FieldSender      uint8 = 7
	FieldSignature   uint8 = 8
	FieldNumFDs      uint8 = 9
)

const (
	kindString uint8 = 1
	kindUint32 uint8 = 2
)

// Fields holds the decoded header-fields array.
type Fields struct {
	Path           string
	Interface      string
	Member         string
	ErrorName      string
	Destination    string
	Sender         string
	Signature      string
	ReplySerial    uint32
	HasReplySerial bool
	NumFDs         uint32
}

// MarshalFields encodes f as a header-fields array. Zero-valued
// fields are omitted, except ReplySerial which is only written when
// HasReplySerial is set.
func MarshalFields(order ByteOrder, f Fields) []byte {
	e := &Encoder{Order: order}
	str := func(key uint8, s string) {
		if s == "" {
			return
		}
		e.Struct(func() {
			e.Uint8(key)
			e.Uint8(kindString)
			e.String(s)
		})
	}
	str(FieldPath, f.Path)
	str(FieldInterface, f.Interface)
	str(FieldMember, f.Member)
	str(FieldErrorName, f.ErrorName)
	str(FieldDestination, f.Destination)
	str(FieldSender, f.Sender)
	str(FieldSignature, f.Signature)
	if f.HasReplySerial {
		e.Struct(func() {
			e.Uint8(FieldReplySerial)
			e.Uint8(kindUint32)
			e.Uint32(f.ReplySerial)
		})
	}
	if f.NumFDs != 0 {
		e.Struct(func() {
			e.Uint8(FieldNumFDs)
			e.Uint8(kindUint32)
			e.Uint32(f.NumFDs)
		})
	}
	return e.Out
}

// UnmarshalFields decodes a header-fields array. buf must contain
// exactly the fields-array bytes, with no trailing padding.
func UnmarshalFields(order ByteOrder, buf []byte) (Fields, error) {
	var f Fields
	d := &Decoder{Order: order, In: buf}
	for d.Offset() < len(buf) {
		if err := d.Pad(8); err != nil {
			return f, err
		}
		if d.Offset() >= len(buf) {
			break
		}
		key, err := d.Uint8()
		if err != nil {
			return f, err
		}
		kind, err := d.Uint8()
		if err != nil {
			return f, err
		}
		switch kind {
		case kindString:
			s, err := d.String()
			if err != nil {
				return f, err
			}
			switch key {
			case FieldPath:
				f.Path = s
			case FieldInterface:
				f.Interface = s
			case FieldMember:
				f.Member = s
			case FieldErrorName:
				f.ErrorName = s
			case FieldDestination:
				f.Destination = s
			case FieldSender:
				f.Sender = s
			case FieldSignature:
				f.Signature = s
			}
		case kindUint32:
			v, err := d.Uint32()
			if err != nil {
				return f, err
			}
			switch key {
			case FieldReplySerial:
				f.ReplySerial = v
				f.HasReplySerial = true
			case FieldNumFDs:
				f.NumFDs = v
			}
		default:
			return f, fmt.Errorf("wire: unknown header field value kind %d for key %d", kind, key)
		}
	}
	return f, nil
}

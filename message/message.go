// Package message implements the Message data model of spec.md §3 and
// the wire encode/decode that sits directly on top of package wire.
//
// Message bodies are carried as opaque bytes: general value
// (de)marshalling is explicitly out of scope for this module, so
// callers are responsible for marshalling/unmarshalling Body
// themselves according to Signature.
package message

import (
	"fmt"
	"os"

	"github.com/kvark9/dbuscore/dbuserr"
	"github.com/kvark9/dbuscore/wire"
)

// ObjectPath is a DBus object path, e.g. "/org/freedesktop/DBus".
type ObjectPath string

// Type is the type of a DBus message.
type Type byte

const (
	Invalid Type = iota
	Call
	Reply
	Error
	Signal
)

func (t Type) String() string {
	switch t {
	case Call:
		return "Call"
	case Reply:
		return "Reply"
	case Error:
		return "Error"
	case Signal:
		return "Signal"
	default:
		return "Invalid"
	}
}

// NoReplyExpectedFlag is set on a Call that does not want a reply.
const NoReplyExpectedFlag byte = 0x1

// Message is a complete DBus message, as produced or consumed by
// Transport.Send/Receive.
type Message struct {
	Type   Type
	Serial uint32
	Flags  byte

	// ResponseSerial is the serial of the Call this message answers.
	// It is only meaningful when HasResponseSerial is true, which is
	// required for Reply and Error and forbidden for Call.
	ResponseSerial    uint32
	HasResponseSerial bool

	Path        ObjectPath
	Interface   string
	Member      string
	ErrorName   string
	Destination string
	Sender      string
	Signature   string

	// Body is the opaque, already-marshalled message body.
	Body []byte
	// RawFDs are the file descriptors accompanying this message. The
	// Message exclusively owns them; callers are responsible for
	// closing them.
	RawFDs []*os.File
}

// NoReplyExpected reports whether a Call message declines a reply.
func (m *Message) NoReplyExpected() bool {
	return m.Flags&NoReplyExpectedFlag != 0
}

// Valid checks that m's header fields are well-formed for its type,
// mirroring the required/forbidden field rules of the DBus spec.
func (m *Message) Valid() error {
	if m.Serial == 0 {
		return fmt.Errorf("dbus: invalid message with zero serial")
	}
	switch m.Type {
	case Invalid:
		return dbuserr.ErrUnexpectedTypeReceived
	case Call:
		if m.Path == "" {
			return fmt.Errorf("dbus: call message missing Path")
		}
		if m.Interface == "" {
			return fmt.Errorf("dbus: call message missing Interface")
		}
		if m.Member == "" {
			return fmt.Errorf("dbus: call message missing Member")
		}
		if m.HasResponseSerial {
			return fmt.Errorf("dbus: call message must not carry a response serial")
		}
	case Reply:
		if !m.HasResponseSerial {
			return fmt.Errorf("dbus: reply message missing response serial")
		}
	case Error:
		if !m.HasResponseSerial {
			return fmt.Errorf("dbus: error message missing response serial")
		}
		if m.ErrorName == "" {
			return fmt.Errorf("dbus: error message missing ErrorName")
		}
	case Signal:
		if m.Path == "" {
			return fmt.Errorf("dbus: signal message missing Path")
		}
		if m.Interface == "" {
			return fmt.Errorf("dbus: signal message missing Interface")
		}
		if m.Member == "" {
			return fmt.Errorf("dbus: signal message missing Member")
		}
	default:
		return dbuserr.ErrUnexpectedTypeReceived
	}
	return nil
}

// Marshal encodes m to its wire representation, using order as the
// byte-order mark. The returned bytes do not include m.RawFDs: those
// travel out-of-band as sendmsg ancillary data.
func Marshal(order wire.ByteOrder, m *Message) []byte {
	fields := wire.Fields{
		Path:        string(m.Path),
		Interface:   m.Interface,
		Member:      m.Member,
		ErrorName:   m.ErrorName,
		Destination: m.Destination,
		Sender:      m.Sender,
		Signature:   m.Signature,
		NumFDs:      uint32(len(m.RawFDs)),
	}
	if m.HasResponseSerial {
		fields.ReplySerial = m.ResponseSerial
		fields.HasReplySerial = true
	}
	fieldBytes := wire.MarshalFields(order, fields)

	buf := wire.MarshalPrefix(wire.Prefix{
		Order:   order,
		Type:    byte(m.Type),
		Flags:   m.Flags,
		Version: 1,
		Serial:  m.Serial,
		BodyLen: uint32(len(m.Body)),
	})
	buf = order.Std().AppendUint32(buf, uint32(len(fieldBytes)))
	buf = append(buf, fieldBytes...)

	complete := len(buf)
	pad := (8 - complete%8) % 8
	buf = append(buf, make([]byte, pad)...)
	buf = append(buf, m.Body...)
	return buf
}

// Unmarshal decodes one message from buf, given its already-parsed
// fixed prefix. buf must start right after the 16-byte prefix and
// contain at least the header-fields length, the fields, padding,
// and the body. It returns the number of bytes of buf consumed; the
// caller (Transport.Receive) treats a mismatch against its own framing
// computation as a FramingError.
func Unmarshal(prefix wire.Prefix, buf []byte) (*Message, int, error) {
	if len(buf) < 4 {
		return nil, 0, dbuserr.Unmarshal(fmt.Errorf("buffer too short for header-fields length"))
	}
	fieldsLen := prefix.Order.Std().Uint32(buf[:4])
	need := 4 + int(fieldsLen)
	if len(buf) < need {
		return nil, 0, dbuserr.Unmarshal(fmt.Errorf("buffer too short for header fields"))
	}
	fields, err := wire.UnmarshalFields(prefix.Order, buf[4:need])
	if err != nil {
		return nil, 0, dbuserr.Unmarshal(err)
	}

	complete := wire.HeaderPrefixLen + need
	pad := (8 - complete%8) % 8
	bodyStart := need + pad
	bodyEnd := bodyStart + int(prefix.BodyLen)
	if len(buf) < bodyEnd {
		return nil, 0, dbuserr.Unmarshal(fmt.Errorf("buffer too short for body"))
	}

	m := &Message{
		Type:        Type(prefix.Type),
		Serial:      prefix.Serial,
		Flags:       prefix.Flags,
		Path:        ObjectPath(fields.Path),
		Interface:   fields.Interface,
		Member:      fields.Member,
		ErrorName:   fields.ErrorName,
		Destination: fields.Destination,
		Sender:      fields.Sender,
		Signature:   fields.Signature,
		Body:        append([]byte(nil), buf[bodyStart:bodyEnd]...),
	}
	if fields.HasReplySerial {
		m.ResponseSerial = fields.ReplySerial
		m.HasResponseSerial = true
	}
	return m, bodyEnd, nil
}

package message

import "github.com/kvark9/dbuscore/wire"

// UnknownMethod is "the external standard-messages collaborator" of
// spec.md §4.2: it builds the Error reply a Dispatcher sends back to
// the caller of a Call message that its acceptance filter rejected.
func UnknownMethod(call *Message) *Message {
	body := (&wire.Encoder{Order: wire.LittleEndian})
	body.String("no such method " + call.Interface + "." + call.Member)

	return &Message{
		Type:              Error,
		Destination:       call.Sender,
		ResponseSerial:    call.Serial,
		HasResponseSerial: true,
		ErrorName:         "org.freedesktop.DBus.Error.UnknownMethod",
		Signature:         "s",
		Body:              body.Out,
	}
}

package message_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kvark9/dbuscore/message"
	"github.com/kvark9/dbuscore/wire"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []*message.Message{
		{
			Type:        message.Call,
			Serial:      1,
			Path:        "/org/example/Object",
			Interface:   "org.example.Iface",
			Member:      "Method",
			Destination: "org.example.Dest",
			Sender:      ":1.1",
			Signature:   "s",
			Body:        []byte("hello\x00"),
		},
		{
			Type:              message.Reply,
			Serial:            2,
			HasResponseSerial: true,
			ResponseSerial:    1,
			Sender:            ":1.2",
		},
		{
			Type:              message.Error,
			Serial:            3,
			HasResponseSerial: true,
			ResponseSerial:    1,
			ErrorName:         "org.example.Error.Failed",
		},
		{
			Type:      message.Signal,
			Serial:    4,
			Path:      "/org/example/Object",
			Interface: "org.example.Iface",
			Member:    "Changed",
		},
	}

	for _, want := range cases {
		t.Run(want.Type.String(), func(t *testing.T) {
			buf := message.Marshal(wire.LittleEndian, want)

			prefix, err := wire.UnmarshalPrefix(buf[:wire.HeaderPrefixLen])
			if err != nil {
				t.Fatalf("UnmarshalPrefix: %v", err)
			}

			got, consumed, err := message.Unmarshal(prefix, buf[wire.HeaderPrefixLen:])
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if consumed != len(buf)-wire.HeaderPrefixLen {
				t.Fatalf("consumed %d bytes, want %d", consumed, len(buf)-wire.HeaderPrefixLen)
			}

			got.RawFDs = nil
			want.RawFDs = nil
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		msg  *message.Message
		ok   bool
	}{
		{"invalid type", &message.Message{Type: message.Invalid, Serial: 1}, false},
		{"zero serial", &message.Message{Type: message.Signal, Serial: 0}, false},
		{"call missing member", &message.Message{Type: message.Call, Serial: 1, Path: "/a", Interface: "b"}, false},
		{"call ok", &message.Message{Type: message.Call, Serial: 1, Path: "/a", Interface: "b", Member: "c"}, true},
		{"reply missing response serial", &message.Message{Type: message.Reply, Serial: 1}, false},
		{"reply ok", &message.Message{Type: message.Reply, Serial: 1, HasResponseSerial: true}, true},
		{"error missing name", &message.Message{Type: message.Error, Serial: 1, HasResponseSerial: true}, false},
		{"signal missing path", &message.Message{Type: message.Signal, Serial: 1, Interface: "b", Member: "c"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.msg.Valid()
			if (err == nil) != c.ok {
				t.Fatalf("Valid() = %v, want ok=%v", err, c.ok)
			}
		})
	}
}

func TestUnknownMethod(t *testing.T) {
	call := &message.Message{
		Type:      message.Call,
		Serial:    7,
		Path:      "/org/example/Object",
		Interface: "org.example.Iface",
		Member:    "Nope",
		Sender:    ":1.9",
	}
	reply := message.UnknownMethod(call)
	if reply.Type != message.Error {
		t.Fatalf("UnknownMethod reply has type %v, want Error", reply.Type)
	}
	if !reply.HasResponseSerial || reply.ResponseSerial != call.Serial {
		t.Fatalf("UnknownMethod reply has wrong response serial: %+v", reply)
	}
	if reply.Destination != call.Sender {
		t.Fatalf("UnknownMethod reply addressed to %q, want %q", reply.Destination, call.Sender)
	}
	if reply.ErrorName != "org.freedesktop.DBus.Error.UnknownMethod" {
		t.Fatalf("unexpected error name %q", reply.ErrorName)
	}
}

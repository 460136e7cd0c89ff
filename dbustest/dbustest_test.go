package dbustest_test

import (
	"testing"
	"time"

	"github.com/kvark9/dbuscore/dbustest"
	"github.com/kvark9/dbuscore/message"
)

func TestPairRoundTrip(t *testing.T) {
	p := dbustest.New(t, false)

	call := &message.Message{
		Type:      message.Call,
		Path:      "/org/freedesktop/DBus",
		Interface: "org.freedesktop.DBus.Peer",
		Member:    "Ping",
	}
	sent, err := p.Client.Send(call, time.Second)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.Serial == 0 {
		t.Fatalf("Send left serial unset")
	}

	got, err := p.Receive()
	if err != nil {
		t.Fatalf("Peer.Receive: %v", err)
	}
	if got.Member != "Ping" || got.Interface != "org.freedesktop.DBus.Peer" {
		t.Fatalf("peer received wrong message: %+v", got)
	}
	if got.Serial != sent.Serial {
		t.Fatalf("serial mismatch: sent %d, peer saw %d", sent.Serial, got.Serial)
	}

	reply := &message.Message{
		Type:              message.Reply,
		Serial:            100,
		HasResponseSerial: true,
		ResponseSerial:    got.Serial,
	}
	if err := p.Send(reply); err != nil {
		t.Fatalf("Peer.Send: %v", err)
	}

	back, err := p.Client.Receive(time.Second)
	if err != nil {
		t.Fatalf("Client.Receive: %v", err)
	}
	if back.Type != message.Reply || back.ResponseSerial != sent.Serial {
		t.Fatalf("client received wrong reply: %+v", back)
	}
}

package transport_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kvark9/dbuscore/dbuserr"
	"github.com/kvark9/dbuscore/dbustest"
	"github.com/kvark9/dbuscore/message"
)

func TestSendStampsIncreasingSerials(t *testing.T) {
	p := dbustest.New(t, false)

	var serials []uint32
	for i := 0; i < 3; i++ {
		msg := &message.Message{
			Type:      message.Signal,
			Path:      "/obj",
			Interface: "org.example.Iface",
			Member:    "Event",
		}
		sent, err := p.Client.Send(msg, time.Second)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		serials = append(serials, sent.Serial)
	}
	for i := 1; i < len(serials); i++ {
		if serials[i] <= serials[i-1] {
			t.Fatalf("serials not strictly increasing: %v", serials)
		}
	}
}

func TestReceiveRoundTrip(t *testing.T) {
	p := dbustest.New(t, false)

	want := &message.Message{
		Type:      message.Signal,
		Serial:    55,
		Path:      "/org/example/Object",
		Interface: "org.example.Iface",
		Member:    "Changed",
		Signature: "s",
		Body:      []byte("hi\x00"),
	}
	if err := p.Send(want); err != nil {
		t.Fatalf("peer Send: %v", err)
	}

	got, err := p.Client.Receive(time.Second)
	if err != nil {
		t.Fatalf("Client.Receive: %v", err)
	}
	if got.Member != want.Member || got.Interface != want.Interface || got.Serial != want.Serial {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}
}

func TestReceiveTimesOutWithNothingSent(t *testing.T) {
	p := dbustest.New(t, false)

	_, err := p.Client.Receive(50 * time.Millisecond)
	if !errors.Is(err, dbuserr.ErrTimedOut) {
		t.Fatalf("Receive error = %v, want ErrTimedOut", err)
	}
}

func TestReceiveAttributesDescriptorsAcrossBatchedMessages(t *testing.T) {
	p := dbustest.New(t, true)

	fa, err := os.CreateTemp(t.TempDir(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer fa.Close()
	fb, err := os.CreateTemp(t.TempDir(), "b")
	if err != nil {
		t.Fatal(err)
	}
	defer fb.Close()

	msgA := &message.Message{
		Type:      message.Signal,
		Serial:    1,
		Path:      "/obj",
		Interface: "org.example.Iface",
		Member:    "A",
		RawFDs:    []*os.File{fa},
	}
	msgB := &message.Message{
		Type:      message.Signal,
		Serial:    2,
		Path:      "/obj",
		Interface: "org.example.Iface",
		Member:    "B",
		RawFDs:    []*os.File{fb},
	}
	if err := p.Send(msgA); err != nil {
		t.Fatalf("send A: %v", err)
	}
	if err := p.Send(msgB); err != nil {
		t.Fatalf("send B: %v", err)
	}

	gotA, err := p.Client.Receive(time.Second)
	if err != nil {
		t.Fatalf("receive A: %v", err)
	}
	if gotA.Member != "A" || len(gotA.RawFDs) != 1 {
		t.Fatalf("message A: got %+v", gotA)
	}
	for _, f := range gotA.RawFDs {
		f.Close()
	}

	gotB, err := p.Client.Receive(time.Second)
	if err != nil {
		t.Fatalf("receive B: %v", err)
	}
	if gotB.Member != "B" || len(gotB.RawFDs) != 1 {
		t.Fatalf("message B: got %+v", gotB)
	}
	for _, f := range gotB.RawFDs {
		f.Close()
	}
}

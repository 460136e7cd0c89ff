package busaddr_test

import (
	"errors"
	"os"
	"testing"

	"github.com/kvark9/dbuscore/busaddr"
	"github.com/kvark9/dbuscore/dbuserr"
)

func TestParseUnixPath(t *testing.T) {
	got, err := busaddr.ParseUnixPath("unix:path=/tmp/bus.sock")
	if err != nil {
		t.Fatalf("ParseUnixPath: %v", err)
	}
	if got != "/tmp/bus.sock" {
		t.Fatalf("ParseUnixPath = %q, want /tmp/bus.sock", got)
	}

	if _, err := busaddr.ParseUnixPath("tcp:host=localhost"); err == nil {
		t.Fatalf("expected an error for a non-unix address")
	}
}

func TestSessionBusAddressMissingEnv(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")
	if _, err := busaddr.SessionBusAddress(); !errors.Is(err, dbuserr.ErrNoAddressFound) {
		t.Fatalf("SessionBusAddress error = %v, want ErrNoAddressFound", err)
	}
}

func TestSessionBusAddressUnsupportedForm(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "tcp:host=localhost")
	var wantErr dbuserr.AddressNotSupportedError
	if _, err := busaddr.SessionBusAddress(); !errors.As(err, &wantErr) {
		t.Fatalf("SessionBusAddress error = %v, want AddressNotSupportedError", err)
	}
}

func TestSessionBusAddressMissingSocket(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/nonexistent/bus.sock")
	var wantErr dbuserr.PathDoesNotExistError
	if _, err := busaddr.SessionBusAddress(); !errors.As(err, &wantErr) {
		t.Fatalf("SessionBusAddress error = %v, want PathDoesNotExistError", err)
	}
}

func TestSessionBusAddressFound(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bus.sock")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+f.Name())

	got, err := busaddr.SessionBusAddress()
	if err != nil {
		t.Fatalf("SessionBusAddress: %v", err)
	}
	if got != f.Name() {
		t.Fatalf("SessionBusAddress = %q, want %q", got, f.Name())
	}
}

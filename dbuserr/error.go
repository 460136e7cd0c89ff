// Package dbuserr defines the error taxonomy shared by the transport
// and dispatch layers.
//
// Most errors are sentinel values checked with [errors.Is], following
// the same convention the transport layer already relies on for
// os.ErrDeadlineExceeded. The two errors that carry a diagnostic
// payload (AddressNotSupportedError, PathDoesNotExistError) are small
// struct types with an Error method, checked with [errors.As].
package dbuserr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed is returned when the bus rejects the authentication
	// handshake.
	ErrAuthFailed = errors.New("dbus: authentication failed")
	// ErrUnixFDNegotiationFailed is returned when unix-fd passing was
	// requested but the bus rejected the negotiation.
	ErrUnixFDNegotiationFailed = errors.New("dbus: unix fd negotiation failed")
	// ErrNameTaken is returned when a requested bus name is already owned.
	ErrNameTaken = errors.New("dbus: name already taken")
	// ErrNoAddressFound is returned when no usable bus address could be
	// determined from the environment.
	ErrNoAddressFound = errors.New("dbus: no bus address found")
	// ErrUnexpectedTypeReceived is returned when a message with an
	// invalid or unrecognised type arrives on the wire.
	ErrUnexpectedTypeReceived = errors.New("dbus: unexpected message type received")
	// ErrTimedOut is returned when an operation's timeout elapses before
	// it could complete. It is benign: the connection remains usable.
	ErrTimedOut = errors.New("dbus: timed out")
	// ErrFramingError is returned when the unmarshaller consumes a
	// different number of bytes than the framing algorithm computed.
	ErrFramingError = errors.New("dbus: framing error")

	// ErrIO tags a failure from the underlying socket.
	ErrIO = errors.New("dbus: io error")
	// ErrSyscall tags a failure handling ancillary data received with
	// recvmsg (truncated or unparseable control messages). Errors from
	// recvmsg/sendmsg themselves are tagged ErrIO.
	ErrSyscall = errors.New("dbus: syscall error")
	// ErrUnmarshal tags a failure decoding a message off the wire.
	ErrUnmarshal = errors.New("dbus: unmarshal error")
	// ErrMarshal tags a failure encoding a message for the wire.
	ErrMarshal = errors.New("dbus: marshal error")
)

// AddressNotSupportedError is returned when a bus address is
// well-formed but not of the "unix:path=" form this module supports.
type AddressNotSupportedError struct {
	Address string
}

func (e AddressNotSupportedError) Error() string {
	return fmt.Sprintf("dbus: address type not supported: %q", e.Address)
}

// PathDoesNotExistError is returned when a unix socket path decoded
// from a bus address does not exist on disk.
type PathDoesNotExistError struct {
	Path string
}

func (e PathDoesNotExistError) Error() string {
	return fmt.Sprintf("dbus: path does not exist: %q", e.Path)
}

// IO wraps err as an I/O failure, checkable with errors.Is(err, ErrIO).
func IO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// Syscall wraps err as a raw syscall failure.
func Syscall(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSyscall, err)
}

// Unmarshal wraps err as an unmarshalling failure.
func Unmarshal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnmarshal, err)
}

// Marshal wraps err as a marshalling failure.
func Marshal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMarshal, err)
}

// Package busaddr implements the one supported DBus address form,
// "unix:path=/absolute/path", and the conventions for locating the
// session and system bus (spec.md §6).
package busaddr

import (
	"os"
	"strings"

	"github.com/kvark9/dbuscore/dbuserr"
)

// SystemBusPath is the well-known path of the system bus socket.
const SystemBusPath = "/run/dbus/system_bus_socket"

const unixPathPrefix = "unix:path="

// ParseUnixPath extracts the socket path from a single DBus address
// of the form "unix:path=/some/path". Any other address form fails
// with dbuserr.AddressNotSupportedError.
func ParseUnixPath(addr string) (string, error) {
	path, ok := strings.CutPrefix(addr, unixPathPrefix)
	if !ok {
		return "", dbuserr.AddressNotSupportedError{Address: addr}
	}
	return path, nil
}

// SessionBusAddress resolves the path to the current user's session
// bus from the DBUS_SESSION_BUS_ADDRESS environment variable.
//
// If the variable is unset, it returns dbuserr.ErrNoAddressFound. If
// it is set but is not a "unix:path=" address, it returns
// dbuserr.AddressNotSupportedError. If the address decodes to a path
// that does not exist on disk, it returns dbuserr.PathDoesNotExistError.
func SessionBusAddress() (string, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return "", dbuserr.ErrNoAddressFound
	}
	path, err := ParseUnixPath(addr)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", dbuserr.PathDoesNotExistError{Path: path}
	}
	return path, nil
}

// SystemBus resolves the path to the system bus socket, failing with
// dbuserr.PathDoesNotExistError if it is not present.
func SystemBus() (string, error) {
	if _, err := os.Stat(SystemBusPath); err != nil {
		return "", dbuserr.PathDoesNotExistError{Path: SystemBusPath}
	}
	return SystemBusPath, nil
}

package transport_test

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kvark9/dbuscore/dbuserr"
	"github.com/kvark9/dbuscore/transport"
	"github.com/kvark9/dbuscore/wire"
)

func socketpair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return toUnixConn(t, fds[0]), toUnixConn(t, fds[1])
}

func toUnixConn(t *testing.T, fd int) *net.UnixConn {
	t.Helper()
	f := os.NewFile(uintptr(fd), "sock")
	c, err := net.FileConn(f)
	f.Close()
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	return c.(*net.UnixConn)
}

func TestConnectConnRejectedAuth(t *testing.T) {
	client, peer := socketpair(t)
	defer peer.Close()

	go func() {
		r := bufio.NewReader(peer)
		r.ReadString('\n')
		io.WriteString(peer, "REJECTED\r\n")
	}()

	_, err := transport.ConnectConn(client, "test", wire.LittleEndian, false)
	if !errors.Is(err, dbuserr.ErrAuthFailed) {
		t.Fatalf("ConnectConn error = %v, want ErrAuthFailed", err)
	}
}

func TestConnectConnUnixFDNegotiationRefused(t *testing.T) {
	client, peer := socketpair(t)
	defer peer.Close()

	go func() {
		r := bufio.NewReader(peer)
		r.ReadString('\n')
		io.WriteString(peer, "OK 0123456789abcdef0123456789abcdef\r\n")
		r.ReadString('\n')
		io.WriteString(peer, "ERROR\r\n")
	}()

	_, err := transport.ConnectConn(client, "test", wire.LittleEndian, true)
	if !errors.Is(err, dbuserr.ErrUnixFDNegotiationFailed) {
		t.Fatalf("ConnectConn error = %v, want ErrUnixFDNegotiationFailed", err)
	}
}

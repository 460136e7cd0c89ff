// Package dbustest provides a loopback test harness for package
// transport and the root Dispatcher: a connected socketpair standing
// in for a real bus daemon, backed by unix.Socketpair rather than a
// real dbus-daemon subprocess, so the testable properties of spec.md §8
// (serial monotonicity, descriptor attribution, round-tripping,
// filter demux) can run without any system dependency.
package dbustest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kvark9/dbuscore/message"
	"github.com/kvark9/dbuscore/transport"
	"github.com/kvark9/dbuscore/wire"
)

// Pair is a client Transport connected, over a socketpair, to a Peer
// that speaks raw framing on the other end in place of a bus daemon.
type Pair struct {
	Client *transport.Transport
	Peer   *net.UnixConn
}

// New creates a Pair, running the EXTERNAL auth handshake between the
// two ends inline. t.Fatal is called on any setup failure.
func New(t *testing.T, requestUnixFDs bool) *Pair {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("dbustest: socketpair: %v", err)
	}

	clientConn := fileToUnixConn(t, fds[0], "dbustest-client")
	peerConn := fileToUnixConn(t, fds[1], "dbustest-peer")

	authErr := make(chan error, 1)
	go func() { authErr <- serveAuth(peerConn, requestUnixFDs) }()

	client, err := transport.ConnectConn(clientConn, "dbustest", wire.LittleEndian, requestUnixFDs)
	if err != nil {
		t.Fatalf("dbustest: client handshake: %v", err)
	}
	if err := <-authErr; err != nil {
		t.Fatalf("dbustest: peer handshake: %v", err)
	}

	p := &Pair{Client: client, Peer: peerConn}
	t.Cleanup(p.Close)
	return p
}

// Close tears down both ends of the pair.
func (p *Pair) Close() {
	p.Client.Close()
	p.Peer.Close()
}

// Send writes msg on the peer end, playing the part of the bus daemon
// delivering a message to the client. Descriptors in msg.RawFDs travel
// as SCM_RIGHTS ancillary data alongside the framed bytes, in exactly
// one sendmsg call, so tests can construct the batched-recvmsg
// scenarios spec.md §8 describes.
func (p *Pair) Send(msg *message.Message) error {
	buf := message.Marshal(wire.LittleEndian, msg)

	var oob []byte
	if len(msg.RawFDs) > 0 {
		fds := make([]int, len(msg.RawFDs))
		for i, f := range msg.RawFDs {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}

	n, oobn, err := p.Peer.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	if oobn != len(oob) {
		return fmt.Errorf("dbustest: short ancillary write, sent %d of %d bytes", oobn, len(oob))
	}
	return nil
}

// SendRaw writes arbitrary bytes on the peer end, for tests that need
// to induce a FramingError or other malformed-input condition the
// Message marshaller itself would never produce.
func (p *Pair) SendRaw(buf []byte) error {
	n, err := p.Peer.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// Receive reads exactly one message off the peer end, playing the
// part of the bus daemon observing what the client sent — e.g. to
// assert the Dispatcher synthesized and sent back an UnknownMethod
// reply. Descriptors are not collected: tests needing descriptor
// attribution exercise Client.Receive, not this peer-side helper.
func (p *Pair) Receive() (*message.Message, error) {
	prefixBuf, err := readN(p.Peer, wire.HeaderPrefixLen)
	if err != nil {
		return nil, err
	}
	prefix, err := wire.UnmarshalPrefix(prefixBuf)
	if err != nil {
		return nil, err
	}

	lenBuf, err := readN(p.Peer, 4)
	if err != nil {
		return nil, err
	}
	fieldsLen := prefix.Order.Std().Uint32(lenBuf)

	completeHeader := wire.HeaderPrefixLen + 4 + int(fieldsLen)
	pad := (8 - completeHeader%8) % 8
	rest, err := readN(p.Peer, int(fieldsLen)+pad+int(prefix.BodyLen))
	if err != nil {
		return nil, err
	}

	buf := append(lenBuf, rest...)
	msg, _, err := message.Unmarshal(prefix, buf)
	return msg, err
}

func readN(conn *net.UnixConn, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// serveAuth plays the bus daemon's half of the handshake: accept
// EXTERNAL auth unconditionally, agree to unix-fd negotiation if
// asked, and consume BEGIN before raw message framing starts.
func serveAuth(conn *net.UnixConn, expectNegotiateUnixFDs bool) error {
	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("dbustest: reading AUTH line: %w", err)
	}
	if !strings.Contains(line, "AUTH EXTERNAL") {
		return fmt.Errorf("dbustest: unexpected auth line %q", line)
	}
	if _, err := io.WriteString(conn, "OK 0123456789abcdef0123456789abcdef\r\n"); err != nil {
		return err
	}

	if expectNegotiateUnixFDs {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("dbustest: reading NEGOTIATE_UNIX_FD line: %w", err)
		}
		if line != "NEGOTIATE_UNIX_FD\r\n" {
			return fmt.Errorf("dbustest: expected NEGOTIATE_UNIX_FD, got %q", line)
		}
		if _, err := io.WriteString(conn, "AGREE_UNIX_FD\r\n"); err != nil {
			return err
		}
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("dbustest: reading BEGIN line: %w", err)
	}
	if line != "BEGIN\r\n" {
		return fmt.Errorf("dbustest: expected BEGIN, got %q", line)
	}
	if r.Buffered() > 0 {
		return fmt.Errorf("dbustest: %d bytes arrived before BEGIN", r.Buffered())
	}
	return nil
}

func fileToUnixConn(t *testing.T, fd int, name string) *net.UnixConn {
	t.Helper()
	f := os.NewFile(uintptr(fd), name)
	c, err := net.FileConn(f)
	f.Close()
	if err != nil {
		t.Fatalf("dbustest: %s: %v", name, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		t.Fatalf("dbustest: %s: not a unix conn", name)
	}
	return uc
}

// Package transport owns one connected unix-domain stream socket to
// a DBus bus daemon and implements spec.md §4.1: the authentication
// handshake, message-framed send/receive, and ancillary file
// descriptor attribution.
package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kvark9/dbuscore/dbuserr"
	"github.com/kvark9/dbuscore/message"
	"github.com/kvark9/dbuscore/wire"
)

const (
	refillScratch = 512
	refillMaxFDs  = 10
)

// Transport is a raw, framed DBus connection over a unix-domain
// stream socket. A Transport is not safe for concurrent use: the
// owner must serialise Send and Receive calls.
type Transport struct {
	path    string
	conn    *net.UnixConn
	order   wire.ByteOrder
	recvBuf []byte
	// recvFiles accumulates descriptors collected for the
	// in-progress Receive across however many refill calls it takes
	// to complete. It survives a TimedOut Receive so the next call can
	// resume the same message instead of losing already-attributed
	// descriptors.
	recvFiles []*os.File
	serial    uint32
}

// Connect opens a unix-domain stream socket to path, runs the
// authentication handshake, and optionally negotiates unix-fd
// passing, per spec.md §4.1 Connect.
func Connect(path string, order wire.ByteOrder, requestUnixFDs bool) (*Transport, error) {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Net: "unix", Name: path})
	if err != nil {
		return nil, dbuserr.IO(err)
	}
	t, err := ConnectConn(conn, path, order, requestUnixFDs)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

// ConnectConn runs the same handshake as Connect over an
// already-connected unix socket. It exists so tests can exercise the
// framing algorithm over a socketpair without a real bus daemon.
func ConnectConn(conn *net.UnixConn, path string, order wire.ByteOrder, requestUnixFDs bool) (*Transport, error) {
	a := newAuth(conn)
	if err := a.doAuth(); err != nil {
		return nil, err
	}
	if requestUnixFDs {
		if err := a.negotiateUnixFDs(); err != nil {
			return nil, err
		}
	}
	if err := a.sendBegin(); err != nil {
		return nil, err
	}
	if n := a.buffered(); n > 0 {
		return nil, fmt.Errorf("dbus: %d bytes of message traffic arrived before BEGIN was acknowledged", n)
	}

	return &Transport{
		path:   path,
		conn:   conn,
		order:  order,
		serial: 1,
	}, nil
}

// Path returns the socket path this Transport is connected to, for
// diagnostics.
func (t *Transport) Path() string { return t.path }

// Close closes the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Send marshals and sends msg, stamping it with the next serial if it
// doesn't already carry one, and returns the (possibly stamped)
// message so the caller can record its serial. A timeout of zero or
// less means wait indefinitely.
func (t *Transport) Send(msg *message.Message, timeout time.Duration) (*message.Message, error) {
	if msg.Serial == 0 {
		msg.Serial = t.serial
		t.serial++
	}

	// Outbound byte order is always little-endian, matching the
	// canonical DBus client default, regardless of the byte order the
	// Transport was configured with at Connect time.
	buf := message.Marshal(wire.LittleEndian, msg)

	if timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return nil, dbuserr.IO(err)
		}
		defer t.conn.SetWriteDeadline(time.Time{})
	}

	var oob []byte
	if len(msg.RawFDs) > 0 {
		fds := make([]int, len(msg.RawFDs))
		for i, f := range msg.RawFDs {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}

	n, oobn, err := t.conn.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, dbuserr.ErrTimedOut
		}
		return nil, dbuserr.IO(err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: short write, sent %d of %d bytes", dbuserr.ErrIO, n, len(buf))
	}
	if oobn != len(oob) {
		return nil, fmt.Errorf("%w: short ancillary write, sent %d of %d bytes", dbuserr.ErrIO, oobn, len(oob))
	}
	return msg, nil
}

// Receive reads exactly one complete message and the file descriptors
// delivered alongside it (spec.md §4.1's central framing algorithm). A
// timeout of zero or less means wait indefinitely.
func (t *Transport) Receive(timeout time.Duration) (*message.Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, dbuserr.IO(err)
		}
		defer t.conn.SetReadDeadline(time.Time{})
	}

	// fail reports err without disturbing state on a benign TimedOut:
	// per spec.md §4.1/§5, refill only ever appends to t.recvBuf on
	// success, so the buffer (and any descriptors already attributed
	// to the in-progress message) stay consistent and the next
	// Receive call resumes framing exactly where this one left off.
	// Any other error means the connection may be out of sync, so the
	// partial state is discarded and the orphaned descriptors closed.
	fail := func(err error) (*message.Message, error) {
		if !errors.Is(err, dbuserr.ErrTimedOut) {
			t.recvBuf = t.recvBuf[:0]
			closeAll(t.recvFiles)
			t.recvFiles = nil
		}
		return nil, err
	}

	// Phase A: the fixed header prefix.
	for len(t.recvBuf) < wire.HeaderPrefixLen {
		fs, err := t.refill(wire.HeaderPrefixLen, deadline)
		t.recvFiles = append(t.recvFiles, fs...)
		if err != nil {
			return fail(err)
		}
	}
	prefix, err := wire.UnmarshalPrefix(t.recvBuf)
	if err != nil {
		return fail(dbuserr.Unmarshal(err))
	}

	// Phase B: the header-fields array length.
	for len(t.recvBuf) < wire.HeaderPrefixLen+4 {
		fs, err := t.refill(wire.HeaderPrefixLen+4, deadline)
		t.recvFiles = append(t.recvFiles, fs...)
		if err != nil {
			return fail(err)
		}
	}
	fieldsLen := prefix.Order.Std().Uint32(t.recvBuf[wire.HeaderPrefixLen : wire.HeaderPrefixLen+4])

	completeHeader := wire.HeaderPrefixLen + int(fieldsLen) + 4
	pad := (8 - completeHeader%8) % 8
	total := wire.HeaderPrefixLen + 4 + int(fieldsLen) + pad + int(prefix.BodyLen)

	// Phase C: the body.
	for len(t.recvBuf) < total {
		fs, err := t.refill(total, deadline)
		t.recvFiles = append(t.recvFiles, fs...)
		if err != nil {
			return fail(err)
		}
	}

	msg, consumed, err := message.Unmarshal(prefix, t.recvBuf[wire.HeaderPrefixLen:total])
	if err != nil {
		return fail(err)
	}
	if consumed != total-wire.HeaderPrefixLen {
		return fail(dbuserr.ErrFramingError)
	}
	if err := msg.Valid(); err != nil {
		return fail(err)
	}

	t.recvBuf = t.recvBuf[:0]
	msg.RawFDs = t.recvFiles
	t.recvFiles = nil
	return msg, nil
}

// refill reads at most one recvmsg's worth of bytes towards
// targetLen, appending them to t.recvBuf, and returns any SCM_RIGHTS
// descriptors delivered alongside. It never requests more than
// "bytes still needed for the current message", so descriptors
// belonging to a subsequent message arriving in the same kernel
// ancillary batch can never be misattributed to this one.
func (t *Transport) refill(targetLen int, deadline time.Time) ([]*os.File, error) {
	want := targetLen - len(t.recvBuf)
	if want <= 0 {
		return nil, nil
	}
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return nil, dbuserr.ErrTimedOut
	}

	n := min(want, refillScratch)
	var scratch [refillScratch]byte
	oob := make([]byte, unix.CmsgSpace(refillMaxFDs*4))

	nr, oobn, flags, _, err := t.conn.ReadMsgUnix(scratch[:n], oob)
	if flags&unix.MSG_CTRUNC != 0 {
		return nil, fmt.Errorf("%w: ancillary data truncated", dbuserr.ErrSyscall)
	}

	var files []*os.File
	if oobn > 0 {
		files, err = parseAncillary(oob[:oobn])
		if err != nil {
			return nil, err
		}
	}

	if err != nil {
		closeAll(files)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, dbuserr.ErrTimedOut
		}
		return nil, dbuserr.IO(err)
	}

	t.recvBuf = append(t.recvBuf, scratch[:nr]...)
	return files, nil
}

// parseAncillary extracts SCM_RIGHTS descriptors from a control
// message buffer. Any other kind of ancillary message is logged and
// dropped: future kernel ancillary kinds must not break framing.
func parseAncillary(oob []byte) ([]*os.File, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, dbuserr.Syscall(err)
	}

	var files []*os.File
	var errs []error
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			log.Printf("dbus: ignoring ancillary message of level %d, type %d", scm.Header.Level, scm.Header.Type)
			continue
		}
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, fd := range fds {
			f := os.NewFile(uintptr(fd), "")
			if f == nil {
				errs = append(errs, fmt.Errorf("invalid file descriptor %d received on dbus socket", fd))
				continue
			}
			files = append(files, f)
		}
	}
	if len(errs) > 0 {
		closeAll(files)
		return nil, dbuserr.Syscall(errors.Join(errs...))
	}
	return files, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

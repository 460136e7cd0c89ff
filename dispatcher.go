// Package dbus implements the client-facing half of a DBus message
// bus connection: a [Dispatcher] that demultiplexes one Transport's
// byte stream into pending calls, pending signals, and reply-by-serial
// lookups, per spec.md §4.2.
//
// General value marshalling, object/method dispatch by name, and the
// rest of the protocol's higher layers are out of scope: callers
// marshal and unmarshal message bodies themselves, and interpret
// Path/Interface/Member however their application needs to.
package dbus

import (
	"time"

	"github.com/creachadair/mds/queue"

	"github.com/kvark9/dbuscore/dbuserr"
	"github.com/kvark9/dbuscore/message"
	"github.com/kvark9/dbuscore/transport"
)

// Filter decides whether a Dispatcher accepts an inbound Message into
// its collections. Filters must not fail or block; the zero Filter
// (nil) is treated as accept-all.
type Filter func(*message.Message) bool

// AcceptAll is the default Filter: every message is admitted.
func AcceptAll(*message.Message) bool { return true }

// Dispatcher wraps one owned Transport and owns the three collections
// of spec.md §3: a FIFO of inbound calls, a FIFO of inbound signals,
// and a serial-keyed map of inbound replies and errors. A Dispatcher
// is not safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	t         *transport.Transport
	calls     queue.Queue[*message.Message]
	signals   queue.Queue[*message.Message]
	responses map[uint32]*message.Message
	filter    Filter
}

// NewDispatcher wraps t, taking ownership of it: closing the
// Dispatcher's Transport is the caller's responsibility via
// d.Close().
func NewDispatcher(t *transport.Transport) *Dispatcher {
	return &Dispatcher{
		t:         t,
		responses: make(map[uint32]*message.Message),
		filter:    AcceptAll,
	}
}

// Close closes the underlying Transport.
func (d *Dispatcher) Close() error {
	return d.t.Close()
}

// SetFilter replaces the acceptance predicate. A nil filter resets to
// AcceptAll.
func (d *Dispatcher) SetFilter(f Filter) {
	if f == nil {
		f = AcceptAll
	}
	d.filter = f
}

// Send marshals and sends msg, passing straight through to the
// underlying Transport.
func (d *Dispatcher) Send(msg *message.Message, timeout time.Duration) (*message.Message, error) {
	return d.t.Send(msg, timeout)
}

// TryCall removes and returns the oldest pending call, if any.
func (d *Dispatcher) TryCall() (*message.Message, bool) {
	return d.calls.Pop()
}

// WaitCall blocks, refilling the collections from the Transport as
// needed, until a call is available or timeout elapses. A timeout of
// zero or less means wait indefinitely.
func (d *Dispatcher) WaitCall(timeout time.Duration) (*message.Message, error) {
	return d.waitFor(deadlineFrom(timeout), d.TryCall)
}

// TrySignal removes and returns the oldest pending signal, if any.
func (d *Dispatcher) TrySignal() (*message.Message, bool) {
	return d.signals.Pop()
}

// WaitSignal blocks until a signal is available or timeout elapses.
func (d *Dispatcher) WaitSignal(timeout time.Duration) (*message.Message, error) {
	return d.waitFor(deadlineFrom(timeout), d.TrySignal)
}

// TryResponse removes and returns the Reply or Error addressed to
// serial, if one has already arrived.
func (d *Dispatcher) TryResponse(serial uint32) (*message.Message, bool) {
	m, ok := d.responses[serial]
	if ok {
		delete(d.responses, serial)
	}
	return m, ok
}

// WaitResponse blocks until the Reply or Error addressed to serial
// arrives or timeout elapses. Calls and signals that arrive while
// waiting are enqueued as a side effect, per spec.md §4.2's ordering
// contract.
func (d *Dispatcher) WaitResponse(serial uint32, timeout time.Duration) (*message.Message, error) {
	return d.waitFor(deadlineFrom(timeout), func() (*message.Message, bool) {
		return d.TryResponse(serial)
	})
}

func (d *Dispatcher) waitFor(deadline time.Time, try func() (*message.Message, bool)) (*message.Message, error) {
	for {
		if m, ok := try(); ok {
			return m, nil
		}
		if err := d.refill(deadline); err != nil {
			return nil, err
		}
	}
}

// refill pulls messages from the Transport until the filter admits
// one, and routes that one. For each Call the filter rejects it
// synthesises and sends an UnknownMethod reply before looping to try
// again; other rejected messages are dropped. It is the demultiplexer
// of spec.md §4.2.
func (d *Dispatcher) refill(deadline time.Time) error {
	for {
		remaining, err := remainingFrom(deadline)
		if err != nil {
			return err
		}
		// Receive already runs msg.Valid() before returning, which
		// rejects an Invalid-typed message (and any other malformed
		// message) before it ever reaches here — "Invalid is always an
		// error, filter or no filter" per spec.md §4.2.
		msg, err := d.t.Receive(remaining)
		if err != nil {
			return err
		}

		if !d.filter(msg) {
			if msg.Type == message.Call {
				remaining, err := remainingFrom(deadline)
				if err != nil {
					return err
				}
				if _, err := d.t.Send(message.UnknownMethod(msg), remaining); err != nil {
					return err
				}
			}
			continue
		}

		d.route(msg)
		return nil
	}
}

func (d *Dispatcher) route(msg *message.Message) {
	switch msg.Type {
	case message.Call:
		d.calls.Add(msg)
	case message.Signal:
		d.signals.Add(msg)
	case message.Reply, message.Error:
		if msg.HasResponseSerial {
			d.responses[msg.ResponseSerial] = msg
		}
	}
}

// deadlineFrom converts a caller-supplied timeout into an absolute
// deadline; a timeout of zero or less means no deadline.
func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// remainingFrom reports how much time is left before deadline, or
// dbuserr.ErrTimedOut if it has already passed. A zero deadline means
// wait indefinitely, reported as a zero remaining duration (which
// Transport treats the same way).
func remainingFrom(deadline time.Time) (time.Duration, error) {
	if deadline.IsZero() {
		return 0, nil
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, dbuserr.ErrTimedOut
	}
	return remaining, nil
}

// Command dbuscall is a small CLI exercising package dbus directly
// against a live bus: send a call, wait for a reply, or watch signals.
// It knows nothing about value marshalling, so message bodies are
// passed and printed as raw bytes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/kr/pretty"

	dbus "github.com/kvark9/dbuscore"
	"github.com/kvark9/dbuscore/busaddr"
	"github.com/kvark9/dbuscore/message"
	"github.com/kvark9/dbuscore/transport"
	"github.com/kvark9/dbuscore/wire"
)

var globalArgs struct {
	UseSessionBus bool          `flag:"session,Connect to the session bus instead of the system bus"`
	Timeout       time.Duration `flag:"timeout,default=10s,Timeout for the operation"`
}

func connect() (*dbus.Dispatcher, error) {
	var (
		path string
		err  error
	)
	if globalArgs.UseSessionBus {
		path, err = busaddr.SessionBusAddress()
	} else {
		path, err = busaddr.SystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("resolving bus address: %w", err)
	}

	t, err := transport.Connect(path, wire.LittleEndian, false)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	return dbus.NewDispatcher(t), nil
}

func main() {
	root := &command.C{
		Name:     "dbuscall",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "ping",
				Usage: "ping destination path",
				Help:  "Send org.freedesktop.DBus.Peer.Ping and wait for the reply.",
				Run:   command.Adapt(runPing),
			},
			{
				Name:  "call",
				Usage: "call destination path interface member",
				Help:  "Send an arbitrary method call with an empty body and wait for the reply.",
				Run:   command.Adapt(runCall),
			},
			{
				Name:  "monitor",
				Usage: "monitor",
				Help:  "Print every call and signal the dispatcher admits.",
				Run:   command.Adapt(runMonitor),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runPing(env *command.Env, destination, path string) error {
	return runCall(env, destination, path, "org.freedesktop.DBus.Peer", "Ping")
}

func runCall(env *command.Env, destination, path, iface, member string) error {
	d, err := connect()
	if err != nil {
		return err
	}
	defer d.Close()

	call := &message.Message{
		Type:        message.Call,
		Path:        message.ObjectPath(path),
		Interface:   iface,
		Member:      member,
		Destination: destination,
	}
	sent, err := d.Send(call, globalArgs.Timeout)
	if err != nil {
		return fmt.Errorf("sending call: %w", err)
	}

	reply, err := d.WaitResponse(sent.Serial, globalArgs.Timeout)
	if err != nil {
		return fmt.Errorf("waiting for reply: %w", err)
	}
	if reply.Type == message.Error {
		return fmt.Errorf("call failed: %s", reply.ErrorName)
	}
	fmt.Printf("%# v\n", pretty.Formatter(reply))
	return nil
}

func runMonitor(env *command.Env) error {
	d, err := connect()
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Println("Watching for calls and signals...")
	for {
		select {
		case <-env.Context().Done():
			return nil
		default:
		}

		if call, ok := d.TryCall(); ok {
			fmt.Printf("call %s.%s on %s:\n%# v\n\n", call.Interface, call.Member, call.Path, pretty.Formatter(call))
			continue
		}
		if sig, ok := d.TrySignal(); ok {
			fmt.Printf("signal %s.%s on %s:\n%# v\n\n", sig.Interface, sig.Member, sig.Path, pretty.Formatter(sig))
			continue
		}
		sig, err := d.WaitSignal(time.Second)
		if err != nil {
			continue
		}
		fmt.Printf("signal %s.%s on %s:\n%# v\n\n", sig.Interface, sig.Member, sig.Path, pretty.Formatter(sig))
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/bureau-foundation/mux/lib/imsg"
	"github.com/bureau-foundation/mux/lib/proc"
	"github.com/bureau-foundation/mux/lib/protocol"
)

var (
	// ErrNoServer reports that nothing is listening on the socket.
	ErrNoServer = errors.New("no server running")
	// ErrVersionMismatch reports a server speaking another protocol
	// version.
	ErrVersionMismatch = errors.New("protocol version mismatch")
	// ErrServerExited reports a server that went away before sending
	// an exit code.
	ErrServerExited = errors.New("server exited unexpectedly")
	// ErrInterrupted reports a client stopped by a signal.
	ErrInterrupted = errors.New("interrupted")
)

// Options describe the command and the identity the client presents.
type Options struct {
	// Argv is the command and its arguments.
	Argv []string

	// Stdout and Stderr receive the server's output.
	Stdout io.Writer
	Stderr io.Writer

	// Stdin, if not nil, is duplicated and passed to the server.
	Stdin *os.File

	Term    string
	TTYName string
	CWD     string
	Environ []string
	PID     int

	// Flags are protocol.Client* bits.
	Flags   uint64
	Columns uint16
	Rows    uint16

	// Signals makes SIGINT, SIGTERM and SIGHUP end the client and
	// SIGWINCH send the new terminal size. Signal routing is
	// process-wide, so only a binary's main client should set it.
	Signals bool

	Logger *slog.Logger
}

// FromEnvironment returns Options describing the calling process, with
// output going to its standard streams.
func FromEnvironment(argv []string) Options {
	options := Options{
		Argv:    argv,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Stdin:   os.Stdin,
		Term:    os.Getenv("TERM"),
		Environ: os.Environ(),
		PID:     os.Getpid(),
		Signals: true,
	}
	if cwd, err := os.Getwd(); err == nil {
		options.CWD = cwd
	}
	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		options.Flags |= protocol.ClientTerminal
		if name, err := os.Readlink("/proc/self/fd/0"); err == nil {
			options.TTYName = name
		}
		if columns, rows, err := term.GetSize(stdin); err == nil {
			options.Columns, options.Rows = uint16(columns), uint16(rows)
		}
	}
	if localeIsUTF8() {
		options.Flags |= protocol.ClientUTF8
	}
	return options
}

// Connect opens a non-blocking connection to the server socket.
func Connect(socketPath string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("creating socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: socketPath}); err != nil {
		_ = unix.Close(fd)
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED) {
			return -1, fmt.Errorf("%w on %s", ErrNoServer, socketPath)
		}
		return -1, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return fd, nil
}

// Run executes options.Argv on the server at socketPath and returns the
// exit code the server sent.
func Run(socketPath string, options Options) (int, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.Stdout == nil {
		options.Stdout = io.Discard
	}
	if options.Stderr == nil {
		options.Stderr = io.Discard
	}

	fd, err := Connect(socketPath)
	if err != nil {
		return 1, err
	}
	loop, err := proc.Start("client", logger)
	if err != nil {
		_ = unix.Close(fd)
		return 1, err
	}
	defer loop.Close()

	c := &client{loop: loop, options: options, logger: logger}
	c.peer = loop.AddPeer(fd, c)
	if options.Signals {
		loop.SetSignals(c.signal, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGWINCH)
	}

	if err := c.identify(); err != nil {
		return 1, err
	}
	if err := c.peer.SendValue(protocol.MsgCommand, protocol.Command{Argv: options.Argv}); err != nil {
		return 1, err
	}

	if err := loop.Loop(func() bool { return c.done }); err != nil {
		return 1, err
	}
	if c.err != nil {
		return 1, c.err
	}
	return c.exitCode, nil
}

// client is the state of one Run.
type client struct {
	loop    *proc.Proc
	peer    *proc.Peer
	options Options
	logger  *slog.Logger

	exitCode int
	gotExit  bool
	done     bool
	err      error
}

func (c *client) identify() error {
	options := c.options
	if err := c.peer.SendValue(protocol.MsgIdentifyFlags, protocol.IdentifyFlags{
		Flags:   options.Flags,
		Columns: options.Columns,
		Rows:    options.Rows,
	}); err != nil {
		return err
	}
	for _, identity := range []struct {
		msgType protocol.MsgType
		value   string
	}{
		{protocol.MsgIdentifyTerm, options.Term},
		{protocol.MsgIdentifyTTYName, options.TTYName},
		{protocol.MsgIdentifyCWD, options.CWD},
	} {
		if err := c.peer.Send(identity.msgType, -1, []byte(identity.value)); err != nil {
			return err
		}
	}
	for _, variable := range options.Environ {
		if len(variable) > imsg.MaxSize-imsg.HeaderSize {
			c.logger.Debug("skipping oversized environment variable", "bytes", len(variable))
			continue
		}
		if err := c.peer.Send(protocol.MsgIdentifyEnviron, -1, []byte(variable)); err != nil {
			return err
		}
	}
	pid := options.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	if err := c.peer.SendValue(protocol.MsgIdentifyClientPID, protocol.ClientPID{PID: pid}); err != nil {
		return err
	}
	if options.Stdin != nil {
		stdin, err := unix.FcntlInt(options.Stdin.Fd(), unix.F_DUPFD_CLOEXEC, 0)
		if err != nil {
			return fmt.Errorf("duplicating stdin: %w", err)
		}
		if err := c.peer.Send(protocol.MsgIdentifyStdin, stdin, nil); err != nil {
			_ = unix.Close(stdin)
			return err
		}
	}
	return c.peer.Send(protocol.MsgIdentifyDone, -1, nil)
}

func (c *client) HandleMessage(peer *proc.Peer, message *imsg.Message) {
	switch msgType := protocol.MsgType(message.Type()); msgType {
	case protocol.MsgWrite:
		var data protocol.WriteData
		if err := protocol.Decode(message, &data); err != nil {
			c.fail(err)
			return
		}
		output := c.options.Stdout
		if data.Stream == protocol.StreamStderr {
			output = c.options.Stderr
		}
		if _, err := output.Write(data.Data); err != nil {
			c.logger.Warn("writing output", "error", err)
		}
	case protocol.MsgExit:
		var exit protocol.Exit
		if err := protocol.Decode(message, &exit); err != nil {
			c.fail(err)
			return
		}
		c.exitCode, c.gotExit = exit.Code, true
		if exit.Message != "" {
			fmt.Fprintln(c.options.Stderr, exit.Message)
		}
		if err := peer.Send(protocol.MsgExiting, -1, nil); err != nil {
			c.done = true
		}
	case protocol.MsgExited:
		c.done = true
	case protocol.MsgShutdown:
		c.fail(fmt.Errorf("%w: server shut down", ErrServerExited))
	case protocol.MsgVersion:
		c.fail(fmt.Errorf("%w: client %d, server %d", ErrVersionMismatch,
			protocol.ProtocolVersion, message.PeerID()&0xff))
	default:
		c.logger.Debug("ignoring message", "type", msgType.String())
	}
}

func (c *client) PeerClosed(_ *proc.Peer, err error) {
	if !c.gotExit && c.err == nil {
		c.err = fmt.Errorf("%w: %v", ErrServerExited, err)
	}
	c.done = true
}

func (c *client) fail(err error) {
	if c.err == nil {
		c.err = err
	}
	c.done = true
}

func (c *client) signal(received os.Signal) {
	if received == unix.SIGWINCH {
		if c.options.Stdin == nil {
			return
		}
		columns, rows, err := term.GetSize(int(c.options.Stdin.Fd()))
		if err != nil {
			return
		}
		if err := c.peer.SendValue(protocol.MsgResize, protocol.Resize{Columns: uint16(columns), Rows: uint16(rows)}); err != nil {
			c.logger.Debug("sending resize", "error", err)
		}
		return
	}
	c.fail(fmt.Errorf("%w by %v", ErrInterrupted, received))
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mux/lib/acl"
	"github.com/bureau-foundation/mux/lib/clock"
	"github.com/bureau-foundation/mux/lib/config"
	"github.com/bureau-foundation/mux/lib/environ"
	"github.com/bureau-foundation/mux/lib/proc"
	"github.com/bureau-foundation/mux/lib/protocol"
	"github.com/bureau-foundation/mux/lib/session"
	"github.com/bureau-foundation/mux/lib/tailq"
	"github.com/bureau-foundation/mux/lib/waitfor"
)

// listenBacklog is the listen(2) queue length.
const listenBacklog = 128

// ServerOptions configure a [Server].
type ServerOptions struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	// Environ seeds the global environment, normally os.Environ().
	Environ []string

	// HandleSignals routes SIGINT, SIGTERM and SIGHUP to a clean
	// shutdown and SIGUSR1 to recreating the socket.
	HandleSignals bool
}

// Server owns the listening socket, the connected clients, and every
// registry the commands operate on. All of its state is touched only
// from the event loop goroutine.
type Server struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock
	loop   *proc.Proc

	socketPath   string
	listener     int
	acceptPaused bool
	started      time.Time
	ownUID       uint32

	access   *acl.List
	sessions *session.Registry
	global   *environ.Environ
	waits    *waitfor.Registry
	clients  tailq.Queue[serverClient]

	// shutdownPending defers shutdown until the current command's
	// reply has been queued.
	shutdownPending bool
	exiting         bool
}

// NewServer creates the server and starts listening. The event loop
// does not run until [Server.Run].
func NewServer(options ServerOptions) (*Server, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	cfg := options.Config
	loop, err := proc.Start("server", options.Logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		logger:     options.Logger,
		clock:      options.Clock,
		loop:       loop,
		socketPath: cfg.Server.SocketPath,
		listener:   -1,
		started:    options.Clock.Now(),
		ownUID:     uint32(os.Getuid()),
		sessions:   session.NewRegistry(options.Clock),
		global:     environ.FromList(options.Environ),
		waits:      waitfor.NewRegistry(),
	}
	s.clients.Init(clientLink)

	s.access = acl.New(s.ownUID)
	for _, uid := range cfg.Access.Allow {
		s.access.Allow(uid)
	}
	for _, uid := range cfg.Access.ReadOnly {
		s.access.Allow(uid)
		s.access.DenyWrite(uid)
	}
	for name, value := range cfg.Environment {
		s.global.Set(name, value, 0)
	}

	if err := s.listen(); err != nil {
		_ = loop.Close()
		return nil, err
	}
	if options.HandleSignals {
		loop.SetSignals(s.signal, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGUSR1, unix.SIGCHLD)
	}
	s.logger.Info("server started",
		"socket", s.socketPath,
		"pid", os.Getpid(),
		"protocol", protocol.ProtocolVersion,
	)
	return s, nil
}

// Run serves until the server shuts down. It closes the server before
// returning.
func (s *Server) Run() error {
	err := s.loop.Loop(nil)
	s.Close()
	s.logger.Info("server exited")
	return err
}

// Stop makes Run return without waiting for clients. It is safe to
// call from any goroutine.
func (s *Server) Stop() { s.loop.Stop() }

// Close releases the listening socket and every client.
func (s *Server) Close() {
	s.closeListener()
	_ = s.loop.Close()
}

func (s *Server) listen() error {
	if err := s.removeStaleSocket(); err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("creating socket: %w", err)
	}
	// The socket is created 0600; other users reach it only through
	// the access list and an explicit chmod.
	previous := unix.Umask(0o177)
	err = unix.Bind(fd, &unix.SockaddrUnix{Name: s.socketPath})
	unix.Umask(previous)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("binding %s: %w", s.socketPath, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.listener = fd
	s.loop.Watch(fd, s.accept)
	return nil
}

// removeStaleSocket refuses to replace a socket a live server answers
// on, and removes one nobody does.
func (s *Server) removeStaleSocket() error {
	info, err := os.Lstat(s.socketPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", s.socketPath, err)
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket", s.socketPath)
	}
	probe, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("creating probe socket: %w", err)
	}
	defer unix.Close(probe)
	if err := unix.Connect(probe, &unix.SockaddrUnix{Name: s.socketPath}); err == nil {
		return fmt.Errorf("server already running on %s", s.socketPath)
	}
	s.logger.Info("removing stale socket", "socket", s.socketPath)
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	return nil
}

func (s *Server) closeListener() {
	if s.listener < 0 {
		return
	}
	s.loop.Unwatch(s.listener)
	_ = unix.Close(s.listener)
	s.listener = -1
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("removing socket", "socket", s.socketPath, "error", err)
	}
}

// accept takes every pending connection.
func (s *Server) accept() {
	for {
		fd, _, err := unix.Accept4(s.listener, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			return
		case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
			// Stop polling the listener until a client goes away,
			// or the loop would spin on a listener it cannot drain.
			s.logger.Warn("descriptor table full, pausing accept", "error", err)
			s.acceptPaused = true
			s.loop.Unwatch(s.listener)
			return
		default:
			s.logger.Error("accepting connection", "error", err)
			return
		}
		if s.exiting {
			_ = unix.Close(fd)
			continue
		}
		s.addClient(fd)
	}
}

func (s *Server) resumeAccept() {
	if !s.acceptPaused || s.listener < 0 {
		return
	}
	s.acceptPaused = false
	s.loop.Watch(s.listener, s.accept)
	s.logger.Info("resuming accept")
}

func (s *Server) signal(received os.Signal) {
	switch received {
	case unix.SIGINT, unix.SIGTERM, unix.SIGHUP:
		s.logger.Info("shutting down on signal", "signal", received.String())
		s.shutdown()
	case unix.SIGUSR1:
		s.logger.Info("recreating socket", "socket", s.socketPath)
		s.closeListener()
		if err := s.listen(); err != nil {
			s.logger.Error("recreating socket", "error", err)
		}
	}
}

// shutdown tells every client the server is going away and leaves the
// loop once their output has been flushed.
func (s *Server) shutdown() {
	if s.exiting {
		return
	}
	s.exiting = true
	s.waits.Flush()
	for c := range s.clients.AllSafe() {
		if c.state != clientExiting {
			c.send(protocol.MsgShutdown, nil)
		}
	}
	s.closeListener()
	s.loop.Exit()
}

// queuedBytes sums the output waiting for every client.
func (s *Server) queuedBytes() int {
	total := 0
	for c := range s.clients.All() {
		total += c.peer.Queued()
	}
	return total
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mux/lib/imsg"
	"github.com/bureau-foundation/mux/lib/netutil"
	"github.com/bureau-foundation/mux/lib/protocol"
	"github.com/bureau-foundation/mux/lib/tailq"
)

// Wake pipe bytes.
const (
	wakeSignal byte = 's'
	wakeStop   byte = 'x'
)

// signalQueueCapacity bounds signals waiting for the loop. Signals are
// coalescing by nature; overflow drops the newest.
const signalQueueCapacity = 16

// descriptorReserve is headroom the shared descriptor budget keeps
// free for accepting connections and opening files.
const descriptorReserve = 8

type watch struct {
	fd       int
	callback func()
}

// Proc is an event loop over a set of peers. Everything except
// [Proc.Stop] must be called from the goroutine running [Proc.Loop],
// or before it starts.
type Proc struct {
	name   string
	logger *slog.Logger

	peers   tailq.Queue[Peer]
	watches []watch
	budget  imsg.DescriptorBudget
	exit    bool

	wakeRead  int
	wakeWrite int

	signalFunc    func(os.Signal)
	signalQueue   lfq.SPSC[os.Signal]
	notify        chan os.Signal
	notifyDone    chan struct{}
	notifyStopped chan struct{}
}

// Start creates a Proc named name, for log attribution.
func Start(name string, logger *slog.Logger) (*Proc, error) {
	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	proc := &Proc{
		name:      name,
		logger:    logger.With("proc", name),
		budget:    imsg.ProcessBudget{Reserve: descriptorReserve},
		wakeRead:  wake[0],
		wakeWrite: wake[1],
	}
	proc.peers.Init(peerLink)
	proc.signalQueue.Init(signalQueueCapacity)
	proc.logger.Debug("proc started",
		"pid", os.Getpid(),
		"protocol", protocol.ProtocolVersion,
	)
	return proc, nil
}

// AddPeer starts managing fd, a connected non-blocking AF_UNIX stream
// socket. The Proc owns fd from here on and closes it when the peer is
// removed.
func (proc *Proc) AddPeer(fd int, handler Handler) *Peer {
	peer := &Peer{
		proc:    proc,
		channel: imsg.NewChannel(fd),
		handler: handler,
		uid:     UnknownUID,
		serial:  peerSerials.Add(1),
	}
	peer.channel.SetBudget(proc.budget)
	if credentials, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED); err == nil {
		peer.uid = credentials.Uid
	} else {
		proc.logger.Warn("reading peer credentials", "fd", fd, "error", err)
	}
	proc.peers.InsertTail(peer)
	proc.logger.Debug("add peer", "peer", peer.serial, "fd", fd, "uid", peer.uid)
	return peer
}

// RemovePeer stops managing peer, discards its queued output and
// unclaimed descriptors, and closes its socket. Removing a peer twice
// is a no-op.
func (proc *Proc) RemovePeer(peer *Peer) {
	if peer.removed {
		return
	}
	peer.removed = true
	proc.peers.Remove(peer)
	proc.logger.Debug("remove peer", "peer", peer.serial)
	peer.channel.Clear()
	_ = unix.Close(peer.channel.Socket())
}

// Peers returns the number of managed peers.
func (proc *Proc) Peers() int { return proc.peers.Len() }

// Watch calls callback from the loop whenever fd is readable.
func (proc *Proc) Watch(fd int, callback func()) {
	proc.watches = append(proc.watches, watch{fd: fd, callback: callback})
}

// Unwatch stops watching fd. It does not close it.
func (proc *Proc) Unwatch(fd int) {
	for i, w := range proc.watches {
		if w.fd == fd {
			proc.watches = append(proc.watches[:i], proc.watches[i+1:]...)
			return
		}
	}
}

func (proc *Proc) watching(fd int) bool {
	for _, w := range proc.watches {
		if w.fd == fd {
			return true
		}
	}
	return false
}

// SetSignals routes signals to handler on the loop goroutine. With no
// signals listed, the set a terminal multiplexer cares about is used.
// Job-control and SIGPIPE signals are ignored either way.
func (proc *Proc) SetSignals(handler func(os.Signal), signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{
			unix.SIGINT, unix.SIGHUP, unix.SIGCHLD, unix.SIGCONT,
			unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2, unix.SIGWINCH,
		}
	}
	proc.ClearSignals()
	signal.Ignore(unix.SIGPIPE, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU, unix.SIGQUIT)

	proc.signalFunc = handler
	proc.notify = make(chan os.Signal, signalQueueCapacity)
	proc.notifyDone = make(chan struct{})
	proc.notifyStopped = make(chan struct{})
	signal.Notify(proc.notify, signals...)
	go proc.forwardSignals(proc.notify, proc.notifyDone, proc.notifyStopped)
}

// ClearSignals stops signal delivery and restores default dispositions,
// typically in a child about to exec.
func (proc *Proc) ClearSignals() {
	if proc.notify == nil {
		return
	}
	signal.Stop(proc.notify)
	close(proc.notifyDone)
	<-proc.notifyStopped
	signal.Reset(unix.SIGPIPE, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU, unix.SIGQUIT)
	proc.notify = nil
	proc.signalFunc = nil
}

// forwardSignals is the only producer on signalQueue.
func (proc *Proc) forwardSignals(notify <-chan os.Signal, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case received := <-notify:
			if err := proc.signalQueue.Enqueue(&received); err != nil {
				continue
			}
			proc.wake(wakeSignal)
		case <-done:
			return
		}
	}
}

func (proc *Proc) wake(reason byte) {
	_, _ = unix.Write(proc.wakeWrite, []byte{reason})
}

// Stop makes [Proc.Loop] return at its next iteration without flushing
// peers. Unlike every other method it is safe to call from any
// goroutine.
func (proc *Proc) Stop() {
	proc.wake(wakeStop)
}

// Exit flushes every peer and makes [Proc.Loop] return once the
// current iteration finishes.
func (proc *Proc) Exit() {
	for peer := range proc.peers.All() {
		if err := peer.Flush(); err != nil && !netutil.IsExpectedCloseError(err) {
			proc.logger.Warn("flushing peer on exit", "peer", peer.serial, "error", err)
		}
	}
	proc.exit = true
}

// Loop polls until [Proc.Exit] or [Proc.Stop] is called, or until stop
// (if not nil) returns true after an iteration.
func (proc *Proc) Loop(stop func() bool) error {
	proc.logger.Debug("loop enter")
	defer proc.logger.Debug("loop exit")

	proc.exit = false
	var pollFDs []unix.PollFd
	var polled []*Peer
	var watched []watch
	for !proc.exit {
		pollFDs = append(pollFDs[:0], unix.PollFd{Fd: int32(proc.wakeRead), Events: unix.POLLIN})
		watched = append(watched[:0], proc.watches...)
		for _, w := range watched {
			pollFDs = append(pollFDs, unix.PollFd{Fd: int32(w.fd), Events: unix.POLLIN})
		}
		polled = polled[:0]
		for peer := range proc.peers.All() {
			var events int16
			if !peer.bad {
				events |= unix.POLLIN
			}
			if peer.channel.Queued() > 0 {
				events |= unix.POLLOUT
			}
			pollFDs = append(pollFDs, unix.PollFd{Fd: int32(peer.channel.Socket()), Events: events})
			polled = append(polled, peer)
		}

		if _, err := unix.Poll(pollFDs, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("polling: %w", err)
		}

		if pollFDs[0].Revents&unix.POLLIN != 0 {
			if proc.drainWake() {
				return nil
			}
		}

		// A signal handler or an earlier callback may have changed the
		// watch set since the poll; skip fds no longer watched.
		for i, w := range watched {
			if pollFDs[1+i].Revents != 0 && proc.watching(w.fd) {
				w.callback()
			}
		}

		for i, peer := range polled {
			if revents := pollFDs[1+len(watched)+i].Revents; revents != 0 && !peer.removed {
				proc.service(peer, revents)
			}
		}

		// A peer killed by a handler may already have nothing queued,
		// in which case no POLLOUT event would ever close it.
		for peer := range proc.peers.AllSafe() {
			if peer.bad && peer.channel.Queued() == 0 {
				proc.lose(peer, ErrBadPeer)
			}
		}

		if stop != nil && stop() {
			break
		}
	}
	return nil
}

// drainWake empties the wake pipe, delivers queued signals, and reports
// whether a stop was requested.
func (proc *Proc) drainWake() bool {
	stopRequested := false
	var scratch [64]byte
	for {
		n, err := unix.Read(proc.wakeRead, scratch[:])
		if n <= 0 || err != nil {
			break
		}
		for _, reason := range scratch[:n] {
			if reason == wakeStop {
				stopRequested = true
			}
		}
	}
	for {
		received, err := proc.signalQueue.Dequeue()
		if err != nil {
			break
		}
		proc.logger.Debug("signal", "signal", received.String())
		if proc.signalFunc != nil {
			proc.signalFunc(received)
		}
	}
	return stopRequested
}

// service handles one poll result for peer.
func (proc *Proc) service(peer *Peer, revents int16) {
	if !peer.bad && revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
		_, err := peer.channel.Read()
		switch {
		case err == nil, iox.IsWouldBlock(err):
		case errors.Is(err, imsg.ErrExhausted):
			proc.logger.Debug("deferring read, descriptor table full", "peer", peer.serial)
		default:
			proc.lose(peer, err)
			return
		}

		for !peer.bad && !peer.removed {
			message, err := peer.channel.Get()
			if err != nil {
				proc.lose(peer, err)
				return
			}
			if message == nil {
				break
			}
			proc.logger.Debug("received message",
				"peer", peer.serial,
				"type", protocol.MsgType(message.Type()).String(),
				"bytes", message.Len(),
			)
			if !proc.checkVersion(peer, message) {
				message.Free()
				break
			}
			peer.handler.HandleMessage(peer, message)
			message.Free()
		}
		if peer.removed {
			return
		}
	}

	if revents&unix.POLLOUT != 0 {
		if _, err := peer.channel.Write(); err != nil && !iox.IsWouldBlock(err) {
			proc.lose(peer, err)
			return
		}
	}
}

// checkVersion answers a message from a different protocol version with
// MsgVersion and marks the peer bad.
func (proc *Proc) checkVersion(peer *Peer, message *imsg.Message) bool {
	if protocol.MsgType(message.Type()) == protocol.MsgVersion || protocol.VersionMatches(message.PeerID()) {
		return true
	}
	proc.logger.Debug("peer protocol version mismatch",
		"peer", peer.serial,
		"version", message.PeerID()&0xff,
	)
	if err := peer.Send(protocol.MsgVersion, -1, nil); err != nil {
		proc.logger.Warn("answering version mismatch", "peer", peer.serial, "error", err)
	}
	peer.Kill()
	return false
}

// lose reports peer's end to its handler and removes it.
func (proc *Proc) lose(peer *Peer, err error) {
	if peer.removed {
		return
	}
	if netutil.IsExpectedCloseError(err) || errors.Is(err, ErrBadPeer) {
		proc.logger.Debug("peer closed", "peer", peer.serial, "reason", err)
	} else {
		proc.logger.Warn("peer failed", "peer", peer.serial, "error", err)
	}
	peer.handler.PeerClosed(peer, err)
	proc.RemovePeer(peer)
}

// Close removes every peer, stops signal delivery, and releases the
// wake pipe. The Proc is unusable afterwards.
func (proc *Proc) Close() error {
	for peer := range proc.peers.AllSafe() {
		proc.RemovePeer(peer)
	}
	proc.ClearSignals()
	return errors.Join(unix.Close(proc.wakeRead), unix.Close(proc.wakeWrite))
}

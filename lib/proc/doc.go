// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proc runs the single-threaded event loop shared by the mux
// client and server: a set of peers, each an
// [github.com/bureau-foundation/mux/lib/imsg] channel on a connected
// socket, polled with unix.Poll alongside any extra descriptors (a
// listening socket) and a self-pipe that delivers signals.
//
// For every peer the loop asks for readability always, and for
// writability only while the peer's outbox holds data. A readable peer
// is read once and then drained of every complete message; each message
// is checked for the protocol version before it reaches the peer's
// [Handler]. A peer whose version does not match is answered with
// [protocol.MsgVersion], marked bad, and closed once that answer has
// been written.
//
// Handlers run on the loop goroutine and may add or remove peers,
// send messages, and call [Proc.Exit]. Messages passed to a handler are
// freed when the handler returns; a handler that wants the message's
// descriptor must take it with imsg.Message.TakeFD.
//
// Signals are received by the os/signal goroutine, handed to the loop
// through a lock-free single-producer queue, and delivered to the
// function registered with [Proc.SetSignals] on the loop goroutine, so
// signal handlers share the loop's single-threaded view of state.
package proc

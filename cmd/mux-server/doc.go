// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mux-server is the long-lived half of the mux terminal multiplexer. It
// listens on a Unix socket, admits clients whose user is on the access
// list, and runs one command per client connection against the
// server's sessions, environments and wait channels.
//
// A client connection goes through three stages. It first identifies
// itself with a burst of MsgIdentify* messages (terminal, working
// directory, environment, process id, a duplicate of its stdin) ending
// in MsgIdentifyDone. It then sends one MsgCommand carrying an argv,
// which the server parses with pflag and executes on the event loop.
// The server answers with MsgWrite output followed by MsgExit, and the
// client acknowledges with MsgExiting before the server closes the
// connection. wait-for commands may hold a client in the second stage
// until another client signals or unlocks the channel.
//
// Everything runs on one goroutine: the lib/proc event loop polls the
// listener, every client socket and a wake pipe for signals. A client
// whose queued output exceeds server.max_queued_bytes is dropped rather
// than allowed to grow the server without bound.
//
// SIGINT, SIGTERM and SIGHUP shut the server down cleanly: waiters are
// released, clients are sent MsgShutdown, queued output is flushed and
// the socket is removed. SIGUSR1 recreates the socket, for when it has
// been deleted from under a running server.
package main

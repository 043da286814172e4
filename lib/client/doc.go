// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client runs one command against a mux server: it connects to
// the server socket, identifies itself (terminal, working directory,
// environment, process id, and a duplicate of its standard input),
// sends the argument vector, copies the server's output to its own
// streams, and returns the exit code the server chose.
//
// The exchange runs on a [github.com/bureau-foundation/mux/lib/proc]
// event loop, the same one the server uses, so both ends share one
// implementation of version checking, framing and backpressure.
package client

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for mux packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un), and t.TempDir() can
// return paths deep enough to exceed it. The directory is removed when
// the test completes.
//
// [SocketPair] returns a connected, non-blocking AF_UNIX stream pair,
// the transport every framing test runs over. Both ends are closed on
// cleanup, so tests must not close them themselves.
//
// [RequireReceive] and [RequireClosed] bound every wait on a channel
// fed by a server or event loop goroutine, so a hung loop fails the
// test with a description instead of stalling the package.
//
// [UniqueID] names sockets and wait channels so that output from
// parallel tests can be told apart.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil

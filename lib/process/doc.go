// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the mux
// binaries. It centralizes the raw I/O that happens outside the
// structured logger: reporting the error that ended main, and exiting
// with the right code.
//
// Binaries follow the main/run split:
//
//	func main() { process.Exit(run()) }
//
// run returns nil for success, an [*ExitError] when it has already
// reported the failure itself (a client relaying the server's exit
// code), or any other error to be printed as "error: ..." on stderr.
// The "error:" prefix is styled with lipgloss when stderr is a color
// terminal and left plain otherwise.
package process

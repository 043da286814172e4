// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/bureau-foundation/mux/lib/imsg"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: end of stream on a message channel, EOF, a closed
// listener or connection, broken pipe, or connection reset. A client
// that exits without waiting for its last output to be read produces
// ECONNRESET or EPIPE on the server side; none of these should be
// logged as failures.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, imsg.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

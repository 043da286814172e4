// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import "errors"

var (
	// ErrRange reports a size outside what a buffer or the wire format
	// allows: growth past a buffer's ceiling, a message larger than
	// MaxSize, or a received header whose length is outside
	// [HeaderSize, MaxSize]. A range error from [Channel.Get] means the
	// stream cannot be resynchronized.
	ErrRange = errors.New("imsg: size out of range")

	// ErrMalformed reports a payload whose size does not match what the
	// reader asked for.
	ErrMalformed = errors.New("imsg: malformed payload")

	// ErrInvalid reports a caller error: a zero-sized buffer, a second
	// descriptor attached to one buffer, a zero-length read target.
	ErrInvalid = errors.New("imsg: invalid argument")

	// ErrExhausted reports that the process descriptor table is too
	// full to accept a descriptor, so the read was not attempted. It is
	// transient: retry once descriptors have been closed.
	ErrExhausted = errors.New("imsg: descriptor table exhausted")

	// ErrClosed reports that the peer closed the connection: a read
	// returned end of stream or the kernel accepted no bytes on write.
	ErrClosed = errors.New("imsg: connection closed")

	// ErrBufferFull reports a read attempted while the inbound scratch
	// region is full. Drain it with [Channel.Get] first.
	ErrBufferFull = errors.New("imsg: read buffer full")
)

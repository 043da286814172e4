// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"code.hybscloud.com/iox"

	"github.com/bureau-foundation/mux/lib/tailq"
)

// Outbox is a FIFO of buffers waiting to be written to one socket.
//
// Buffers are sent strictly in the order they were enqueued. A buffer
// the kernel only partly accepted stays at the head with its read
// cursor advanced, so the rest of it goes out before anything behind
// it. The outbox grows without bound; callers that need a ceiling
// check [Outbox.Queued] themselves.
type Outbox struct {
	buffers   tailq.Queue[Buffer]
	queued    int
	socket    int
	transport transport
}

// NewOutbox returns an empty outbox that writes to socket, which must
// be a connected AF_UNIX stream socket.
func NewOutbox(socket int) *Outbox {
	outbox := &Outbox{}
	outbox.init(socket, socketTransport{})
	return outbox
}

func (outbox *Outbox) init(socket int, transport transport) {
	outbox.buffers.Init(outboxLink)
	outbox.queued = 0
	outbox.socket = socket
	outbox.transport = transport
}

// Enqueue appends buffer. The outbox owns it, and any descriptor it
// carries, until it has been written or the outbox is cleared.
func (outbox *Outbox) Enqueue(buffer *Buffer) {
	outbox.buffers.InsertTail(buffer)
	outbox.queued += buffer.Len()
}

// Len returns the number of queued buffers.
func (outbox *Outbox) Len() int { return outbox.buffers.Len() }

// Queued returns the number of unsent bytes across all buffers.
func (outbox *Outbox) Queued() int { return outbox.queued }

// Write sends queued buffers until the outbox is empty or the socket
// stops accepting. It returns the number of bytes written and:
//
//   - nil when the outbox is now empty;
//   - [iox.ErrWouldBlock] when data remains because the socket would
//     block (including after a partial write);
//   - [ErrClosed] when the kernel accepted zero bytes;
//   - any other error from the socket, wrapped.
//
// A buffer's descriptor is passed with the first bytes of that buffer
// that the kernel accepts, after which the outbox closes its own copy.
func (outbox *Outbox) Write() (int, error) {
	written := 0
	for buffer := outbox.buffers.First(); buffer != nil; buffer = outbox.buffers.First() {
		// A descriptor needs at least one byte to ride on.
		if buffer.Len() == 0 {
			outbox.buffers.Remove(buffer)
			buffer.Free()
			continue
		}

		n, err := outbox.transport.send(outbox.socket, buffer.Bytes(), buffer.fd)
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, ErrClosed
		}
		if buffer.fd >= 0 {
			closeDescriptor(buffer.fd)
			buffer.fd = -1
		}

		written += n
		outbox.queued -= n
		buffer.readPos += n
		if buffer.Len() > 0 {
			return written, iox.ErrWouldBlock
		}
		outbox.buffers.Remove(buffer)
		buffer.Free()
	}
	return written, nil
}

// Clear frees every queued buffer, closing the descriptors they carry.
func (outbox *Outbox) Clear() {
	for buffer := range outbox.buffers.AllSafe() {
		outbox.buffers.Remove(buffer)
		buffer.Free()
	}
	outbox.queued = 0
}

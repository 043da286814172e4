// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imsg frames typed messages, optionally carrying one file
// descriptor each, over a connected AF_UNIX stream socket.
//
// Every message on the wire is a 16-byte [Header] followed by its
// payload:
//
//	type u32 | length u16 | flags u16 | peer_id u32 | pid u32 | payload...
//
// Header fields are in host byte order (both ends of a Unix socket share
// a host). length counts the header, so it ranges over
// [HeaderSize, MaxSize]. [FlagHasFD] marks a message whose sender
// attached a descriptor; the descriptor itself travels out of band as
// SCM_RIGHTS ancillary data on the same sendmsg call that carries the
// first byte of the message.
//
// The package has three layers:
//
//   - [Buffer] is a byte buffer with separate read and write cursors, a
//     growth ceiling, and at most one attached descriptor. Buffers carry
//     an embedded [github.com/bureau-foundation/mux/lib/tailq] link so
//     they can sit in an outbox without extra allocation.
//   - [Outbox] is a FIFO of buffers waiting to be written. Each call to
//     [Outbox.Write] pushes as much as the socket accepts and keeps
//     partially sent buffers at the head, so wire order always equals
//     enqueue order.
//   - [Channel] owns the socket, an outbox, a 64 KiB inbound scratch
//     region, and a queue of received descriptors not yet claimed by a
//     decoded message. [Channel.Read] performs one non-blocking read;
//     [Channel.Get] decodes one complete message at a time.
//
// Sending composes a message in three steps:
//
//	buffer, err := channel.Create(messageType, peerID, 0, len(payload))
//	err = buffer.Add(payload)
//	err = channel.Seal(buffer) // stamps the header, queues for sending
//
// or in one with [Channel.Compose]. Receiving, from an event loop that
// saw the socket become readable:
//
//	if _, err := channel.Read(); err != nil { ... }
//	for {
//		message, err := channel.Get()
//		if err != nil { ... }   // framing error: drop the connection
//		if message == nil { break }
//		handle(message)
//		message.Free()
//	}
//
// # Descriptor ownership
//
// A descriptor is always owned by exactly one holder: the buffer it is
// attached to, the channel's pending queue, or the caller who took it
// with [Buffer.TakeFD] or [Message.TakeFD]. Moves are transfers. The
// outbox closes its copy after the kernel has accepted it;
// [Channel.Clear] closes descriptors that were received but never
// claimed.
//
// # Concurrency
//
// Nothing here blocks except [Channel.Flush], and nothing here is safe
// for concurrent use. Callers drive a channel from one goroutine, the
// one running their poll loop.
//
// Errors are wrapped sentinels (see errors.go); test with errors.Is.
// Would-block conditions are reported as [code.hybscloud.com/iox.ErrWouldBlock].
package imsg

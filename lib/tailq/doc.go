// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tailq implements an intrusive doubly-linked tail queue.
//
// A record joins a queue through a [Link] field embedded in the record
// itself. The queue never allocates: it threads pointers through the
// records it is given, and a record's position is changed by relinking
// rather than copying. Every queue is configured with an accessor that
// returns the embedded link for a record, so a single record type can
// carry several links and sit in several queues at once:
//
//	type buffer struct {
//		outbox tailq.Link[buffer]
//		data   []byte
//	}
//
//	queue := tailq.New(func(b *buffer) *tailq.Link[buffer] { return &b.outbox })
//	queue.InsertTail(first)
//	queue.InsertTail(second)
//	for b := range queue.All() {
//		...
//	}
//
// The queue keeps pointers to both ends, so insertion at either end,
// insertion relative to a known element, and removal are O(1). Length
// is tracked so [Queue.Len] is O(1) as well.
//
// Membership is the caller's responsibility. A link is valid only
// while its record is in exactly one queue through that link; removing
// a record from a queue it is not linked into corrupts both.
//
// [Queue.All] and [Queue.Backward] read the neighbour after the loop
// body returns, so the body must not remove the current element. Use
// [Queue.AllSafe] or [Queue.BackwardSafe] when the body may remove it.
//
// A Queue is not safe for concurrent use.
package tailq

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tailq

import "iter"

// Link is the linkage a record embeds to join a [Queue]. The zero
// value is an unlinked record.
type Link[T any] struct {
	next *T
	prev *T
}

// Queue is an intrusive tail queue of *T. The zero value is not
// usable; construct with [New] or call [Queue.Init].
type Queue[T any] struct {
	first  *T
	last   *T
	length int
	link   func(*T) *Link[T]
}

// New returns an empty queue whose records are linked through the
// field returned by link.
func New[T any](link func(*T) *Link[T]) *Queue[T] {
	queue := &Queue[T]{}
	queue.Init(link)
	return queue
}

// Init resets the queue to empty and sets its link accessor. Records
// still linked into the queue are abandoned with stale links.
func (queue *Queue[T]) Init(link func(*T) *Link[T]) {
	queue.first = nil
	queue.last = nil
	queue.length = 0
	queue.link = link
}

// First returns the head of the queue, or nil when empty.
func (queue *Queue[T]) First() *T { return queue.first }

// Last returns the tail of the queue, or nil when empty.
func (queue *Queue[T]) Last() *T { return queue.last }

// Empty reports whether the queue holds no records.
func (queue *Queue[T]) Empty() bool { return queue.first == nil }

// Len returns the number of records in the queue.
func (queue *Queue[T]) Len() int { return queue.length }

// Next returns the record after element, or nil at the tail.
func (queue *Queue[T]) Next(element *T) *T { return queue.link(element).next }

// Prev returns the record before element, or nil at the head.
func (queue *Queue[T]) Prev(element *T) *T { return queue.link(element).prev }

// InsertHead links element at the front of the queue.
func (queue *Queue[T]) InsertHead(element *T) {
	link := queue.link(element)
	link.prev = nil
	link.next = queue.first
	if queue.first != nil {
		queue.link(queue.first).prev = element
	} else {
		queue.last = element
	}
	queue.first = element
	queue.length++
}

// InsertTail links element at the back of the queue.
func (queue *Queue[T]) InsertTail(element *T) {
	link := queue.link(element)
	link.next = nil
	link.prev = queue.last
	if queue.last != nil {
		queue.link(queue.last).next = element
	} else {
		queue.first = element
	}
	queue.last = element
	queue.length++
}

// InsertAfter links element immediately after at, which must already
// be in the queue.
func (queue *Queue[T]) InsertAfter(at, element *T) {
	atLink := queue.link(at)
	link := queue.link(element)
	link.prev = at
	link.next = atLink.next
	if atLink.next != nil {
		queue.link(atLink.next).prev = element
	} else {
		queue.last = element
	}
	atLink.next = element
	queue.length++
}

// InsertBefore links element immediately before at, which must already
// be in the queue.
func (queue *Queue[T]) InsertBefore(at, element *T) {
	atLink := queue.link(at)
	link := queue.link(element)
	link.next = at
	link.prev = atLink.prev
	if atLink.prev != nil {
		queue.link(atLink.prev).next = element
	} else {
		queue.first = element
	}
	atLink.prev = element
	queue.length++
}

// Remove unlinks element from the queue and clears its link.
func (queue *Queue[T]) Remove(element *T) {
	link := queue.link(element)
	if link.next != nil {
		queue.link(link.next).prev = link.prev
	} else {
		queue.last = link.prev
	}
	if link.prev != nil {
		queue.link(link.prev).next = link.next
	} else {
		queue.first = link.next
	}
	link.next = nil
	link.prev = nil
	queue.length--
}

// Replace puts replacement into old's position and unlinks old.
func (queue *Queue[T]) Replace(old, replacement *T) {
	oldLink := queue.link(old)
	link := queue.link(replacement)
	link.next = oldLink.next
	link.prev = oldLink.prev
	if link.next != nil {
		queue.link(link.next).prev = replacement
	} else {
		queue.last = replacement
	}
	if link.prev != nil {
		queue.link(link.prev).next = replacement
	} else {
		queue.first = replacement
	}
	oldLink.next = nil
	oldLink.prev = nil
}

// Concat moves every record of other onto the tail of queue, in order,
// and leaves other empty. Both queues must use the same link field.
func (queue *Queue[T]) Concat(other *Queue[T]) {
	if other.first == nil {
		return
	}
	if queue.last != nil {
		queue.link(queue.last).next = other.first
		queue.link(other.first).prev = queue.last
	} else {
		queue.first = other.first
	}
	queue.last = other.last
	queue.length += other.length

	other.first = nil
	other.last = nil
	other.length = 0
}

// All iterates from head to tail. The loop body must not remove the
// current record; see [Queue.AllSafe].
func (queue *Queue[T]) All() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for element := queue.first; element != nil; element = queue.link(element).next {
			if !yield(element) {
				return
			}
		}
	}
}

// Backward iterates from tail to head. The loop body must not remove
// the current record; see [Queue.BackwardSafe].
func (queue *Queue[T]) Backward() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for element := queue.last; element != nil; element = queue.link(element).prev {
			if !yield(element) {
				return
			}
		}
	}
}

// AllSafe iterates from head to tail, reading each successor before
// yielding so the loop body may remove (or free) the current record.
func (queue *Queue[T]) AllSafe() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		element := queue.first
		for element != nil {
			next := queue.link(element).next
			if !yield(element) {
				return
			}
			element = next
		}
	}
}

// BackwardSafe is the tail-to-head counterpart of [Queue.AllSafe].
func (queue *Queue[T]) BackwardSafe() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		element := queue.last
		for element != nil {
			prev := queue.link(element).prev
			if !yield(element) {
				return
			}
			element = prev
		}
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"fmt"
	"math"

	"github.com/bureau-foundation/mux/lib/tailq"
)

// Buffer is a byte buffer with independent read and write cursors and
// an optional attached file descriptor.
//
// Bytes in [0, writePos) have been written; bytes in [readPos,
// writePos) are unread and are what [Buffer.Bytes] returns. A fixed
// buffer never grows. A dynamic buffer doubles its allocation on demand
// up to its ceiling; a request past the ceiling fails with [ErrRange]
// and leaves the buffer untouched.
//
// The zero value is not usable: construct with [Open] or [OpenDynamic].
type Buffer struct {
	outbox tailq.Link[Buffer]

	data     []byte
	readPos  int
	writePos int

	// maxCapacity is the growth ceiling; 0 marks a fixed buffer.
	maxCapacity int

	// fd is the attached descriptor, or -1.
	fd int

	// view marks a read-only window into another buffer's storage
	// (see GetBuffer). Views never grow and never own a descriptor.
	view bool
}

func outboxLink(buffer *Buffer) *tailq.Link[Buffer] { return &buffer.outbox }

// Open returns a fixed-size buffer of size bytes.
func Open(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ErrInvalid, size)
	}
	return &Buffer{data: make([]byte, size), fd: -1}, nil
}

// OpenDynamic returns a buffer with an initial allocation of size bytes
// that may grow to maxCapacity.
func OpenDynamic(size, maxCapacity int) (*Buffer, error) {
	if size < 0 || maxCapacity <= 0 || maxCapacity < size {
		return nil, fmt.Errorf("%w: dynamic buffer size %d, ceiling %d", ErrInvalid, size, maxCapacity)
	}
	return &Buffer{data: make([]byte, size), maxCapacity: maxCapacity, fd: -1}, nil
}

// Reserve extends the written region by n zeroed bytes and returns
// them for the caller to fill in place.
func (buffer *Buffer) Reserve(n int) ([]byte, error) {
	if buffer.view {
		return nil, fmt.Errorf("%w: buffer is a read-only view", ErrInvalid)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: reserve %d bytes", ErrInvalid, n)
	}
	if n > math.MaxInt-buffer.writePos {
		return nil, fmt.Errorf("%w: reserve %d bytes overflows", ErrRange, n)
	}
	need := buffer.writePos + n
	if need > len(buffer.data) {
		if err := buffer.grow(need); err != nil {
			return nil, err
		}
	}
	region := buffer.data[buffer.writePos:need]
	clear(region)
	buffer.writePos = need
	return region, nil
}

// grow reallocates so that at least need bytes fit, doubling the
// allocation but never exceeding the ceiling.
func (buffer *Buffer) grow(need int) error {
	if buffer.maxCapacity == 0 {
		return fmt.Errorf("%w: %d bytes exceeds fixed capacity %d", ErrRange, need, len(buffer.data))
	}
	if need > buffer.maxCapacity {
		return fmt.Errorf("%w: %d bytes exceeds ceiling %d", ErrRange, need, buffer.maxCapacity)
	}
	capacity := max(len(buffer.data)*2, need)
	capacity = min(capacity, buffer.maxCapacity)
	data := make([]byte, capacity)
	copy(data, buffer.data[:buffer.writePos])
	buffer.data = data
	return nil
}

// Add appends p.
func (buffer *Buffer) Add(p []byte) error {
	region, err := buffer.Reserve(len(p))
	if err != nil {
		return err
	}
	copy(region, p)
	return nil
}

// AddZero appends n zero bytes.
func (buffer *Buffer) AddZero(n int) error {
	_, err := buffer.Reserve(n)
	return err
}

// AddBuffer appends the unread bytes of other without consuming them.
func (buffer *Buffer) AddBuffer(other *Buffer) error {
	return buffer.Add(other.Bytes())
}

// Seek returns the n bytes at offset pos within the unread region.
// The slice aliases the buffer's storage.
func (buffer *Buffer) Seek(pos, n int) ([]byte, error) {
	if pos < 0 || n < 0 || pos > buffer.Len()-n {
		return nil, fmt.Errorf("%w: seek %d+%d in %d unread bytes", ErrRange, pos, n, buffer.Len())
	}
	start := buffer.readPos + pos
	return buffer.data[start : start+n], nil
}

// Set overwrites bytes at offset pos within the unread region.
func (buffer *Buffer) Set(pos int, p []byte) error {
	region, err := buffer.Seek(pos, len(p))
	if err != nil {
		return err
	}
	copy(region, p)
	return nil
}

// Bytes returns the unread bytes. The slice aliases the buffer's
// storage and is invalidated by the next write.
func (buffer *Buffer) Bytes() []byte { return buffer.data[buffer.readPos:buffer.writePos] }

// Len returns the number of unread bytes.
func (buffer *Buffer) Len() int { return buffer.writePos - buffer.readPos }

// Capacity returns the current allocation.
func (buffer *Buffer) Capacity() int { return len(buffer.data) }

// Left returns how many more bytes can be written before the buffer
// refuses: the remaining allocation of a fixed buffer, the distance to
// the ceiling of a dynamic one, zero for a view.
func (buffer *Buffer) Left() int {
	switch {
	case buffer.view:
		return 0
	case buffer.maxCapacity == 0:
		return len(buffer.data) - buffer.writePos
	default:
		return buffer.maxCapacity - buffer.writePos
	}
}

// Truncate sets the unread length to n. Shrinking drops bytes from the
// end; growing appends zeros.
func (buffer *Buffer) Truncate(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: truncate to %d", ErrInvalid, n)
	}
	if n <= buffer.Len() {
		buffer.writePos = buffer.readPos + n
		return nil
	}
	return buffer.AddZero(n - buffer.Len())
}

// Rewind moves the read cursor back to the start so every written byte
// is unread again.
func (buffer *Buffer) Rewind() { buffer.readPos = 0 }

// Get copies the next len(p) unread bytes into p and consumes them.
func (buffer *Buffer) Get(p []byte) error {
	if len(p) > buffer.Len() {
		return fmt.Errorf("%w: want %d bytes, have %d", ErrMalformed, len(p), buffer.Len())
	}
	copy(p, buffer.data[buffer.readPos:])
	buffer.readPos += len(p)
	return nil
}

// Skip consumes n unread bytes.
func (buffer *Buffer) Skip(n int) error {
	if n < 0 || n > buffer.Len() {
		return fmt.Errorf("%w: skip %d bytes, have %d", ErrMalformed, n, buffer.Len())
	}
	buffer.readPos += n
	return nil
}

// GetBuffer consumes the next n unread bytes and returns them as a
// read-only view sharing this buffer's storage.
func (buffer *Buffer) GetBuffer(n int) (*Buffer, error) {
	if n < 0 || n > buffer.Len() {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrMalformed, n, buffer.Len())
	}
	start := buffer.readPos
	buffer.readPos += n
	return &Buffer{
		data:     buffer.data[start : start+n : start+n],
		writePos: n,
		fd:       -1,
		view:     true,
	}, nil
}

// SetFD attaches fd. The buffer owns it from here on: it is sent with
// the buffer's first byte, or closed by [Buffer.Free]. Attaching to a
// buffer that already carries a descriptor is an error and leaves both
// descriptors with their current owners.
func (buffer *Buffer) SetFD(fd int) error {
	switch {
	case fd < 0:
		return fmt.Errorf("%w: descriptor %d", ErrInvalid, fd)
	case buffer.view:
		return fmt.Errorf("%w: buffer is a read-only view", ErrInvalid)
	case buffer.fd >= 0:
		return fmt.Errorf("%w: buffer already carries descriptor %d", ErrInvalid, buffer.fd)
	}
	buffer.fd = fd
	return nil
}

// HasFD reports whether a descriptor is attached.
func (buffer *Buffer) HasFD() bool { return buffer.fd >= 0 }

// TakeFD detaches and returns the attached descriptor, or -1. The
// caller now owns it.
func (buffer *Buffer) TakeFD() int {
	fd := buffer.fd
	buffer.fd = -1
	return fd
}

// Free closes any attached descriptor and drops the storage. Free on a
// nil buffer is a no-op.
func (buffer *Buffer) Free() {
	if buffer == nil {
		return
	}
	if buffer.fd >= 0 {
		closeDescriptor(buffer.fd)
		buffer.fd = -1
	}
	buffer.data = nil
	buffer.readPos = 0
	buffer.writePos = 0
}

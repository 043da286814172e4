// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import "fmt"

// Message is one decoded message. Its reader owns the payload and the
// descriptor; call [Message.Free] when done.
type Message struct {
	Header Header

	payload *Buffer
	fd      int
}

// Type returns the message type.
func (message *Message) Type() uint32 { return message.Header.Type }

// PeerID returns the header's peer id.
func (message *Message) PeerID() uint32 { return message.Header.PeerID }

// PID returns the sender's process id as stamped in the header.
func (message *Message) PID() uint32 { return message.Header.PID }

// Flags returns the header flags.
func (message *Message) Flags() uint16 { return message.Header.Flags }

// Len returns the payload length.
func (message *Message) Len() int {
	if message.payload == nil {
		return 0
	}
	return message.payload.Len()
}

// Data returns the unread payload bytes, or nil for an empty payload.
// The slice is valid until [Message.Free].
func (message *Message) Data() []byte {
	if message.payload == nil {
		return nil
	}
	return message.payload.Bytes()
}

// Payload returns the payload buffer, or nil for an empty payload.
func (message *Message) Payload() *Buffer { return message.payload }

// GetData copies the payload into p, which must be exactly the payload
// length.
func (message *Message) GetData(p []byte) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: zero-length read target", ErrInvalid)
	}
	if len(p) != message.Len() {
		return fmt.Errorf("%w: payload is %d bytes, want %d", ErrMalformed, message.Len(), len(p))
	}
	return message.payload.Get(p)
}

// GetBuffer consumes the payload and returns it as a read-only view.
func (message *Message) GetBuffer() (*Buffer, error) {
	if message.payload == nil {
		return nil, fmt.Errorf("%w: message has no payload", ErrMalformed)
	}
	return message.payload.GetBuffer(message.payload.Len())
}

// HasFD reports whether a descriptor arrived with this message and has
// not been taken.
func (message *Message) HasFD() bool { return message.fd >= 0 }

// TakeFD transfers the received descriptor to the caller, or returns -1
// if there is none. A second call returns -1.
func (message *Message) TakeFD() int {
	fd := message.fd
	message.fd = -1
	return fd
}

// Free releases the payload and closes a descriptor the reader did not
// take.
func (message *Message) Free() {
	if message == nil {
		return
	}
	message.payload.Free()
	message.payload = nil
	if message.fd >= 0 {
		closeDescriptor(message.fd)
		message.fd = -1
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import "encoding/binary"

const (
	// HeaderSize is the encoded size of a [Header]: five fields, no
	// padding.
	HeaderSize = 16

	// MaxSize is the largest message, header included, the wire format
	// permits.
	MaxSize = 16384

	// ReadSize is the size of a channel's inbound scratch region, and
	// so the most a single [Channel.Read] can return.
	ReadSize = 65535

	// FlagHasFD marks a message accompanied by a file descriptor.
	FlagHasFD uint16 = 1 << 0
)

// Header is the fixed prefix of every message. Length counts the header
// itself plus the payload.
type Header struct {
	Type   uint32
	Length uint16
	Flags  uint16
	PeerID uint32
	PID    uint32
}

// byteOrder is the header encoding. Both endpoints of a Unix socket run
// on the same host.
var byteOrder = binary.NativeEndian

// put encodes header into the first HeaderSize bytes of destination.
func (header Header) put(destination []byte) {
	_ = destination[HeaderSize-1]
	byteOrder.PutUint32(destination[0:4], header.Type)
	byteOrder.PutUint16(destination[4:6], header.Length)
	byteOrder.PutUint16(destination[6:8], header.Flags)
	byteOrder.PutUint32(destination[8:12], header.PeerID)
	byteOrder.PutUint32(destination[12:16], header.PID)
}

// parseHeader decodes the first HeaderSize bytes of source.
func parseHeader(source []byte) Header {
	_ = source[HeaderSize-1]
	return Header{
		Type:   byteOrder.Uint32(source[0:4]),
		Length: byteOrder.Uint16(source[4:6]),
		Flags:  byteOrder.Uint16(source[6:8]),
		PeerID: byteOrder.Uint32(source[8:12]),
		PID:    byteOrder.Uint32(source[12:16]),
	}
}

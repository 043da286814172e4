// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration for message
// payloads.
//
// The framing layer ([github.com/bureau-foundation/mux/lib/imsg])
// carries opaque bytes. Structured payloads, such as a command's
// argument vector, an exit status, or a window size, are CBOR so that
// client and server agree on field layout without hand-written byte
// offsets, and so that adding a field does not break an older peer.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical payload always produces identical bytes, which keeps
// message sizes predictable against the framing layer's size ceiling.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Payload types carry `cbor` struct tags; they are never serialized as
// JSON.
package codec

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/mux/lib/codec"
	"github.com/bureau-foundation/mux/lib/imsg"
)

// ErrEmptyPayload reports a structured message that arrived with no
// payload.
var ErrEmptyPayload = errors.New("protocol: empty payload")

// Client flags sent in [IdentifyFlags].
const (
	// ClientTerminal marks a client whose standard input is a terminal.
	ClientTerminal uint64 = 1 << iota
	// ClientUTF8 marks a client whose locale is UTF-8.
	ClientUTF8
	// ClientReadOnly is set by the server, never the client, for a
	// client whose user the access list marks read-only.
	ClientReadOnly
)

// Output streams for [WriteData].
const (
	StreamStdout = 1
	StreamStderr = 2
)

// IdentifyFlags is the payload of [MsgIdentifyFlags].
type IdentifyFlags struct {
	Flags   uint64 `cbor:"flags"`
	Columns uint16 `cbor:"columns,omitempty"`
	Rows    uint16 `cbor:"rows,omitempty"`
}

// ClientPID is the payload of [MsgIdentifyClientPID].
type ClientPID struct {
	PID int `cbor:"pid"`
}

// Command is the payload of [MsgCommand].
type Command struct {
	Argv []string `cbor:"argv"`
}

// Exit is the payload of [MsgExit]. Message, when set, is printed by
// the client before exiting.
type Exit struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

// WriteData is the payload of [MsgWrite]: bytes for the client to
// write to one of its output streams.
type WriteData struct {
	Stream int    `cbor:"stream"`
	Data   []byte `cbor:"data"`
}

// Resize is the payload of [MsgResize].
type Resize struct {
	Columns uint16 `cbor:"columns"`
	Rows    uint16 `cbor:"rows"`
}

// Encode marshals a payload structure.
func Encode(v any) ([]byte, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T payload: %w", v, err)
	}
	if len(data) > imsg.MaxSize-imsg.HeaderSize {
		return nil, fmt.Errorf("%T payload of %d bytes: %w", v, len(data), imsg.ErrRange)
	}
	return data, nil
}

// Decode unmarshals the payload of message into v.
func Decode(message *imsg.Message, v any) error {
	if message.Len() == 0 {
		return fmt.Errorf("decoding %s: %w", MsgType(message.Type()), ErrEmptyPayload)
	}
	if err := codec.Unmarshal(message.Data(), v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", MsgType(message.Type()), err)
	}
	return nil
}

// Describe renders a message payload for debug logging: CBOR
// diagnostic notation when it parses, a byte count otherwise.
func Describe(message *imsg.Message) string {
	if message.Len() == 0 {
		return "(empty)"
	}
	if notation, err := codec.Diagnose(message.Data()); err == nil {
		return notation
	}
	return fmt.Sprintf("(%d raw bytes)", message.Len())
}

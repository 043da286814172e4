// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/mux/lib/imsg"
	"github.com/bureau-foundation/mux/lib/testutil"
)

func TestMessageNumbering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msgType MsgType
		want    uint32
		name    string
	}{
		{MsgVersion, 12, "version"},
		{MsgIdentifyFlags, 100, "identify-flags"},
		{MsgIdentifyDone, 106, "identify-done"},
		{MsgIdentifyTerminfo, 112, "identify-terminfo"},
		{MsgCommand, 200, "command"},
		{MsgExit, 203, "exit"},
		{MsgResize, 208, "resize"},
		{MsgFlags, 218, "flags"},
		{MsgReadOpen, 300, "read-open"},
		{MsgWrite, 304, "write"},
		{MsgReadCancel, 307, "read-cancel"},
	}
	for _, test := range tests {
		if uint32(test.msgType) != test.want {
			t.Errorf("%s = %d, want %d", test.name, uint32(test.msgType), test.want)
		}
		if test.msgType.String() != test.name || !test.msgType.Known() {
			t.Errorf("String(%d) = %q, want %q", test.want, test.msgType.String(), test.name)
		}
	}
	if MsgType(150).Known() || !strings.HasPrefix(MsgType(150).String(), "unknown") {
		t.Error("type 150 should be unknown")
	}
}

func TestVersionMatches(t *testing.T) {
	t.Parallel()

	if !VersionMatches(ProtocolVersion) || !VersionMatches(0x1200|ProtocolVersion) {
		t.Error("current version rejected")
	}
	if VersionMatches(ProtocolVersion - 1) {
		t.Error("older version accepted")
	}
}

func TestPayloadOverChannel(t *testing.T) {
	t.Parallel()

	left, right := testutil.SocketPair(t)
	sender := imsg.NewChannel(left)
	receiver := imsg.NewChannel(right)

	data, err := Encode(Command{Argv: []string{"set-environment", "-g", "EDITOR", "vi"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := sender.Compose(uint32(MsgCommand), ProtocolVersion, 0, -1, data); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if err := sender.Compose(uint32(MsgExiting), ProtocolVersion, 0, -1, nil); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if err := sender.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var messages []*imsg.Message
	for len(messages) < 2 {
		if _, err := receiver.Read(); err != nil {
			continue
		}
		for {
			message, err := receiver.Get()
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if message == nil {
				break
			}
			messages = append(messages, message)
		}
	}

	var command Command
	if err := Decode(messages[0], &command); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !slices.Equal(command.Argv, []string{"set-environment", "-g", "EDITOR", "vi"}) {
		t.Errorf("Argv = %q", command.Argv)
	}
	if !strings.Contains(Describe(messages[0]), "set-environment") {
		t.Errorf("Describe = %s", Describe(messages[0]))
	}

	if err := Decode(messages[1], &command); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Decode of empty payload error = %v, want ErrEmptyPayload", err)
	}
	if Describe(messages[1]) != "(empty)" {
		t.Errorf("Describe(empty) = %q", Describe(messages[1]))
	}
	for _, message := range messages {
		message.Free()
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	t.Parallel()

	_, err := Encode(WriteData{Stream: StreamStdout, Data: make([]byte, imsg.MaxSize)})
	if !errors.Is(err, imsg.ErrRange) {
		t.Fatalf("Encode error = %v, want imsg.ErrRange", err)
	}
}

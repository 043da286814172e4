// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the messages exchanged between the mux
// client and server over an [github.com/bureau-foundation/mux/lib/imsg]
// channel: the message type numbers, the protocol version carried in
// every header, and the payload structures.
//
// The version travels in the low byte of the header's peer id. A peer
// that receives a message stamped with a different version answers
// with [MsgVersion] and drops the connection; see
// [github.com/bureau-foundation/mux/lib/proc].
//
// A connection has three phases:
//
//  1. Identify. The client sends [MsgIdentifyFlags], [MsgIdentifyTerm],
//     [MsgIdentifyTTYName], [MsgIdentifyCWD], one [MsgIdentifyEnviron]
//     per variable, [MsgIdentifyClientPID], [MsgIdentifyStdin] (with
//     a duplicate of its standard input attached), and finally
//     [MsgIdentifyDone].
//  2. Command. The client sends one [MsgCommand] carrying the argument
//     vector.
//  3. Output. The server answers with zero or more [MsgWrite] messages
//     and one [MsgExit]. The client replies [MsgExiting] and the
//     server confirms with [MsgExited].
//
// Structured payloads ([Command], [Exit], [WriteData], [Resize],
// [IdentifyFlags], [ClientPID]) are CBOR via
// [github.com/bureau-foundation/mux/lib/codec]. Identify strings
// (terminal name, tty, working directory, one NAME=value environment
// entry) are sent as raw UTF-8 bytes.
package protocol

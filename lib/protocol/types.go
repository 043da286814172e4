// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// ProtocolVersion is stamped into the low byte of every header's peer
// id. Bump it on any incompatible change to message numbering or
// payload layout.
const ProtocolVersion = 8

// VersionMatches reports whether a header peer id carries this
// protocol version.
func VersionMatches(peerID uint32) bool {
	return peerID&0xff == ProtocolVersion
}

// MsgType is the type field of a message header.
type MsgType uint32

// Message types. The numbering is part of the wire format.
const (
	MsgVersion MsgType = 12

	MsgIdentifyFlags MsgType = 100 + iota - 1
	MsgIdentifyTerm
	MsgIdentifyTTYName
	MsgIdentifyOldCWD // unused
	MsgIdentifyStdin
	MsgIdentifyEnviron
	MsgIdentifyDone
	MsgIdentifyClientPID
	MsgIdentifyCWD
	MsgIdentifyFeatures
	MsgIdentifyStdout
	MsgIdentifyLongFlags
	MsgIdentifyTerminfo
)

const (
	MsgCommand MsgType = 200 + iota
	MsgDetach
	MsgDetachKill
	MsgExit
	MsgExited
	MsgExiting
	MsgLock
	MsgReady
	MsgResize
	MsgShell
	MsgShutdown
	MsgOldStderr // unused
	MsgOldStdin  // unused
	MsgOldStdout // unused
	MsgSuspend
	MsgUnlock
	MsgWakeup
	MsgExec
	MsgFlags
)

const (
	MsgReadOpen MsgType = 300 + iota
	MsgRead
	MsgReadDone
	MsgWriteOpen
	MsgWrite
	MsgWriteReady
	MsgWriteClose
	MsgReadCancel
)

var typeNames = map[MsgType]string{
	MsgVersion: "version",

	MsgIdentifyFlags:     "identify-flags",
	MsgIdentifyTerm:      "identify-term",
	MsgIdentifyTTYName:   "identify-ttyname",
	MsgIdentifyOldCWD:    "identify-oldcwd",
	MsgIdentifyStdin:     "identify-stdin",
	MsgIdentifyEnviron:   "identify-environ",
	MsgIdentifyDone:      "identify-done",
	MsgIdentifyClientPID: "identify-clientpid",
	MsgIdentifyCWD:       "identify-cwd",
	MsgIdentifyFeatures:  "identify-features",
	MsgIdentifyStdout:    "identify-stdout",
	MsgIdentifyLongFlags: "identify-longflags",
	MsgIdentifyTerminfo:  "identify-terminfo",

	MsgCommand:    "command",
	MsgDetach:     "detach",
	MsgDetachKill: "detachkill",
	MsgExit:       "exit",
	MsgExited:     "exited",
	MsgExiting:    "exiting",
	MsgLock:       "lock",
	MsgReady:      "ready",
	MsgResize:     "resize",
	MsgShell:      "shell",
	MsgShutdown:   "shutdown",
	MsgOldStderr:  "oldstderr",
	MsgOldStdin:   "oldstdin",
	MsgOldStdout:  "oldstdout",
	MsgSuspend:    "suspend",
	MsgUnlock:     "unlock",
	MsgWakeup:     "wakeup",
	MsgExec:       "exec",
	MsgFlags:      "flags",

	MsgReadOpen:   "read-open",
	MsgRead:       "read",
	MsgReadDone:   "read-done",
	MsgWriteOpen:  "write-open",
	MsgWrite:      "write",
	MsgWriteReady: "write-ready",
	MsgWriteClose: "write-close",
	MsgReadCancel: "read-cancel",
}

// Known reports whether t is a defined message type.
func (t MsgType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

func (t MsgType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

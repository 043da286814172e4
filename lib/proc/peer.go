// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"errors"
	"fmt"
	"math"

	"code.hybscloud.com/atomix"

	"github.com/bureau-foundation/mux/lib/imsg"
	"github.com/bureau-foundation/mux/lib/protocol"
	"github.com/bureau-foundation/mux/lib/tailq"
)

// ErrBadPeer reports a send to a peer that has been killed or failed
// the version check.
var ErrBadPeer = errors.New("proc: peer is marked bad")

// UnknownUID is reported by [Peer.UID] when the kernel could not
// supply the peer's credentials.
const UnknownUID = math.MaxUint32

// Handler receives the events of one peer.
type Handler interface {
	// HandleMessage is called for every message that passed the
	// version check. message is freed after it returns.
	HandleMessage(peer *Peer, message *imsg.Message)

	// PeerClosed is called once when the peer is lost: end of stream,
	// a socket or framing error, or a bad peer whose outbox drained.
	// The peer is removed from its Proc after PeerClosed returns.
	PeerClosed(peer *Peer, err error)
}

// peerSerials numbers peers across every Proc in the process.
var peerSerials atomix.Uint32

// Peer is one connection managed by a [Proc].
type Peer struct {
	link tailq.Link[Peer]

	proc    *Proc
	channel *imsg.Channel
	handler Handler
	uid     uint32
	serial  uint32

	bad     bool
	removed bool
}

func peerLink(peer *Peer) *tailq.Link[Peer] { return &peer.link }

// Send queues a message with the current protocol version stamped in
// its peer id. fd, if not -1, is passed with the message; on error it
// remains the caller's.
func (peer *Peer) Send(msgType protocol.MsgType, fd int, payload []byte) error {
	if peer.bad {
		return fmt.Errorf("sending %s to %s: %w", msgType, peer, ErrBadPeer)
	}
	if err := peer.channel.Compose(uint32(msgType), protocol.ProtocolVersion, 0, fd, payload); err != nil {
		return fmt.Errorf("sending %s to %s: %w", msgType, peer, err)
	}
	peer.proc.logger.Debug("sending message",
		"peer", peer.serial,
		"type", msgType.String(),
		"bytes", len(payload),
	)
	return nil
}

// SendValue encodes v with [protocol.Encode] and sends it.
func (peer *Peer) SendValue(msgType protocol.MsgType, v any) error {
	payload, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return peer.Send(msgType, -1, payload)
}

// Kill marks the peer bad: nothing more is read from it or may be sent
// to it, and it is closed once its outbox has drained.
func (peer *Peer) Kill() { peer.bad = true }

// Bad reports whether the peer has been killed.
func (peer *Peer) Bad() bool { return peer.bad }

// Flush blocks until everything queued for the peer has been written.
func (peer *Peer) Flush() error { return peer.channel.Flush() }

// UID returns the user id of the process on the other end, or
// [UnknownUID].
func (peer *Peer) UID() uint32 { return peer.uid }

// Serial returns a process-wide unique number for log correlation.
func (peer *Peer) Serial() uint32 { return peer.serial }

// Queued returns the number of bytes waiting to be written.
func (peer *Peer) Queued() int { return peer.channel.Queued() }

// Channel returns the peer's message channel.
func (peer *Peer) Channel() *imsg.Channel { return peer.channel }

func (peer *Peer) String() string {
	return fmt.Sprintf("peer %d", peer.serial)
}

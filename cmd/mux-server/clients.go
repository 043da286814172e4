// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mux/lib/environ"
	"github.com/bureau-foundation/mux/lib/imsg"
	"github.com/bureau-foundation/mux/lib/netutil"
	"github.com/bureau-foundation/mux/lib/proc"
	"github.com/bureau-foundation/mux/lib/protocol"
	"github.com/bureau-foundation/mux/lib/tailq"
	"github.com/bureau-foundation/mux/lib/waitfor"
)

// writeChunk bounds the output carried by one MsgWrite, leaving room
// for the CBOR envelope within imsg.MaxSize.
const writeChunk = 8192

// errProtocol reports a client that broke the message sequence.
var errProtocol = errors.New("protocol violation")

type clientState int

const (
	clientIdentifying clientState = iota
	clientReady
	clientRunning
	clientExiting
)

func (state clientState) String() string {
	switch state {
	case clientIdentifying:
		return "identifying"
	case clientReady:
		return "ready"
	case clientRunning:
		return "running"
	case clientExiting:
		return "exiting"
	}
	return fmt.Sprintf("clientState(%d)", int(state))
}

// serverClient is one connected client.
type serverClient struct {
	link tailq.Link[serverClient]

	server *Server
	peer   *proc.Peer
	state  clientState

	readOnly bool
	flags    uint64
	columns  uint16
	rows     uint16
	term     string
	ttyName  string
	cwd      string
	pid      int
	environ  *environ.Environ
	stdin    int

	connected time.Time
	waiter    *waitfor.Waiter
	dropped   bool
}

func clientLink(c *serverClient) *tailq.Link[serverClient] { return &c.link }

func (c *serverClient) String() string {
	return fmt.Sprintf("client %d (pid %d)", c.peer.Serial(), c.pid)
}

// addClient admits a freshly accepted connection, or turns it away
// with a message if the access list does not allow its user.
func (s *Server) addClient(fd int) {
	c := &serverClient{
		server:    s,
		environ:   environ.New(),
		stdin:     -1,
		connected: s.clock.Now(),
	}
	c.peer = s.loop.AddPeer(fd, c)
	s.clients.InsertTail(c)

	allowed, readOnly := s.access.Join(c.peer.UID())
	if !allowed {
		s.logger.Warn("refusing client", "peer", c.peer.Serial(), "uid", c.peer.UID())
		c.exit(1, "access not allowed")
		c.peer.Kill()
		return
	}
	c.readOnly = readOnly
	s.logger.Debug("client connected", "peer", c.peer.Serial(), "uid", c.peer.UID(), "read_only", readOnly)
}

func (c *serverClient) HandleMessage(peer *proc.Peer, message *imsg.Message) {
	msgType := protocol.MsgType(message.Type())
	if c.state == clientIdentifying {
		if err := c.identify(msgType, message); err != nil {
			c.server.dropClient(c, err)
		}
		return
	}

	switch msgType {
	case protocol.MsgCommand:
		if c.state != clientReady {
			c.server.dropClient(c, fmt.Errorf("%w: command while %s", errProtocol, c.state))
			return
		}
		var command protocol.Command
		if err := protocol.Decode(message, &command); err != nil {
			c.server.dropClient(c, err)
			return
		}
		c.state = clientRunning
		c.server.execute(c, command.Argv)
	case protocol.MsgResize:
		var size protocol.Resize
		if err := protocol.Decode(message, &size); err != nil {
			c.server.dropClient(c, err)
			return
		}
		c.columns, c.rows = size.Columns, size.Rows
	case protocol.MsgExiting:
		c.state = clientExiting
		c.send(protocol.MsgExited, nil)
		peer.Kill()
	default:
		c.server.logger.Debug("ignoring message", "peer", peer.Serial(), "type", msgType.String())
	}
}

// identify records one identify message.
func (c *serverClient) identify(msgType protocol.MsgType, message *imsg.Message) error {
	switch msgType {
	case protocol.MsgIdentifyFlags:
		var flags protocol.IdentifyFlags
		if err := protocol.Decode(message, &flags); err != nil {
			return err
		}
		c.flags = flags.Flags &^ protocol.ClientReadOnly
		c.columns, c.rows = flags.Columns, flags.Rows
	case protocol.MsgIdentifyTerm:
		c.term = string(message.Data())
	case protocol.MsgIdentifyTTYName:
		c.ttyName = string(message.Data())
	case protocol.MsgIdentifyCWD:
		c.cwd = string(message.Data())
	case protocol.MsgIdentifyEnviron:
		if !c.environ.Put(string(message.Data()), 0) {
			c.server.logger.Debug("ignoring malformed environment entry", "peer", c.peer.Serial())
		}
	case protocol.MsgIdentifyClientPID:
		var pid protocol.ClientPID
		if err := protocol.Decode(message, &pid); err != nil {
			return err
		}
		c.pid = pid.PID
	case protocol.MsgIdentifyStdin:
		if fd := message.TakeFD(); fd >= 0 {
			if c.stdin >= 0 {
				_ = unix.Close(c.stdin)
			}
			c.stdin = fd
		}
	case protocol.MsgIdentifyDone:
		c.state = clientReady
		if c.readOnly {
			c.flags |= protocol.ClientReadOnly
		}
		c.server.logger.Info("client identified",
			"peer", c.peer.Serial(),
			"pid", c.pid,
			"uid", c.peer.UID(),
			"term", c.term,
			"terminal", c.flags&protocol.ClientTerminal != 0,
		)
	case protocol.MsgIdentifyOldCWD, protocol.MsgIdentifyFeatures, protocol.MsgIdentifyStdout,
		protocol.MsgIdentifyLongFlags, protocol.MsgIdentifyTerminfo:
		// Accepted for compatibility, not used.
	default:
		return fmt.Errorf("%w: %s before identify completed", errProtocol, msgType)
	}
	return nil
}

func (c *serverClient) PeerClosed(_ *proc.Peer, err error) {
	if !netutil.IsExpectedCloseError(err) && !errors.Is(err, proc.ErrBadPeer) {
		c.server.logger.Warn("client lost", "peer", c.peer.Serial(), "error", err)
	}
	c.server.forgetClient(c)
}

// dropClient disconnects c immediately, discarding its queued output.
func (s *Server) dropClient(c *serverClient, reason error) {
	if c.dropped {
		return
	}
	s.logger.Warn("dropping client", "peer", c.peer.Serial(), "reason", reason)
	s.forgetClient(c)
	s.loop.RemovePeer(c.peer)
}

// forgetClient releases everything the server holds for c.
func (s *Server) forgetClient(c *serverClient) {
	if c.dropped {
		return
	}
	c.dropped = true
	if c.waiter != nil {
		s.waits.Cancel(c.waiter)
		c.waiter = nil
	}
	if c.stdin >= 0 {
		_ = unix.Close(c.stdin)
		c.stdin = -1
	}
	s.clients.Remove(c)
	s.logger.Debug("client gone", "peer", c.peer.Serial())
	s.resumeAccept()
}

// send queues a message for c and disconnects c if that takes its
// queue over the configured ceiling.
func (c *serverClient) send(msgType protocol.MsgType, v any) {
	if c.dropped {
		return
	}
	var err error
	if v == nil {
		err = c.peer.Send(msgType, -1, nil)
	} else {
		err = c.peer.SendValue(msgType, v)
	}
	if err != nil {
		if !errors.Is(err, proc.ErrBadPeer) {
			c.server.dropClient(c, err)
		}
		return
	}
	if limit := c.server.config.Server.MaxQueuedBytes; c.peer.Queued() > limit {
		c.server.dropClient(c, fmt.Errorf("%d bytes queued, limit %d", c.peer.Queued(), limit))
	}
}

// write sends data to one of c's output streams.
func (c *serverClient) write(stream int, data []byte) {
	for len(data) > 0 && !c.dropped {
		n := min(len(data), writeChunk)
		c.send(protocol.MsgWrite, protocol.WriteData{Stream: stream, Data: data[:n]})
		data = data[n:]
	}
}

// exit ends c's command with code and an optional message.
func (c *serverClient) exit(code int, message string) {
	c.send(protocol.MsgExit, protocol.Exit{Code: code, Message: message})
	c.state = clientExiting
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"fmt"
	"os"

	"code.hybscloud.com/iox"

	"github.com/bureau-foundation/mux/lib/tailq"
)

// descriptorsPerRead is how many descriptors one read keeps.
const descriptorsPerRead = 1

type pendingDescriptor struct {
	link tailq.Link[pendingDescriptor]
	fd   int
}

func pendingLink(pending *pendingDescriptor) *tailq.Link[pendingDescriptor] {
	return &pending.link
}

// Channel frames messages over one connected AF_UNIX stream socket.
//
// The channel does not own the socket: [Channel.Clear] releases
// everything the channel holds but leaves closing the socket to the
// caller.
type Channel struct {
	socket int
	pid    uint32

	in       []byte
	inLength int

	outbox  Outbox
	pending tailq.Queue[pendingDescriptor]

	budget    DescriptorBudget
	transport transport
}

// NewChannel returns a channel on socket. Outgoing messages created
// with pid 0 are stamped with the calling process's id.
func NewChannel(socket int) *Channel {
	channel := &Channel{
		socket:    socket,
		pid:       uint32(os.Getpid()),
		in:        make([]byte, ReadSize),
		budget:    ProcessBudget{},
		transport: socketTransport{},
	}
	channel.outbox.init(socket, channel.transport)
	channel.pending.Init(pendingLink)
	return channel
}

// SetBudget replaces the descriptor budget consulted before each read.
// Processes with many channels typically share one budget with a
// nonzero reserve.
func (channel *Channel) SetBudget(budget DescriptorBudget) {
	channel.budget = budget
}

// Socket returns the socket descriptor.
func (channel *Channel) Socket() int { return channel.socket }

// PID returns the process id stamped into messages created with pid 0.
func (channel *Channel) PID() uint32 { return channel.pid }

// Outbox returns the channel's outbox.
func (channel *Channel) Outbox() *Outbox { return &channel.outbox }

// Queued returns the number of bytes waiting in the outbox.
func (channel *Channel) Queued() int { return channel.outbox.Queued() }

// Buffered returns the number of received bytes not yet decoded. Zero
// means the channel is idle; otherwise it holds complete messages, a
// partial one, or both.
func (channel *Channel) Buffered() int { return channel.inLength }

// PendingDescriptors returns the number of received descriptors not
// yet claimed by a decoded message.
func (channel *Channel) PendingDescriptors() int { return channel.pending.Len() }

// Read performs one non-blocking read from the socket into the inbound
// scratch region and returns the number of bytes read.
//
// Read returns [ErrExhausted] without reading if the descriptor budget
// refuses, [iox.ErrWouldBlock] if no data is ready, [ErrClosed] at end
// of stream, and [ErrBufferFull] if the scratch region has no room. An
// interrupted read is retried. At most one received descriptor is kept
// per read; any others arriving in the same read are closed. Bytes
// received alongside a malformed control message are kept in the
// scratch region and counted in the returned n.
func (channel *Channel) Read() (int, error) {
	if channel.inLength == len(channel.in) {
		return 0, ErrBufferFull
	}
	if !channel.budget.Admit(descriptorsPerRead) {
		return 0, ErrExhausted
	}

	n, descriptors, err := channel.transport.receive(channel.socket, channel.in[channel.inLength:])
	for i, fd := range descriptors {
		if i < descriptorsPerRead {
			channel.pending.InsertTail(&pendingDescriptor{fd: fd})
		} else {
			closeDescriptor(fd)
		}
	}
	channel.inLength += n
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrClosed
	}
	return n, nil
}

// Get decodes the next complete message from the scratch region. It
// returns (nil, nil) when no complete message is buffered yet, and
// [ErrRange] when the buffered header declares an impossible length; a
// range error means the stream cannot be resynchronized and the
// connection should be dropped.
func (channel *Channel) Get() (*Message, error) {
	if channel.inLength < HeaderSize {
		return nil, nil
	}
	header := parseHeader(channel.in[:HeaderSize])
	length := int(header.Length)
	if length < HeaderSize || length > MaxSize {
		return nil, fmt.Errorf("%w: header declares %d bytes", ErrRange, length)
	}
	if length > channel.inLength {
		return nil, nil
	}

	message := &Message{Header: header, fd: -1}
	if payloadLength := length - HeaderSize; payloadLength > 0 {
		payload, err := Open(payloadLength)
		if err != nil {
			return nil, err
		}
		if err := payload.Add(channel.in[HeaderSize:length]); err != nil {
			return nil, err
		}
		message.payload = payload
	}
	if header.Flags&FlagHasFD != 0 {
		message.fd = channel.popDescriptor()
	}

	copy(channel.in, channel.in[length:channel.inLength])
	channel.inLength -= length
	return message, nil
}

// popDescriptor removes the oldest pending descriptor, or returns -1.
func (channel *Channel) popDescriptor() int {
	pending := channel.pending.First()
	if pending == nil {
		return -1
	}
	channel.pending.Remove(pending)
	return pending.fd
}

// Create starts a message of type messageType with room for
// payloadLength bytes of payload. The returned buffer already holds the
// header slot; append the payload with [Buffer.Add] and hand it to
// [Channel.Seal]. pid 0 stamps the channel's own process id. The buffer
// may grow past payloadLength up to [MaxSize].
func (channel *Channel) Create(messageType, peerID, pid uint32, payloadLength int) (*Buffer, error) {
	if payloadLength < 0 {
		return nil, fmt.Errorf("%w: payload length %d", ErrInvalid, payloadLength)
	}
	if payloadLength > MaxSize-HeaderSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrRange, payloadLength, MaxSize-HeaderSize)
	}
	if pid == 0 {
		pid = channel.pid
	}
	buffer, err := OpenDynamic(HeaderSize+payloadLength, MaxSize)
	if err != nil {
		return nil, err
	}
	slot, err := buffer.Reserve(HeaderSize)
	if err != nil {
		return nil, err
	}
	Header{Type: messageType, PeerID: peerID, PID: pid}.put(slot)
	return buffer, nil
}

// Seal stamps the final length and descriptor flag into a buffer from
// [Channel.Create] and queues it for sending. The channel owns the
// buffer afterwards.
func (channel *Channel) Seal(buffer *Buffer) error {
	if buffer.Len() < HeaderSize {
		return fmt.Errorf("%w: buffer of %d bytes has no header slot", ErrInvalid, buffer.Len())
	}
	if buffer.Len() > MaxSize {
		return fmt.Errorf("%w: message of %d bytes exceeds %d", ErrRange, buffer.Len(), MaxSize)
	}
	slot, err := buffer.Seek(0, HeaderSize)
	if err != nil {
		return err
	}
	header := parseHeader(slot)
	header.Length = uint16(buffer.Len())
	header.Flags &^= FlagHasFD
	if buffer.HasFD() {
		header.Flags |= FlagHasFD
	}
	header.put(slot)
	channel.outbox.Enqueue(buffer)
	return nil
}

// Compose queues a message with one payload region. fd, if not -1, is
// passed with the message; on error it remains the caller's.
func (channel *Channel) Compose(messageType, peerID, pid uint32, fd int, payload []byte) error {
	return channel.ComposeVector(messageType, peerID, pid, fd, payload)
}

// ComposeVector queues a message whose payload is the concatenation of
// regions.
func (channel *Channel) ComposeVector(messageType, peerID, pid uint32, fd int, regions ...[]byte) error {
	total := 0
	for _, region := range regions {
		total += len(region)
	}
	buffer, err := channel.Create(messageType, peerID, pid, total)
	if err != nil {
		return err
	}
	for _, region := range regions {
		if err := buffer.Add(region); err != nil {
			buffer.Free()
			return err
		}
	}
	if fd >= 0 {
		if err := buffer.SetFD(fd); err != nil {
			buffer.Free()
			return err
		}
	}
	return channel.Seal(buffer)
}

// ComposeBuffer queues a message whose payload is an already built
// buffer, without copying it: a separate header buffer goes first,
// then payload. The channel takes ownership of payload even on error.
// Payloads carrying a descriptor are rejected; attach descriptors
// through [Channel.Create] instead.
func (channel *Channel) ComposeBuffer(messageType, peerID, pid uint32, payload *Buffer) error {
	if payload.HasFD() {
		payload.Free()
		return fmt.Errorf("%w: framed payload carries a descriptor", ErrInvalid)
	}
	if payload.Len() > MaxSize-HeaderSize {
		size := payload.Len()
		payload.Free()
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrRange, size, MaxSize-HeaderSize)
	}
	if pid == 0 {
		pid = channel.pid
	}
	header, err := Open(HeaderSize)
	if err != nil {
		payload.Free()
		return err
	}
	slot, err := header.Reserve(HeaderSize)
	if err != nil {
		payload.Free()
		return err
	}
	Header{
		Type:   messageType,
		Length: uint16(HeaderSize + payload.Len()),
		PeerID: peerID,
		PID:    pid,
	}.put(slot)
	channel.outbox.Enqueue(header)
	channel.outbox.Enqueue(payload)
	return nil
}

// Forward re-frames a received message on this channel with its
// original type, peer id, and pid. A descriptor on message is closed
// rather than forwarded. message is left intact apart from that and
// must still be freed by the caller.
func (channel *Channel) Forward(message *Message) error {
	if fd := message.TakeFD(); fd >= 0 {
		closeDescriptor(fd)
	}
	var payload []byte
	if message.payload != nil {
		message.payload.Rewind()
		payload = message.payload.Bytes()
	}
	return channel.Compose(message.Type(), message.PeerID(), message.PID(), -1, payload)
}

// Write drives the outbox once; see [Outbox.Write].
func (channel *Channel) Write() (int, error) {
	return channel.outbox.Write()
}

// Flush writes until the outbox is empty, waiting out would-block
// conditions with an adaptive backoff. It is for shutdown paths where
// the caller must not return before its last messages are sent.
func (channel *Channel) Flush() error {
	var backoff iox.Backoff
	for channel.outbox.Len() > 0 {
		_, err := channel.outbox.Write()
		switch {
		case err == nil:
			backoff.Reset()
		case iox.IsWouldBlock(err):
			backoff.Wait()
		default:
			return fmt.Errorf("flushing channel: %w", err)
		}
	}
	return nil
}

// Clear discards queued output, closes every received descriptor no
// message claimed, and drops buffered input. The socket stays open.
func (channel *Channel) Clear() {
	channel.outbox.Clear()
	for pending := range channel.pending.AllSafe() {
		channel.pending.Remove(pending)
		closeDescriptor(pending.fd)
	}
	channel.inLength = 0
}

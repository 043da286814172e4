// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// receiveDescriptorSlots sizes the ancillary buffer for one read. Only
// one descriptor per read is kept; the extra room lets a misbehaving
// peer's surplus descriptors arrive so they can be closed here rather
// than silently truncated by the kernel.
const receiveDescriptorSlots = 8

// transport is the system-call boundary of an outbox and a channel.
// Tests substitute an implementation that splits writes or reads.
type transport interface {
	// send writes p with one non-blocking sendmsg, passing fd as
	// SCM_RIGHTS when fd >= 0.
	send(socket int, p []byte, fd int) (int, error)

	// receive reads into p with one non-blocking recvmsg and returns
	// any descriptors that arrived with the bytes.
	receive(socket int, p []byte) (int, []int, error)
}

// socketTransport is the production transport over x/sys/unix.
type socketTransport struct{}

func (socketTransport) send(socket int, p []byte, fd int) (int, error) {
	var rights []byte
	if fd >= 0 {
		rights = unix.UnixRights(fd)
	}
	for {
		n, err := unix.SendmsgN(socket, p, rights, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOBUFS):
			return 0, iox.ErrWouldBlock
		default:
			return 0, fmt.Errorf("sendmsg: %w", err)
		}
	}
}

func (socketTransport) receive(socket int, p []byte) (int, []int, error) {
	oob := make([]byte, unix.CmsgSpace(receiveDescriptorSlots*4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(socket, p, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		switch {
		case err == nil:
			descriptors, parseErr := parseRights(oob[:oobn])
			if parseErr != nil {
				return n, descriptors, fmt.Errorf("parsing control message: %w", parseErr)
			}
			return n, descriptors, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, nil, iox.ErrWouldBlock
		default:
			return 0, nil, fmt.Errorf("recvmsg: %w", err)
		}
	}
}

// parseRights extracts every SCM_RIGHTS descriptor from a control
// buffer. Descriptors parsed before an error are still returned so the
// caller can close them.
func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var descriptors []int
	for i := range messages {
		if messages[i].Header.Level != unix.SOL_SOCKET || messages[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			return descriptors, err
		}
		descriptors = append(descriptors, rights...)
	}
	return descriptors, nil
}

func closeDescriptor(fd int) {
	_ = unix.Close(fd)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mux/lib/protocol"
	"github.com/bureau-foundation/mux/lib/version"
	"github.com/bureau-foundation/mux/lib/waitfor"
)

var waitForCommand = &command{
	name:    "wait-for",
	alias:   "wait",
	usage:   "[-L|-S|-U] channel",
	summary: "wait for, signal, lock or unlock a channel",
	minArgs: 1,
	maxArgs: 1,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		lock := flags.BoolP("lock", "L", false, "lock the channel, waiting until it is free")
		signal := flags.BoolP("signal", "S", false, "wake every client waiting on the channel")
		unlock := flags.BoolP("unlock", "U", false, "unlock the channel")
		return func(ctx *commandContext, args []string) error {
			s, c, name := ctx.server, ctx.client, args[0]
			chosen := 0
			for _, set := range []bool{*lock, *signal, *unlock} {
				if set {
					chosen++
				}
			}
			if chosen > 1 {
				return errors.New("only one of -L, -S and -U may be given")
			}

			resume := func() {
				c.waiter = nil
				ctx.finish(nil)
			}
			var waiter *waitfor.Waiter
			switch {
			case *signal:
				woken := s.waits.Signal(name)
				s.logger.Debug("wait channel signaled", "channel", name, "woken", woken)
				return nil
			case *unlock:
				return s.waits.Unlock(name)
			case *lock:
				waiter = s.waits.Lock(name, resume)
			default:
				waiter = s.waits.Wait(name, resume)
			}
			if waiter == nil {
				return nil
			}
			c.waiter = waiter
			return errDeferred
		}
	},
}

var serverInfoCommand = &command{
	name:    "server-info",
	alias:   "info",
	usage:   "",
	summary: "show server information",
	maxArgs: 0,
	setup: func(*pflag.FlagSet) func(*commandContext, []string) error {
		return func(ctx *commandContext, _ []string) error {
			s := ctx.server
			now := s.clock.Now()
			ctx.printf("mux-server %s, protocol %d\n", version.Info(), protocol.ProtocolVersion)
			ctx.printf("pid %d, uid %d, started %s (%s)\n",
				os.Getpid(), s.ownUID,
				s.started.Format("Mon Jan _2 15:04:05 2006"),
				humanize.RelTime(s.started, now, "ago", "from now"),
			)
			ctx.printf("socket %s\n", s.socketPath)
			ctx.printf("clients: %d, %s queued (limit %s per client)\n",
				s.clients.Len(),
				humanize.Bytes(uint64(s.queuedBytes())),
				humanize.Bytes(uint64(s.config.Server.MaxQueuedBytes)),
			)
			for c := range s.clients.All() {
				ctx.printf("  %s: uid %d, %s, term %q, %dx%d, %s queued, connected %s\n",
					c, c.peer.UID(), c.state, c.term, c.columns, c.rows,
					humanize.Bytes(uint64(c.peer.Queued())),
					humanize.RelTime(c.connected, now, "ago", "from now"),
				)
			}
			ctx.printf("sessions: %d\n", s.sessions.Len())
			ctx.printf("wait channels: %d\n", s.waits.Len())
			for channel := range s.waits.All() {
				state := ""
				switch {
				case channel.Locked():
					state = "locked, "
				case channel.Woken():
					state = "woken, "
				}
				ctx.printf("  %s: %s%d waiters, %d lockers\n",
					channel.Name(), state, channel.Waiters(), channel.Lockers())
			}
			ctx.printf("access list: %d users\n", s.access.Len())
			return nil
		}
	},
}

var killServerCommand = &command{
	name:     "kill-server",
	usage:    "",
	summary:  "stop the server",
	maxArgs:  0,
	modifies: true,
	setup: func(*pflag.FlagSet) func(*commandContext, []string) error {
		return func(ctx *commandContext, _ []string) error {
			ctx.server.logger.Info("server killed", "peer", ctx.client.peer.Serial())
			ctx.server.shutdownPending = true
			return nil
		}
	},
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mux/lib/protocol"
)

// lookupUID resolves a user name or numeric uid.
func lookupUID(name string) (uint32, error) {
	if uid, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(uid), nil
	}
	found, err := user.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("unknown user: %s", name)
	}
	uid, err := strconv.ParseUint(found.Uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("user %s has non-numeric uid %q", name, found.Uid)
	}
	return uint32(uid), nil
}

// userName returns the login name for uid, or the number.
func userName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if found, err := user.LookupId(id); err == nil {
		return found.Username
	}
	return id
}

var serverAccessCommand = &command{
	name:     "server-access",
	usage:    "[-adlrw] [user]",
	summary:  "change which users may connect",
	maxArgs:  1,
	modifies: true,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		allow := flags.BoolP("add", "a", false, "allow the user to connect")
		deny := flags.BoolP("delete", "d", false, "remove the user and disconnect their clients")
		list := flags.BoolP("list", "l", false, "list the users allowed")
		readOnly := flags.BoolP("read-only", "r", false, "make the user read-only")
		write := flags.BoolP("write", "w", false, "give the user write access")
		return func(ctx *commandContext, args []string) error {
			s := ctx.server
			if *list {
				for allowed := range s.access.All() {
					mode := "W"
					if allowed.ReadOnly {
						mode = "R"
					}
					ctx.printf("%s (%s)\n", userName(allowed.UID), mode)
				}
				return nil
			}
			switch {
			case len(args) == 0:
				return errors.New("missing user argument")
			case *allow && *deny:
				return errors.New("-a and -d cannot be used together")
			case *readOnly && *write:
				return errors.New("-r and -w cannot be used together")
			}

			name := args[0]
			uid, err := lookupUID(name)
			if err != nil {
				return err
			}
			if uid == 0 || uid == s.ownUID {
				return fmt.Errorf("%s owns the server, can't change access", name)
			}

			if *allow {
				if s.access.Find(uid) != nil {
					return fmt.Errorf("user %s is already added", name)
				}
				s.access.Allow(uid)
				s.logger.Info("access allowed", "uid", uid)
			}
			if *deny {
				if !s.access.Deny(uid) {
					return fmt.Errorf("user %s not found", name)
				}
				s.logger.Info("access denied", "uid", uid)
				for c := range s.clients.AllSafe() {
					if c.peer.UID() == uid && c.state != clientExiting {
						c.exit(1, "access not allowed")
						c.peer.Kill()
					}
				}
				return nil
			}

			if *readOnly || *write {
				var ok bool
				if *readOnly {
					ok = s.access.DenyWrite(uid)
				} else {
					ok = s.access.AllowWrite(uid)
				}
				if !ok {
					return fmt.Errorf("user %s not found", name)
				}
				for c := range s.clients.All() {
					if c.peer.UID() != uid {
						continue
					}
					c.readOnly = *readOnly
					if c.readOnly {
						c.flags |= protocol.ClientReadOnly
					} else {
						c.flags &^= protocol.ClientReadOnly
					}
				}
				s.logger.Info("access changed", "uid", uid, "read_only", *readOnly)
			}
			return nil
		}
	},
}

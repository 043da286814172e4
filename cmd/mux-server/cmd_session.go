// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mux/lib/environ"
	"github.com/bureau-foundation/mux/lib/session"
)

// updateEnvironment names the client variables copied into every new
// session, so a session started from a fresh login sees that login's
// agent sockets and display.
var updateEnvironment = []string{
	"DISPLAY",
	"KRB5CCNAME",
	"SSH_ASKPASS",
	"SSH_AUTH_SOCK",
	"SSH_AGENT_PID",
	"SSH_CONNECTION",
	"WINDOWID",
	"XAUTHORITY",
}

// targetSession resolves -t, or with no target the only session.
func (s *Server) targetSession(target string) (*session.Session, error) {
	if target != "" {
		return s.sessions.Lookup(target)
	}
	if s.sessions.Len() == 1 {
		for only := range s.sessions.All() {
			return only, nil
		}
	}
	if s.sessions.Len() == 0 {
		return nil, errors.New("no sessions")
	}
	return nil, errors.New("no current session")
}

var newSessionCommand = &command{
	name:     "new-session",
	alias:    "new",
	usage:    "[-dP] [-e VARIABLE=value] [-s session-name]",
	summary:  "create a session",
	maxArgs:  0,
	modifies: true,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		flags.BoolP("detached", "d", false, "do not attach; sessions are always created detached")
		name := flags.StringP("session-name", "s", "", "name of the new session")
		variables := flags.StringArrayP("environment", "e", nil, "set VARIABLE=value in the session environment")
		printName := flags.BoolP("print", "P", false, "print the new session's name")
		return func(ctx *commandContext, _ []string) error {
			for _, variable := range *variables {
				if !environ.New().Put(variable, 0) {
					return fmt.Errorf("invalid environment variable: %s", variable)
				}
			}
			created, err := ctx.server.sessions.Create(*name)
			if err != nil {
				return err
			}
			created.Environ.Update(ctx.client.environ, updateEnvironment)
			for _, variable := range *variables {
				created.Environ.Put(variable, 0)
			}
			ctx.server.logger.Info("session created", "session", created.Name(), "id", created.ID())
			if *printName {
				ctx.printf("%s:\n", created.Name())
			}
			return nil
		}
	},
}

var killSessionCommand = &command{
	name:     "kill-session",
	usage:    "[-a] [-t target-session]",
	summary:  "destroy a session",
	maxArgs:  0,
	modifies: true,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		allOthers := flags.BoolP("all", "a", false, "kill every session except the target")
		target := flags.StringP("target", "t", "", "target session")
		return func(ctx *commandContext, _ []string) error {
			s := ctx.server
			keep, err := s.targetSession(*target)
			if err != nil {
				return err
			}
			for victim := range s.sessions.All() {
				if (victim == keep) != *allOthers {
					s.sessions.Remove(victim)
					s.logger.Info("session killed", "session", victim.Name(), "id", victim.ID())
				}
			}
			if s.sessions.Len() == 0 && s.config.Server.ExitEmpty {
				s.logger.Info("no sessions left, exiting")
				s.shutdownPending = true
			}
			return nil
		}
	},
}

var renameSessionCommand = &command{
	name:     "rename-session",
	alias:    "rename",
	usage:    "[-t target-session] new-name",
	summary:  "rename a session",
	minArgs:  1,
	maxArgs:  1,
	modifies: true,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		target := flags.StringP("target", "t", "", "target session")
		return func(ctx *commandContext, args []string) error {
			s := ctx.server
			renamed, err := s.targetSession(*target)
			if err != nil {
				return err
			}
			old := renamed.Name()
			if err := s.sessions.Rename(renamed, args[0]); err != nil {
				return err
			}
			s.logger.Info("session renamed", "from", old, "to", renamed.Name(), "id", renamed.ID())
			return nil
		}
	},
}

var listSessionsCommand = &command{
	name:    "list-sessions",
	alias:   "ls",
	usage:   "",
	summary: "list sessions",
	maxArgs: 0,
	setup: func(*pflag.FlagSet) func(*commandContext, []string) error {
		return func(ctx *commandContext, _ []string) error {
			now := ctx.server.clock.Now()
			for listed := range ctx.server.sessions.All() {
				created := listed.Created()
				ctx.printf("%s: $%d, created %s (%s)\n",
					listed.Name(),
					listed.ID(),
					created.Format("Mon Jan _2 15:04:05 2006"),
					humanize.RelTime(created, now, "ago", "from now"),
				)
			}
			return nil
		}
	},
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mux/lib/protocol"
)

// errDeferred is returned by a command that will finish later, from a
// callback on the event loop, instead of when run returns.
var errDeferred = errors.New("command deferred")

// command is one server command a client can run.
type command struct {
	// name is the full command name; alias is an optional short form.
	name  string
	alias string

	// usage is the argument synopsis shown in errors and by
	// list-commands, without the command name.
	usage   string
	summary string

	// minArgs and maxArgs bound the positional arguments after flag
	// parsing. maxArgs -1 means unbounded.
	minArgs int
	maxArgs int

	// modifies marks commands refused to read-only clients.
	modifies bool

	// setup registers the command's flags and returns the function that
	// runs it. It is called afresh for every invocation so flag values
	// never leak between clients.
	setup func(flags *pflag.FlagSet) func(ctx *commandContext, args []string) error
}

// commandTable is every server command, in list-commands order. It is
// filled by init to break the reference cycle through list-commands.
var commandTable []*command

func init() {
	commandTable = []*command{
		newSessionCommand,
		killSessionCommand,
		renameSessionCommand,
		listSessionsCommand,
		setEnvironmentCommand,
		showEnvironmentCommand,
		serverAccessCommand,
		waitForCommand,
		serverInfoCommand,
		killServerCommand,
		listCommandsCommand,
	}
}

// findCommand resolves name to a command: an exact name or alias, or
// else the only command whose name starts with name.
func findCommand(name string) (*command, error) {
	for _, cmd := range commandTable {
		if cmd.name == name || (cmd.alias != "" && cmd.alias == name) {
			return cmd, nil
		}
	}
	var matches []*command
	for _, cmd := range commandTable {
		if strings.HasPrefix(cmd.name, name) {
			matches = append(matches, cmd)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if suggestion := suggestCommand(name, commandTable); suggestion != "" {
			return nil, fmt.Errorf("unknown command: %s (did you mean %q?)", name, suggestion)
		}
		return nil, fmt.Errorf("unknown command: %s", name)
	}
	names := make([]string, len(matches))
	for i, cmd := range matches {
		names[i] = cmd.name
	}
	return nil, fmt.Errorf("ambiguous command: %s, could be: %s", name, strings.Join(names, ", "))
}

// commandContext carries one command invocation.
type commandContext struct {
	server *Server
	client *serverClient
	name   string

	stdout bytes.Buffer
	stderr bytes.Buffer

	finished bool
}

// printf writes to the command's standard output.
func (ctx *commandContext) printf(format string, args ...any) {
	fmt.Fprintf(&ctx.stdout, format, args...)
}

// execute runs argv for c. The reply is sent when the command finishes,
// which for a deferred command is after execute returns.
func (s *Server) execute(c *serverClient, argv []string) {
	if len(argv) == 0 {
		argv = []string{newSessionCommand.name}
	}
	ctx := &commandContext{server: s, client: c, name: argv[0]}
	err := s.runCommand(ctx, argv)
	if errors.Is(err, errDeferred) {
		return
	}
	ctx.finish(err)
}

func (s *Server) runCommand(ctx *commandContext, argv []string) error {
	cmd, err := findCommand(argv[0])
	if err != nil {
		return err
	}
	ctx.name = cmd.name

	flags := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SetInterspersed(false)
	run := cmd.setup(flags)
	if err := flags.Parse(argv[1:]); err != nil {
		return fmt.Errorf("%w\nusage: %s %s", err, cmd.name, cmd.usage)
	}
	args := flags.Args()
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("usage: %s %s", cmd.name, cmd.usage)
	}
	if cmd.modifies && ctx.client.readOnly {
		return errors.New("client is read-only")
	}

	s.logger.Debug("running command", "peer", ctx.client.peer.Serial(), "command", cmd.name, "args", args)
	return run(ctx, args)
}

// finish sends the command's output and exit code. A failed command
// exits 1 with its error on standard error.
func (ctx *commandContext) finish(err error) {
	if ctx.finished {
		return
	}
	ctx.finished = true
	s, c := ctx.server, ctx.client

	code := 0
	if err != nil {
		code = 1
		fmt.Fprintf(&ctx.stderr, "%s\n", err)
		s.logger.Debug("command failed", "peer", c.peer.Serial(), "command", ctx.name, "error", err)
	}
	if !c.dropped {
		c.write(protocol.StreamStdout, ctx.stdout.Bytes())
		c.write(protocol.StreamStderr, ctx.stderr.Bytes())
		c.exit(code, "")
	}

	if s.shutdownPending {
		s.shutdownPending = false
		s.shutdown()
	}
}

// listCommandsCommand prints the command table.
var listCommandsCommand = &command{
	name:    "list-commands",
	alias:   "lscm",
	usage:   "[COMMAND]",
	summary: "list the server's commands",
	maxArgs: 1,
	setup: func(*pflag.FlagSet) func(*commandContext, []string) error {
		return func(ctx *commandContext, args []string) error {
			commands := commandTable
			if len(args) == 1 {
				cmd, err := findCommand(args[0])
				if err != nil {
					return err
				}
				commands = []*command{cmd}
			}
			for _, cmd := range commands {
				name := cmd.name
				if cmd.alias != "" {
					name += " (" + cmd.alias + ")"
				}
				ctx.printf("%s\n", strings.TrimSpace(name+" "+cmd.usage))
			}
			return nil
		}
	},
}

// commandNames returns every name and alias, sorted, for suggestions.
func commandNames(commands []*command) []string {
	var names []string
	for _, cmd := range commands {
		names = append(names, cmd.name)
		if cmd.alias != "" {
			names = append(names, cmd.alias)
		}
	}
	slices.Sort(names)
	return names
}

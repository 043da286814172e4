// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mux/lib/environ"
)

// targetEnvironment picks the global environment or a session's.
func (s *Server) targetEnvironment(global bool, target string) (*environ.Environ, error) {
	if global {
		return s.global, nil
	}
	targeted, err := s.targetSession(target)
	if err != nil {
		return nil, err
	}
	return targeted.Environ, nil
}

func checkVariableName(name string) error {
	switch {
	case name == "":
		return errors.New("empty variable name")
	case strings.ContainsRune(name, '='):
		return fmt.Errorf("variable name contains =: %s", name)
	}
	return nil
}

var setEnvironmentCommand = &command{
	name:     "set-environment",
	alias:    "setenv",
	usage:    "[-ghru] [-t target-session] name [value]",
	summary:  "set or unset an environment variable",
	minArgs:  1,
	maxArgs:  2,
	modifies: true,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		global := flags.BoolP("global", "g", false, "use the global environment")
		target := flags.StringP("target", "t", "", "target session")
		hidden := flags.BoolP("hidden", "h", false, "keep the variable out of exported environments")
		remove := flags.BoolP("remove", "r", false, "mark the variable to be removed from new processes")
		unset := flags.BoolP("unset", "u", false, "delete the variable")
		return func(ctx *commandContext, args []string) error {
			name := args[0]
			if err := checkVariableName(name); err != nil {
				return err
			}
			env, err := ctx.server.targetEnvironment(*global, *target)
			if err != nil {
				return err
			}
			switch {
			case *unset:
				if len(args) > 1 {
					return errors.New("can't specify a value with -u")
				}
				env.Unset(name)
			case *remove:
				if len(args) > 1 {
					return errors.New("can't specify a value with -r")
				}
				env.Clear(name)
			default:
				if len(args) < 2 {
					return errors.New("no value specified")
				}
				var entryFlags environ.Flags
				if *hidden {
					entryFlags |= environ.Hidden
				}
				env.Set(name, args[1], entryFlags)
			}
			return nil
		}
	},
}

var showEnvironmentCommand = &command{
	name:    "show-environment",
	alias:   "showenv",
	usage:   "[-ghs] [-t target-session] [name]",
	summary: "show environment variables",
	maxArgs: 1,
	setup: func(flags *pflag.FlagSet) func(*commandContext, []string) error {
		global := flags.BoolP("global", "g", false, "use the global environment")
		target := flags.StringP("target", "t", "", "target session")
		hidden := flags.BoolP("hidden", "h", false, "show only hidden variables")
		shell := flags.BoolP("shell", "s", false, "format as Bourne shell commands")
		return func(ctx *commandContext, args []string) error {
			env, err := ctx.server.targetEnvironment(*global, *target)
			if err != nil {
				return err
			}
			show := func(entry *environ.Entry) {
				if (entry.Flags&environ.Hidden != 0) != *hidden {
					return
				}
				switch {
				case !*shell:
					ctx.printf("%s\n", entry)
				case entry.IsSet:
					ctx.printf("%s=\"%s\"; export %s;\n", entry.Name, shellEscape(entry.Value), entry.Name)
				default:
					ctx.printf("unset %s;\n", entry.Name)
				}
			}
			if len(args) == 1 {
				entry := env.Find(args[0])
				if entry == nil {
					return fmt.Errorf("unknown variable: %s", args[0])
				}
				show(entry)
				return nil
			}
			for entry := range env.All() {
				show(entry)
			}
			return nil
		}
	},
}

// shellEscape backslash-escapes the characters special inside double
// quotes.
func shellEscape(value string) string {
	var escaped strings.Builder
	for _, r := range value {
		if strings.ContainsRune("$`\"\\", r) {
			escaped.WriteByte('\\')
		}
		escaped.WriteRune(r)
	}
	return escaped.String()
}

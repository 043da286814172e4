// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mux is the command-line client of the mux terminal multiplexer. It
// connects to a running mux-server, identifies the calling terminal,
// runs one command and exits with the code the server returns:
//
//	mux new-session -s work
//	mux list-sessions
//	mux wait-for -S build-done
//
// Output the server sends is copied to stdout and stderr unchanged.
// Errors that prevent the command from running at all (no server, a
// protocol version mismatch) are reported as "error: ..." and exit 1.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mux/lib/client"
	"github.com/bureau-foundation/mux/lib/config"
	"github.com/bureau-foundation/mux/lib/logging"
	"github.com/bureau-foundation/mux/lib/process"
	"github.com/bureau-foundation/mux/lib/version"
)

func main() {
	process.Exit(run())
}

func run() error {
	var (
		configPath  string
		socketPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("mux", pflag.ContinueOnError)
	// Flags after the command name belong to the command.
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "path to the mux.yaml config file (default: $MUX_CONFIG)")
	flagSet.StringVarP(&socketPath, "socket", "S", "", "connect to this socket instead of server.socket_path")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		version.Print("mux")
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Server.SocketPath = socketPath
	}
	logger, err := logging.New(os.Stderr, cfg.Logging)
	if err != nil {
		return err
	}

	options := client.FromEnvironment(flagSet.Args())
	options.Logger = logger
	code, err := client.Run(cfg.Server.SocketPath, options)
	if err != nil {
		return err
	}
	if code != 0 {
		return &process.ExitError{Code: code}
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: mux [flags] command [arguments]\n\n")
	fmt.Fprintf(os.Stderr, "Run a command on the mux server. \"mux list-commands\" lists them.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flagSet.PrintDefaults()
}

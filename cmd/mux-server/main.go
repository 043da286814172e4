// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

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
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("mux-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the mux.yaml config file (default: $MUX_CONFIG)")
	flagSet.StringVarP(&socketPath, "socket", "S", "", "listen on this socket instead of server.socket_path")
	flagSet.StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
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
		version.Print("mux-server")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", flagSet.Arg(0))
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Server.SocketPath = socketPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Logging)
	if err != nil {
		return err
	}
	if err := cfg.EnsureSocketDir(); err != nil {
		return err
	}

	server, err := NewServer(ServerOptions{
		Config:        cfg,
		Logger:        logger,
		Environ:       os.Environ(),
		HandleSignals: true,
	})
	if err != nil {
		return err
	}
	return server.Run()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: mux-server [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Run the mux server in the foreground.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flagSet.PrintDefaults()
}

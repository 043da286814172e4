// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured logger of the mux binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/mux/lib/config"
)

// New creates a logger writing to output. In auto format it uses
// slog.TextHandler when output is a terminal and slog.JSONHandler
// otherwise (a daemonized server, CI, integration tests).
func New(output io.Writer, settings config.LoggingConfig) (*slog.Logger, error) {
	level, err := settings.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	format := settings.Format
	if format == config.FormatAuto || format == "" {
		format = config.FormatJSON
		if file, ok := output.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			format = config.FormatText
		}
	}

	var handler slog.Handler
	switch format {
	case config.FormatText:
		handler = slog.NewTextHandler(output, options)
	case config.FormatJSON:
		handler = slog.NewJSONHandler(output, options)
	default:
		return nil, fmt.Errorf("unknown log format %q", settings.Format)
	}
	return slog.New(handler), nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// ExitError ends the process with Code without printing anything. The
// binary is expected to have written its own output already.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	writeError(os.Stderr, err)
	os.Exit(1)
}

// Exit ends main according to err: it returns for nil, exits with the
// code of an error carrying one, and otherwise calls [Fatal].
func Exit(err error) {
	if err == nil {
		return
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	Fatal(err)
}

// writeError prints err with an "error:" prefix styled for output.
func writeError(output io.Writer, err error) {
	prefix := lipgloss.NewRenderer(output).NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true).
		Render("error:")
	fmt.Fprintf(output, "%s %v\n", prefix, err)
}

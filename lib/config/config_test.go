// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mux.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.SocketPath != DefaultSocketPath {
		t.Errorf("expected socket_path=%s, got %s", DefaultSocketPath, cfg.Server.SocketPath)
	}
	if cfg.Server.MaxQueuedBytes != 1<<20 {
		t.Errorf("expected max_queued_bytes=1MiB, got %d", cfg.Server.MaxQueuedBytes)
	}
	if cfg.Logging.Format != FormatAuto {
		t.Errorf("expected format=auto, got %s", cfg.Logging.Format)
	}
}

func TestLoad_RequiresMuxConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when MUX_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "MUX_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithMuxConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  socket_path: /test/mux.sock
  exit_empty: true
logging:
  level: debug
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.SocketPath != "/test/mux.sock" {
		t.Errorf("expected socket_path=/test/mux.sock, got %s", cfg.Server.SocketPath)
	}
	if !cfg.Server.ExitEmpty {
		t.Error("expected exit_empty=true")
	}
	// Keys absent from the file keep their defaults.
	if cfg.Server.MaxQueuedBytes != 1<<20 {
		t.Errorf("expected default max_queued_bytes, got %d", cfg.Server.MaxQueuedBytes)
	}
	level, err := cfg.Logging.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, %v; want debug", level, err)
	}
}

func TestLoadFile_AccessAndEnvironment(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
access:
  allow: [1001, 1002]
  read_only: [1003]
environment:
  EDITOR: vi
  LANG: C.UTF-8
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if len(cfg.Access.Allow) != 2 || cfg.Access.Allow[1] != 1002 {
		t.Errorf("access.allow = %v", cfg.Access.Allow)
	}
	if len(cfg.Access.ReadOnly) != 1 || cfg.Access.ReadOnly[0] != 1003 {
		t.Errorf("access.read_only = %v", cfg.Access.ReadOnly)
	}
	if cfg.Environment["EDITOR"] != "vi" || cfg.Environment["LANG"] != "C.UTF-8" {
		t.Errorf("environment = %v", cfg.Environment)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "server: [unterminated")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := LoadFile(writeConfig(t, "server:\n  max_queued_bytes: -1\n")); err == nil {
		t.Error("expected validation error for negative max_queued_bytes")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/test")

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve(\"\") failed: %v", err)
	}
	want := "/run/user/test/mux-" + strconv.Itoa(os.Getuid()) + "/default"
	if cfg.Server.SocketPath != want {
		t.Errorf("socket_path = %s, want %s", cfg.Server.SocketPath, want)
	}

	flagPath := writeConfig(t, "server:\n  socket_path: /from/flag.sock\n")
	envPath := writeConfig(t, "server:\n  socket_path: /from/env.sock\n")
	t.Setenv(EnvironmentVariable, envPath)

	cfg, err = Resolve(flagPath)
	if err != nil {
		t.Fatalf("Resolve(flag) failed: %v", err)
	}
	if cfg.Server.SocketPath != "/from/flag.sock" {
		t.Errorf("flag should win over MUX_CONFIG, got %s", cfg.Server.SocketPath)
	}

	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve(env) failed: %v", err)
	}
	if cfg.Server.SocketPath != "/from/env.sock" {
		t.Errorf("expected MUX_CONFIG path, got %s", cfg.Server.SocketPath)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("MUX_TEST_VAR", "from-env")

	vars := map[string]string{"UID": "1000"}
	tests := []struct {
		input, want string
	}{
		{"/tmp/mux-${UID}/default", "/tmp/mux-1000/default"},
		{"${MUX_TEST_VAR}/x", "from-env/x"},
		{"${MUX_UNSET_VAR:-/fallback}/x", "/fallback/x"},
		{"${MUX_UNSET_VAR}/x", "/x"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"relative socket", func(c *Config) { c.Server.SocketPath = "mux.sock" }, "must be absolute"},
		{"long socket", func(c *Config) { c.Server.SocketPath = "/" + strings.Repeat("s", 120) }, "longer than a socket address"},
		{"zero queue", func(c *Config) { c.Server.MaxQueuedBytes = 0 }, "max_queued_bytes"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad variable", func(c *Config) { c.Environment = map[string]string{"A=B": "x"} }, "invalid variable name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Server.SocketPath = "/tmp/mux.sock"
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryError(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Server.SocketPath = ""
	cfg.Server.MaxQueuedBytes = -5
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"socket_path", "max_queued_bytes", "logging.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnsureSocketDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := Default()
	cfg.Server.SocketPath = filepath.Join(root, "private", "default")
	if err := cfg.EnsureSocketDir(); err != nil {
		t.Fatalf("EnsureSocketDir() failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "private"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("mode = %v, want 0700", info.Mode().Perm())
	}

	open := filepath.Join(root, "open")
	if err := os.Mkdir(open, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chmod(open, 0755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	cfg.Server.SocketPath = filepath.Join(open, "default")
	if err := cfg.EnsureSocketDir(); err == nil {
		t.Fatal("expected error for a directory others can read")
	}
}

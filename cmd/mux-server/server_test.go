// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mux/lib/client"
	"github.com/bureau-foundation/mux/lib/clock"
	"github.com/bureau-foundation/mux/lib/config"
	"github.com/bureau-foundation/mux/lib/testutil"
)

var epoch = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

// testServer is a running server on its own socket.
type testServer struct {
	t      *testing.T
	server *Server
	path   string
	clock  *clock.FakeClock
	done   chan error
	exited bool
}

// startServer starts a server, applying configure to its config first.
// The server is stopped when the test ends unless it exited already.
func startServer(t *testing.T, configure func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Server.SocketPath = filepath.Join(testutil.SocketDir(t), testutil.UniqueID("mux"))
	if configure != nil {
		configure(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	fake := clock.Fake(epoch)
	server, err := NewServer(ServerOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  fake,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := &testServer{t: t, server: server, path: cfg.Server.SocketPath, clock: fake, done: make(chan error, 1)}
	go func() { ts.done <- server.Run() }()
	t.Cleanup(func() {
		if ts.exited {
			return
		}
		server.Stop()
		if err := testutil.RequireReceive(t, ts.done, 5*time.Second, "waiting for server to stop"); err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return ts
}

// waitExit waits for the server to shut itself down.
func (ts *testServer) waitExit() {
	ts.t.Helper()
	if err := testutil.RequireReceive(ts.t, ts.done, 5*time.Second, "waiting for server exit"); err != nil {
		ts.t.Fatalf("Run: %v", err)
	}
	ts.exited = true
}

// result is the outcome of one client command.
type result struct {
	code   int
	stdout string
	stderr string
	err    error
}

func (ts *testServer) runWith(environ []string, argv ...string) result {
	var stdout, stderr bytes.Buffer
	code, err := client.Run(ts.path, client.Options{
		Argv:    argv,
		Stdout:  &stdout,
		Stderr:  &stderr,
		Term:    "xterm-256color",
		CWD:     "/",
		Environ: environ,
	})
	return result{code: code, stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// run runs argv and fails the test unless it exits 0.
func (ts *testServer) run(argv ...string) string {
	ts.t.Helper()
	r := ts.runWith(nil, argv...)
	if r.err != nil || r.code != 0 {
		ts.t.Fatalf("%v: code %d, err %v, stderr %q", argv, r.code, r.err, r.stderr)
	}
	return r.stdout
}

// fail runs argv and returns its standard error, failing the test
// unless it exits 1.
func (ts *testServer) fail(argv ...string) string {
	ts.t.Helper()
	r := ts.runWith(nil, argv...)
	if r.err != nil || r.code != 1 {
		ts.t.Fatalf("%v: code %d, err %v, want exit 1", argv, r.code, r.err)
	}
	return r.stderr
}

// waitForOutput runs argv until its output contains want.
func (ts *testServer) waitForOutput(want string, argv ...string) {
	ts.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(ts.run(argv...), want) {
			return
		}
	}
	ts.t.Fatalf("%v never printed %q", argv, want)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	if out := ts.run("new-session", "-P", "-s", "work"); out != "work:\n" {
		t.Fatalf("new-session -P printed %q", out)
	}
	ts.run("new", "-d")
	ts.clock.Advance(2 * time.Minute)

	want := "1: $1, created Mon Oct 19 12:00:00 2026 (2 minutes ago)\n" +
		"work: $0, created Mon Oct 19 12:00:00 2026 (2 minutes ago)\n"
	if out := ts.run("list-sessions"); out != want {
		t.Fatalf("list-sessions:\n%s\nwant:\n%s", out, want)
	}

	if stderr := ts.fail("new-session", "-s", "work"); stderr != "duplicate session: work\n" {
		t.Fatalf("duplicate new-session stderr = %q", stderr)
	}
	if stderr := ts.fail("new-session", "-s", "bad.name"); !strings.Contains(stderr, "invalid session name") {
		t.Fatalf("invalid name stderr = %q", stderr)
	}

	ts.run("rename-session", "-t", "wo", "play")
	if out := ts.run("ls"); !strings.Contains(out, "play: $0") || strings.Contains(out, "work") {
		t.Fatalf("after rename, list-sessions = %q", out)
	}
	if stderr := ts.fail("rename-session", "renamed"); stderr != "no current session\n" {
		t.Fatalf("untargeted rename with two sessions: stderr = %q", stderr)
	}

	ts.run("kill-session", "-t", "$1")
	if out := ts.run("ls"); !strings.HasPrefix(out, "play: $0") || strings.Count(out, "\n") != 1 {
		t.Fatalf("after kill-session, list-sessions = %q", out)
	}
	ts.run("kill-session")
	if out := ts.run("list-sessions"); out != "" {
		t.Fatalf("after killing every session, list-sessions = %q", out)
	}
}

func TestKillSessionAllOthers(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	for _, name := range []string{"a", "b", "c"} {
		ts.run("new-session", "-s", name)
	}
	ts.run("kill-session", "-a", "-t", "b")
	if out := ts.run("list-sessions"); !strings.HasPrefix(out, "b: ") || strings.Count(out, "\n") != 1 {
		t.Fatalf("list-sessions = %q, want only b", out)
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"lst-sessions"}, "unknown command: lst-sessions (did you mean \"list-sessions\"?)\n"},
		{[]string{"list"}, "ambiguous command: list, could be: list-sessions, list-commands\n"},
		{[]string{"rename-session"}, "usage: rename-session [-t target-session] new-name\n"},
		{[]string{"kill-session", "-t", "nope"}, "can't find session: nope\n"},
		{[]string{"kill-session"}, "no sessions\n"},
		{[]string{"wait-for", "-U", "nothing"}, "channel not locked: nothing\n"},
		{[]string{"wait-for", "-S", "-U", "x"}, "only one of -L, -S and -U may be given\n"},
		{[]string{"set-environment", "-g", "NAME"}, "no value specified\n"},
		{[]string{"set-environment", "-g", "A=B", "c"}, "variable name contains =: A=B\n"},
		{[]string{"show-environment", "-g", "MISSING"}, "unknown variable: MISSING\n"},
	}
	for _, test := range tests {
		if stderr := ts.fail(test.argv...); stderr != test.want {
			t.Errorf("%v: stderr = %q, want %q", test.argv, stderr, test.want)
		}
	}

	if stderr := ts.fail("new-session", "--bogus"); !strings.Contains(stderr, "unknown flag: --bogus") ||
		!strings.Contains(stderr, "usage: new-session") {
		t.Errorf("bad flag stderr = %q", stderr)
	}
}

func TestEnvironment(t *testing.T) {
	t.Parallel()

	ts := startServer(t, func(cfg *config.Config) {
		cfg.Environment = map[string]string{"EDITOR": "vi"}
	})

	r := ts.runWith([]string{"DISPLAY=:1", "SSH_AUTH_SOCK=/run/agent", "UNRELATED=x"},
		"new-session", "-s", "env", "-e", "FOO=bar")
	if r.err != nil || r.code != 0 {
		t.Fatalf("new-session: %d %v %q", r.code, r.err, r.stderr)
	}
	want := strings.Join([]string{
		"DISPLAY=:1",
		"FOO=bar",
		"-KRB5CCNAME",
		"-SSH_AGENT_PID",
		"-SSH_ASKPASS",
		"SSH_AUTH_SOCK=/run/agent",
		"-SSH_CONNECTION",
		"-WINDOWID",
		"-XAUTHORITY",
	}, "\n") + "\n"
	if out := ts.run("show-environment", "-t", "env"); out != want {
		t.Fatalf("session environment:\n%s\nwant:\n%s", out, want)
	}

	if out := ts.run("show-environment", "-g", "EDITOR"); out != "EDITOR=vi\n" {
		t.Fatalf("configured global variable = %q", out)
	}
	ts.run("set-environment", "-g", "GREETING", `say "$hi"`)
	if out := ts.run("showenv", "-g", "-s", "GREETING"); out != `GREETING="say \"\$hi\""; export GREETING;`+"\n" {
		t.Fatalf("shell format = %q", out)
	}

	ts.run("setenv", "-g", "-h", "TOKEN", "secret")
	if out := ts.run("show-environment", "-g"); strings.Contains(out, "TOKEN") {
		t.Fatalf("hidden variable listed: %q", out)
	}
	if out := ts.run("show-environment", "-g", "-h"); out != "TOKEN=secret\n" {
		t.Fatalf("show-environment -h = %q", out)
	}

	ts.run("set-environment", "-r", "FOO")
	if out := ts.run("show-environment", "FOO"); out != "-FOO\n" {
		t.Fatalf("cleared variable = %q", out)
	}
	if out := ts.run("show-environment", "-s", "FOO"); out != "unset FOO;\n" {
		t.Fatalf("cleared variable in shell format = %q", out)
	}
	ts.run("set-environment", "-u", "FOO")
	if stderr := ts.fail("show-environment", "FOO"); stderr != "unknown variable: FOO\n" {
		t.Fatalf("unset variable: stderr = %q", stderr)
	}
}

func TestWaitForSignalIsRemembered(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	ts.run("wait-for", "-S", "ready")
	if out := ts.run("server-info"); !strings.Contains(out, "wait channels: 1\n") {
		t.Fatalf("pending signal not kept: %q", out)
	}
	ts.run("wait-for", "ready")
	if out := ts.run("server-info"); !strings.Contains(out, "wait channels: 0\n") {
		t.Fatalf("consumed channel not removed: %q", out)
	}
}

func TestWaitForBlocksUntilSignaled(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	waited := make(chan result, 1)
	go func() { waited <- ts.runWith(nil, "wait-for", "build") }()

	ts.waitForOutput("  build: 1 waiters, 0 lockers\n", "server-info")
	ts.run("wait-for", "-S", "build")

	r := testutil.RequireReceive(t, waited, 5*time.Second, "waiting for wait-for to return")
	if r.err != nil || r.code != 0 {
		t.Fatalf("wait-for: code %d, err %v, stderr %q", r.code, r.err, r.stderr)
	}
}

func TestWaitForSignalWakesEveryWaiter(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	channel := testutil.UniqueID("deploy")
	const waiters = 4

	var group sync.WaitGroup
	failures := make(chan string, waiters)
	for range waiters {
		group.Go(func() {
			if r := ts.runWith(nil, "wait-for", channel); r.err != nil || r.code != 0 {
				failures <- fmt.Sprintf("waiter: code %d, err %v, stderr %q", r.code, r.err, r.stderr)
			}
		})
	}
	released := make(chan struct{})
	go func() {
		group.Wait()
		close(released)
	}()

	ts.waitForOutput(fmt.Sprintf("  %s: %d waiters, 0 lockers\n", channel, waiters), "server-info")
	ts.run("wait-for", "-S", channel)
	testutil.RequireClosed(t, released, 5*time.Second, "waiting for %d waiters on %s", waiters, channel)

	close(failures)
	for failure := range failures {
		t.Error(failure)
	}
	if out := ts.run("server-info"); !strings.Contains(out, "wait channels: 0\n") {
		t.Fatalf("signaled channel not removed: %q", out)
	}
}

func TestWaitForLockHandsOff(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	ts.run("wait-for", "-L", "mutex")

	locked := make(chan result, 1)
	go func() { locked <- ts.runWith(nil, "wait-for", "-L", "mutex") }()
	ts.waitForOutput("  mutex: locked, 0 waiters, 1 lockers\n", "server-info")

	ts.run("wait-for", "-U", "mutex")
	r := testutil.RequireReceive(t, locked, 5*time.Second, "waiting for the lock to be handed over")
	if r.err != nil || r.code != 0 {
		t.Fatalf("second locker: code %d, err %v, stderr %q", r.code, r.err, r.stderr)
	}

	// The second locker holds it now.
	ts.run("wait-for", "-U", "mutex")
	if stderr := ts.fail("wait-for", "-U", "mutex"); stderr != "channel not locked: mutex\n" {
		t.Fatalf("third unlock: stderr = %q", stderr)
	}
}

func TestKillServerReleasesWaiters(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	waited := make(chan result, 1)
	go func() { waited <- ts.runWith(nil, "wait-for", "never") }()
	ts.waitForOutput("clients: 2,", "server-info")

	ts.run("kill-server")
	ts.waitExit()

	r := testutil.RequireReceive(t, waited, 5*time.Second, "waiting for released waiter")
	if r.err != nil || r.code != 0 {
		t.Fatalf("released waiter: code %d, err %v", r.code, r.err)
	}
	if _, err := os.Lstat(ts.path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket still present after kill-server: %v", err)
	}
	if r := ts.runWith(nil, "list-sessions"); !errors.Is(r.err, client.ErrNoServer) {
		t.Fatalf("command after kill-server: err = %v, want ErrNoServer", r.err)
	}
}

func TestExitEmpty(t *testing.T) {
	t.Parallel()

	ts := startServer(t, func(cfg *config.Config) { cfg.Server.ExitEmpty = true })
	ts.run("new-session", "-s", "only")
	ts.run("kill-session", "-t", "only")
	ts.waitExit()
	if _, err := os.Lstat(ts.path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket still present after the last session was killed: %v", err)
	}
}

func TestReadOnlyClientCannotModify(t *testing.T) {
	t.Parallel()

	ts := startServer(t, func(cfg *config.Config) {
		cfg.Access.ReadOnly = []uint32{uint32(os.Getuid())}
	})
	if stderr := ts.fail("new-session", "-s", "x"); stderr != "client is read-only\n" {
		t.Fatalf("read-only new-session: stderr = %q", stderr)
	}
	if out := ts.run("list-sessions"); out != "" {
		t.Fatalf("list-sessions = %q", out)
	}
}

func TestServerAccess(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	out := ts.run("server-access", "-l")
	if !strings.Contains(out, "(W)") {
		t.Fatalf("server-access -l = %q", out)
	}
	if stderr := ts.fail("server-access", "-a", "0"); stderr != "0 owns the server, can't change access\n" {
		t.Fatalf("changing root: stderr = %q", stderr)
	}

	const other = "4000000001"
	ts.run("server-access", "-a", "-r", other)
	if stderr := ts.fail("server-access", "-a", other); stderr != "user "+other+" is already added\n" {
		t.Fatalf("adding twice: stderr = %q", stderr)
	}
	if out := ts.run("server-access", "-l"); !strings.Contains(out, other+" (R)") {
		t.Fatalf("read-only user not listed: %q", out)
	}
	ts.run("server-access", "-w", other)
	if out := ts.run("server-access", "-l"); !strings.Contains(out, other+" (W)") {
		t.Fatalf("write access not restored: %q", out)
	}
	ts.run("server-access", "-d", other)
	if stderr := ts.fail("server-access", "-d", other); stderr != "user "+other+" not found\n" {
		t.Fatalf("deleting twice: stderr = %q", stderr)
	}
}

func TestServerInfo(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	ts.run("new-session")
	ts.clock.Advance(time.Hour)
	out := ts.run("info")
	for _, want := range []string{
		"protocol 8\n",
		"(1 hour ago)\n",
		"socket " + ts.path + "\n",
		"clients: 1,",
		"limit 1.0 MB per client",
		"term \"xterm-256color\"",
		"sessions: 1\n",
		"access list: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("server-info missing %q:\n%s", want, out)
		}
	}
}

func TestListCommands(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	out := ts.run("list-commands")
	if strings.Count(out, "\n") != len(commandTable) {
		t.Fatalf("list-commands printed %d lines for %d commands:\n%s", strings.Count(out, "\n"), len(commandTable), out)
	}
	if out := ts.run("lscm", "rename"); out != "rename-session (rename) [-t target-session] new-name\n" {
		t.Fatalf("list-commands rename = %q", out)
	}
}

func TestRefusesLiveSocket(t *testing.T) {
	t.Parallel()

	ts := startServer(t, nil)
	cfg := config.Default()
	cfg.Server.SocketPath = ts.path
	_, err := NewServer(ServerOptions{Config: cfg, Logger: slog.New(slog.DiscardHandler)})
	if err == nil || !strings.Contains(err.Error(), "server already running") {
		t.Fatalf("second server on a live socket: %v", err)
	}
	// The running server still answers.
	ts.run("list-sessions")
}

func TestReplacesStaleSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(testutil.SocketDir(t), "stale")
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	_ = unix.Close(fd)

	ts := startServer(t, func(cfg *config.Config) { cfg.Server.SocketPath = path })
	ts.run("list-sessions")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Fatalf("socket mode %v allows group or other access", perm)
	}
}

func TestRefusesNonSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(testutil.SocketDir(t), "file")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := config.Default()
	cfg.Server.SocketPath = path
	_, err := NewServer(ServerOptions{Config: cfg, Logger: slog.New(slog.DiscardHandler)})
	if err == nil || !strings.Contains(err.Error(), "is not a socket") {
		t.Fatalf("NewServer over a regular file: %v", err)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package waitfor

import (
	"errors"
	"slices"
	"testing"
)

// recorder collects resume order.
type recorder struct {
	order []string
}

func (r *recorder) resume(name string) func() {
	return func() { r.order = append(r.order, name) }
}

func TestSignalWakesWaitersInOrder(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var r recorder
	for _, name := range []string{"first", "second", "third"} {
		if waiter := registry.Wait("build", r.resume(name)); waiter == nil {
			t.Fatalf("Wait(%s) returned immediately with no pending signal", name)
		}
	}
	if channel := registry.Find("build"); channel == nil || channel.Waiters() != 3 {
		t.Fatalf("channel = %+v, want 3 waiters", channel)
	}

	if woken := registry.Signal("build"); woken != 3 {
		t.Fatalf("Signal woke %d, want 3", woken)
	}
	if !slices.Equal(r.order, []string{"first", "second", "third"}) {
		t.Fatalf("resume order = %v", r.order)
	}
	if registry.Len() != 0 {
		t.Fatalf("Len() = %d after waking every waiter, want 0", registry.Len())
	}
}

func TestSignalWithoutWaitersIsRemembered(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if woken := registry.Signal("done"); woken != 0 {
		t.Fatalf("Signal woke %d with no waiters", woken)
	}
	if channel := registry.Find("done"); channel == nil || !channel.Woken() {
		t.Fatal("pending signal not remembered")
	}

	called := false
	if waiter := registry.Wait("done", func() { called = true }); waiter != nil {
		t.Fatal("Wait blocked despite a pending signal")
	}
	if called {
		t.Fatal("resume called for an immediate wait")
	}
	if registry.Len() != 0 {
		t.Fatal("channel kept after its signal was consumed")
	}

	// The signal was consumed; the next wait blocks.
	if waiter := registry.Wait("done", func() {}); waiter == nil {
		t.Fatal("second Wait returned immediately")
	}
}

func TestLockQueue(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var r recorder
	if locker := registry.Lock("mutex", r.resume("a")); locker != nil {
		t.Fatal("Lock of a free channel queued")
	}
	b := registry.Lock("mutex", r.resume("b"))
	c := registry.Lock("mutex", r.resume("c"))
	if b == nil || c == nil {
		t.Fatal("Lock of a held channel did not queue")
	}

	if err := registry.Unlock("mutex"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !slices.Equal(r.order, []string{"b"}) {
		t.Fatalf("after first unlock resumed %v, want [b]", r.order)
	}
	if channel := registry.Find("mutex"); channel == nil || !channel.Locked() || channel.Lockers() != 1 {
		t.Fatalf("lock not handed over: %+v", channel)
	}

	if err := registry.Unlock("mutex"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := registry.Unlock("mutex"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !slices.Equal(r.order, []string{"b", "c"}) {
		t.Fatalf("resume order = %v, want [b c]", r.order)
	}
	if registry.Len() != 0 {
		t.Fatal("unlocked channel kept")
	}
	if err := registry.Unlock("mutex"); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("Unlock of free channel = %v, want ErrNotLocked", err)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var r recorder
	gone := registry.Wait("x", r.resume("gone"))
	stays := registry.Wait("x", r.resume("stays"))
	registry.Cancel(gone)
	registry.Cancel(gone)

	registry.Signal("x")
	if !slices.Equal(r.order, []string{"stays"}) {
		t.Fatalf("resumed %v, want [stays]", r.order)
	}
	registry.Cancel(stays)

	registry.Lock("y", r.resume("holder"))
	queued := registry.Lock("y", r.resume("queued"))
	registry.Cancel(queued)
	if err := registry.Unlock("y"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if slices.Contains(r.order, "queued") {
		t.Fatal("canceled locker was resumed")
	}

	// A lone canceled waiter leaves nothing behind.
	registry.Cancel(registry.Wait("z", r.resume("z")))
	if registry.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", registry.Len())
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var r recorder
	registry.Wait("a", r.resume("wait-a"))
	registry.Lock("b", r.resume("hold-b"))
	registry.Lock("b", r.resume("lock-b"))
	registry.Signal("c")

	registry.Flush()
	if !slices.Equal(r.order, []string{"wait-a", "lock-b"}) {
		t.Fatalf("resumed %v, want [wait-a lock-b]", r.order)
	}
	if registry.Len() != 0 {
		t.Fatalf("Len() = %d after Flush, want 0", registry.Len())
	}
}

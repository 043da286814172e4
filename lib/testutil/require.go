// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"testing"
	"time"
)

// RequireReceive returns the next value sent on ch, failing the test if
// none arrives within timeout or ch is closed first.
//
//	err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for loop")
func RequireReceive[T any](t testing.TB, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed without a value", describe(what))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received after %v", describe(what), timeout)
	}
	panic("unreachable")
}

// RequireClosed fails the test unless ch is closed within timeout. A
// value sent on ch also satisfies it.
//
//	testutil.RequireClosed(t, released, 5*time.Second, "waiting for %d waiters", n)
func RequireClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: still open after %v", describe(what), timeout)
	}
}

// describe renders the optional trailing arguments of the Require
// helpers: nothing, a plain string, or a format string and its args.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "timeout"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}

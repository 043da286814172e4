// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable wall clock for testability.
//
// The mux server reads the time only to stamp sessions and report
// uptime; it never sleeps or sets timers on the event loop. Code that
// records timestamps holds a [Clock] instead of calling time.Now:
//
//	registry := session.NewRegistry(clock.Real())
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	registry := session.NewRegistry(c)
//	c.Advance(90 * time.Second)
package clock

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package environ holds a name-ordered set of environment variables,
// as kept globally by the server and per session.
//
// An entry may be cleared rather than removed: it keeps its name but
// has no value, which marks the variable as explicitly unset in this
// environment even if an outer environment defines it. Hidden entries
// are stored and listed on request but never exported by
// [Environ.Environ].
package environ

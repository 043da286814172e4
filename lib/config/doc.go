// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the mux server
// and client.
//
// Configuration comes from at most one file, named by a --config flag
// or by the MUX_CONFIG environment variable (via [Load]). There is no
// search path: with neither set, [Resolve] returns [Default]. Values in
// the file are merged over the defaults, so a file only needs the keys
// it changes.
//
// Variable expansion is performed on the socket path after loading:
// ${UID}, ${XDG_RUNTIME_DIR} and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// This package depends on no other mux packages.
package config

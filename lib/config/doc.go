// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the CASC
// client and its command-line tool.
//
// Configuration is loaded from a single file specified by either the
// CASC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path and no ~/.config
// discovery. Commands that run without a config file start from
// [Default] and apply flags on top.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CASC_ROOT}, and ${VAR:-default} patterns are expanded.
// The remote key list URL additionally honours TACT_KEYS_URL when the
// file leaves it empty.
//
// Key exports:
//
//   - [Config] -- master struct with Storage, Keys, CDN, Cache, Debug, Log
//   - [Default] -- returns a Config with usable defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- collects every problem into one joined error
//
// This package depends on no other packages in this module.
package config

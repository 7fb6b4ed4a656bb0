// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the casc binary.
//
// Values are injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/casc/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When they are not, the VCS stamp the Go toolchain embeds is used.
package version

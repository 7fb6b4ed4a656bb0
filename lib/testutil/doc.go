// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for CASC packages.
//
// [WriteFile] and [WriteTree] lay out fixture installations under a
// test's temporary directory, creating parent directories as needed.
// [Hex] decodes hex literals so fixtures can spell out keys the way
// key lists and configs do.
//
// [RequireReceive] and [RequireDrained] bound waits on result channels
// such as the one storage.OpenAsync returns.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on other packages in this module.
package testutil

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package listfile maps file data ids to path names using a
// community listfile: one "id;name" (or "id,name") entry per line.
//
// Names are normalised on the way in and on lookup: surrounding space
// trimmed, backslashes turned into slashes, and ASCII letters
// lower-cased. The first entry for an id or a name wins.
package listfile

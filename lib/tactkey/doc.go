// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tactkey owns the decryption keys used by encrypted BLTE
// chunks: a map from a 64-bit key name to a 128-bit Salsa20 key.
//
// A [Service] starts with a fixed builtin table and grows from three
// sources:
//
//   - key files ([Service.LoadFile]), in either "NAME;KEY" form or the
//     whitespace-separated form of the community WoW.txt list, with an
//     optional 0x prefix on the name and # comments
//   - a remote key list, fetched at most once per process and cached
//     to disk ([Service.FetchRemote])
//   - the TactKey and TactKeyLookup tables stored inside the game data
//     itself ([Service.SeedFromLookupTables])
//
// The service is the only mutable state shared by a storage session.
// Lookups take a read lock. [Service.Refresh] is the recovery path for
// a missing key: it runs at most once per key name and holds a refresh
// lock throughout, so a burst of assets encrypted with the same
// unknown key costs one scan. Remote downloads are shared through a
// singleflight group.
//
// The in-data tables are schema-less WDC blobs whose internal widths
// shift between builds. Rather than trusting offsets, the extractor
// scans for a plausible record header ([FindPlausibleHeader]) and a
// run of well-formed id values, then scores candidate layouts against
// known name/key pairs. The heuristic is best-effort; a failure to find
// a plausible layout is reported as an error and the session continues
// with the keys it already has.
package tactkey

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archiveindex maps encoding keys to payload locations inside
// numbered archive files.
//
// Two index families share one output type, [Entry]:
//
//   - [LocalIndex] is built from the .idx files in Data/data. There are
//     sixteen buckets (00 through 0F) and each bucket may have several
//     generations on disk; only the lexicographically last file per
//     bucket is current. Entries carry only the first nine bytes of the
//     encoding key, so lookups truncate.
//   - [CDNIndex] is built from the per-archive .index files the CDN
//     serves, cached locally under Data/indices. Entries carry the full
//     key and the entry's archive is the archive's position in the CDN
//     config's archive list unless the index records its own.
//
// In both families the first entry seen for a key wins. Parsing the
// same bytes twice leaves an index unchanged.
//
// [LoadLocal] parses the bucket files concurrently and merges them in
// bucket order, so the result does not depend on scheduling.
// [LoadCDN] does the same for CDN indices, falling back to a [Fetcher]
// for indices missing on disk. A CDN index that cannot be read or
// parsed is logged and skipped; the remaining archives still load.
package archiveindex

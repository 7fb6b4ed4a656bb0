// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetcache keeps decoded assets on local disk, keyed by
// encoding key, so repeated reads of CDN-only or encrypted assets skip
// the network and the BLTE decoder.
//
// Each entry is one file under <dir>/<xx>/<ekey>, where xx is the
// first byte of the key in hex. The file starts with a CBOR header
// (format version, compression tag, decoded size, BLAKE3 digest of the
// decoded bytes) followed by the body, compressed with zstd or LZ4 or
// stored as-is. The compression is chosen per entry by probing the data
// unless the cache is configured with a fixed algorithm.
//
// Entries are written to a temporary file and renamed into place, so a
// reader never sees a partial entry. An entry that fails to parse,
// decompress, or verify is removed and reported as a miss: the cache
// is disposable and the caller refetches.
package assetcache

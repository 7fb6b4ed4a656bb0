// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hashkey provides the 16-byte identifiers used throughout CASC
// storage and the hashing helpers that produce them.
//
// Two key spaces exist. A [ContentKey] is the MD5 of an asset's decoded
// bytes and identifies what the asset is. An [EncodingKey] is the MD5
// of one encoded (BLTE) representation of that content and identifies
// where the bytes live. Many encoding keys may map to one content key.
// Both are plain arrays so they compare with == and work as map keys.
//
// Local archive indices store only the first nine bytes of an encoding
// key; [EncodingKey.Truncate] produces that [TruncatedKey] form.
//
// The API surface:
//
//   - [ParseContentKey], [ParseEncodingKey] -- decode 32 hex characters
//   - [ContentKey.String], [EncodingKey.String] -- lower-case hex
//   - [Sum] and [HashFile] -- MD5 of a buffer or a streamed file
//   - [FileDataHash] -- the per-id hash root manifests fall back to when
//     a record group carries no name hashes
//
// This package has no dependencies on other packages in this module
// except lib/cascerr for error kinds.
package hashkey

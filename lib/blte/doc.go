// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blte decodes BLTE containers, the chunked envelope every
// asset in CASC storage is wrapped in.
//
// A container starts with the magic "BLTE" and a big-endian header
// size. A header size of zero (or all ones) means the rest of the
// payload is a single implicit chunk. Otherwise a chunk table follows:
// a 0x0F flag byte, a 24-bit chunk count, and per chunk the encoded
// size, decoded size, and MD5 of the encoded bytes. Chunks are then
// laid out back to back.
//
// Every chunk begins with a type byte ([ChunkType]):
//
//   - 'N' -- stored bytes
//   - 'Z' -- a zlib stream (two-byte header, raw deflate body)
//   - 'E' -- an encrypted wrapper around another chunk, keyed by a
//     64-bit key name and decrypted with Salsa20
//   - 'F' -- a nested container; never produced by current data and
//     rejected
//
// Encrypted chunks whose key is not available are zero-filled to their
// declared size unless [Decoder].Strict is set, in which case decoding
// fails with a [cascerr.MissingKeyError] naming the key. Callers that
// can fetch more keys decode strictly first, refresh, and only then
// fall back to zero-fill.
//
// Nesting is bounded: an encrypted chunk may wrap another chunk, but
// at most [MaxNesting] levels deep.
//
// The package also parses the 30-byte header that precedes each
// container inside a local data.NNN archive ([ParseLocalHeader]), and
// provides builders ([Build], [BuildSingle] and the chunk constructors)
// that produce valid containers for tests in this and other packages.
package blte

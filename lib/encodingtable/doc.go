// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package encodingtable parses the encoding table, which maps each
// content key to the encoding keys of its stored representations.
//
// The table is a BLTE-wrapped file located through the build config's
// encoding key. After the 22-byte header come the encoding spec
// strings (NUL separated), then two paged sections. Content-key pages
// hold records of (key count, 40-bit size, content key, encoding
// keys). Encoding-key pages hold fixed 25-byte records pairing each
// encoding key with an index into the spec strings. Every page is
// preceded in the file by a table of (first key, page MD5) pairs, which
// is skipped.
//
// Pages are parsed inside their declared bounds. A record that would
// straddle a page boundary ends the page, and a zero key count (or an
// all-ones spec index) marks the padding after the last record.
//
// Spec strings of encrypted payloads name their TACT keys as
// "e:{<16 hex>,...}". [Table.EncryptionKeys] exposes those names per
// encoding key so the storage layer can report which keys a build
// needs.
package encodingtable

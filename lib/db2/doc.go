// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package db2 reads client database tables (DB2 files).
//
// [Parse] validates the block layout of any supported revision without
// decoding rows. Two families exist:
//
//   - legacy (WDB5, WDB6, WDC1): a 20-byte header followed by one
//     contiguous run of records and a string block
//   - sectioned (WDC2, WDC3, WDC5): an extended header, then one
//     section header per section, each locating its own records and
//     string table
//
// Every byte range derived from a header is checked against the buffer
// before use. A single out-of-range section fails the whole table.
//
// [ParseWDC5] decodes a WDC5 table for row access. Fields are packed at
// arbitrary bit offsets inside a record; [Column] describes where each
// one lives and which [CompressionKind] applies. Pallet and common
// columns store their values in shared blocks ahead of the section
// data, so a record holds only an index (pallet) or nothing at all
// (common, keyed by record id).
//
// Sections whose TACT key hash is non-zero are encrypted. They are kept
// in [Table.Sections] but contribute no rows.
//
// [Decode] joins a table with a DBD schema from lib/dbd to produce
// named records.
package db2

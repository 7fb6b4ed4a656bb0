// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage opens a local installation and resolves asset ids to
// decoded bytes.
//
// [Open] walks the manifest chain once: .build.info and the build and
// CDN configs (lib/buildconfig), the local .idx files
// (lib/archiveindex), the encoding table and the root manifest (each
// read out of the archives and decoded through lib/blte). The result
// is read-only and safe for concurrent use; the key service it holds
// is the only state that changes afterwards.
//
// A fetch goes id → content key (root manifest) → encoding keys
// (encoding table) → payload → decoded bytes. Payloads come from the
// first source that has them:
//
//  1. the local archives, located by the .idx files;
//  2. the CDN archive indices, loaded lazily on the first local miss,
//     and a ranged request for the archive bytes;
//  3. a direct request for the loose file named by the encoding key.
//
// Sources 2 and 3 exist only when a CDN is configured. A failed network
// request is treated as "not there" and the next source is tried.
//
// Decoding is strict first. A chunk whose key is missing triggers one
// key refresh (lib/tactkey rescans its files, and fetches the remote
// list at most once per process) and one retry. If the key is still
// missing the payload is decoded again with zero-filled chunks, unless
// the storage was opened with StrictKeys.
package storage

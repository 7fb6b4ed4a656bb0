// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rootmanifest parses the root manifest, which maps numeric
// asset ids (file data ids) to content keys.
//
// Three layouts are accepted:
//
//   - legacy: no signature; each group header is (count, content
//     flags, locale flags) and each record interleaves a content key
//     with its 64-bit name hash
//   - MFST version 1: a 24-byte header, the same group header, then all
//     content keys followed by all name hashes (omitted when the group
//     sets [ContentNoNameHash])
//   - MFST version 2: as version 1 but the group header is (count,
//     locale flags, content flags split across three fields)
//
// An MFST header whose size field is not 24 is read as a 12-byte
// header with version 1 group layout.
//
// Within a group, ids are delta coded: each stored value is the gap
// from the previous id plus one. When an id appears in more than one
// accepted group the first one wins, so [Options.LocaleMask] decides
// which language variant of an asset a session sees.
//
// Two group shapes are rejected outright rather than skipped: a zero
// locale mask, and content flags with no bit in [ContentAllowedMask].
// Either means the manifest is not being read with the right layout.
package rootmanifest

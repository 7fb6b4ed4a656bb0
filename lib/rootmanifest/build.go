// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rootmanifest

import (
	"encoding/binary"

	"github.com/bureau-foundation/casc/lib/hashkey"
)

// Group is one record group for Build. IDs must be ascending. Hashes
// may be nil, in which case zero hashes are written unless Content
// carries ContentNoNameHash.
type Group struct {
	Locale  Locale
	Content ContentFlags
	IDs     []uint32
	Keys    []hashkey.ContentKey
	Hashes  []uint64
}

// Build encodes a manifest. version 0 produces the legacy layout;
// 1 and 2 produce MFST with a 24-byte header.
func Build(version int, groups ...Group) []byte {
	var out []byte
	if version > 0 {
		out = binary.LittleEndian.AppendUint32(out, Magic)
		out = binary.LittleEndian.AppendUint32(out, mfstHeaderSize)
		out = binary.LittleEndian.AppendUint32(out, uint32(version))
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = append(out, make([]byte, mfstHeaderSize-len(out))...)
	}

	for _, group := range groups {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(group.IDs)))
		if version == 2 {
			out = binary.LittleEndian.AppendUint32(out, uint32(group.Locale))
			content := uint32(group.Content)
			out = binary.LittleEndian.AppendUint32(out, content&^(0xFF<<17))
			out = binary.LittleEndian.AppendUint32(out, 0)
			out = append(out, byte(content>>17))
		} else {
			out = binary.LittleEndian.AppendUint32(out, uint32(group.Content))
			out = binary.LittleEndian.AppendUint32(out, uint32(group.Locale))
		}

		previous := int64(-1)
		for _, id := range group.IDs {
			out = binary.LittleEndian.AppendUint32(out, uint32(int64(id)-previous-1))
			previous = int64(id)
		}

		hash := func(i int) uint64 {
			if group.Hashes == nil {
				return 0
			}
			return group.Hashes[i]
		}
		if version == 0 {
			for i, key := range group.Keys {
				out = append(out, key[:]...)
				out = binary.LittleEndian.AppendUint64(out, hash(i))
			}
			continue
		}
		for _, key := range group.Keys {
			out = append(out, key[:]...)
		}
		if group.Content&ContentNoNameHash == 0 {
			for i := range group.Keys {
				out = binary.LittleEndian.AppendUint64(out, hash(i))
			}
		}
	}
	return out
}

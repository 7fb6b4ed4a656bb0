// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// LocalHeaderSize is the length of the header that precedes each
// container in a local data.NNN archive.
const LocalHeaderSize = 30

// LocalHeader is the archive-resident prefix of a container: the
// encoding key (stored byte-reversed), the total size including this
// header, and ten bytes of flags and checksums that are not checked.
type LocalHeader struct {
	Key  hashkey.EncodingKey
	Size uint32
}

// ParseLocalHeader parses the first LocalHeaderSize bytes of b.
func ParseLocalHeader(b []byte) (LocalHeader, error) {
	var header LocalHeader
	if len(b) < LocalHeaderSize {
		return header, fmt.Errorf("archive header is %d bytes, want %d: %w",
			len(b), LocalHeaderSize, cascerr.ErrInvalidBLTE)
	}
	for i := 0; i < hashkey.Size; i++ {
		header.Key[i] = b[hashkey.Size-1-i]
	}
	header.Size = binary.LittleEndian.Uint32(b[16:20])
	return header, nil
}

// Check verifies the header against the index entry that pointed at
// it: the key must start with the entry's nine key bytes and the sizes
// must agree. It returns the length of the container that follows.
func (h LocalHeader) Check(key hashkey.TruncatedKey, size uint32) (int, error) {
	if h.Key.Truncate() != key {
		return 0, fmt.Errorf("archive header key %s does not match index key %s: %w",
			h.Key, key, cascerr.ErrInvalidBLTE)
	}
	if h.Size != size {
		return 0, fmt.Errorf("archive header size %d does not match index size %d: %w",
			h.Size, size, cascerr.ErrInvalidBLTE)
	}
	if h.Size < LocalHeaderSize {
		return 0, fmt.Errorf("archive entry size %d smaller than its header: %w",
			h.Size, cascerr.ErrInvalidBLTE)
	}
	return int(h.Size) - LocalHeaderSize, nil
}

// AppendLocalHeader appends the archive header for a container of
// payloadSize bytes stored under key.
func AppendLocalHeader(b []byte, key hashkey.EncodingKey, payloadSize int) []byte {
	var header [LocalHeaderSize]byte
	for i := 0; i < hashkey.Size; i++ {
		header[hashkey.Size-1-i] = key[i]
	}
	binary.LittleEndian.PutUint32(header[16:20], uint32(payloadSize+LocalHeaderSize))
	return append(b, header[:]...)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// EncryptionKeyNames returns the key names referenced by an encoding
// specification string. Encrypted layers are written "e:{NAME,IV,...}"
// where NAME is sixteen hex digits of the little-endian key name.
func EncryptionKeyNames(espec string) []uint64 {
	var names []uint64
	rest := espec
	for {
		start := strings.Index(rest, "e:{")
		if start < 0 {
			return names
		}
		rest = rest[start+3:]
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			return names
		}
		candidate := rest[:comma]
		rest = rest[comma:]
		if len(candidate) != 16 {
			continue
		}
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		names = append(names, binary.LittleEndian.Uint64(decoded))
	}
}

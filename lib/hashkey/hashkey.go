// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashkey

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// Size is the byte length of content and encoding keys.
const Size = 16

// TruncatedSize is the number of leading encoding-key bytes local
// archive indices keep.
const TruncatedSize = 9

// ContentKey identifies asset content: the MD5 of the decoded bytes.
type ContentKey [Size]byte

// EncodingKey identifies one encoded representation of some content.
type EncodingKey [Size]byte

// TruncatedKey is the leading nine bytes of an EncodingKey.
type TruncatedKey [TruncatedSize]byte

func (k ContentKey) String() string  { return hex.EncodeToString(k[:]) }
func (k EncodingKey) String() string { return hex.EncodeToString(k[:]) }
func (k TruncatedKey) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether every byte of the key is zero.
func (k ContentKey) IsZero() bool { return k == ContentKey{} }

// IsZero reports whether every byte of the key is zero.
func (k EncodingKey) IsZero() bool { return k == EncodingKey{} }

// Truncate returns the nine-byte prefix stored by local .idx files.
func (k EncodingKey) Truncate() TruncatedKey {
	var truncated TruncatedKey
	copy(truncated[:], k[:TruncatedSize])
	return truncated
}

// ParseContentKey parses a 32-character hex string. Surrounding
// whitespace is ignored and either case is accepted.
func ParseContentKey(text string) (ContentKey, error) {
	var key ContentKey
	err := parseInto(key[:], text)
	return key, err
}

// ParseEncodingKey parses a 32-character hex string.
func ParseEncodingKey(text string) (EncodingKey, error) {
	var key EncodingKey
	err := parseInto(key[:], text)
	return key, err
}

func parseInto(destination []byte, text string) error {
	decoded, err := hex.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("parsing key %q: %w", text, cascerr.ErrInvalidHex)
	}
	if len(decoded) != len(destination) {
		return fmt.Errorf("key %q is %d bytes, want %d: %w",
			text, len(decoded), len(destination), cascerr.ErrInvalidHex)
	}
	copy(destination, decoded)
	return nil
}

// Sum returns the MD5 of data. BLTE chunk checksums, content keys, and
// encoding keys are all MD5 digests.
func Sum(data []byte) [Size]byte {
	return md5.Sum(data)
}

// HashFile computes the MD5 of the file at path, streaming it through
// the hash so memory stays constant for archive-sized files.
func HashFile(path string) ([Size]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [Size]byte{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return [Size]byte{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest [Size]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FileDataHash is the 64-bit hash of a numeric asset id, folded one
// byte at a time (FNV-1 style with the multiply before the xor).
func FileDataHash(fileDataID uint32) uint64 {
	hash := uint64(0xCBF29CE484222325)
	for i := 0; i < 4; i++ {
		value := uint64((fileDataID >> (8 * i)) & 0xFF)
		hash = 0x100000001B3 * (value ^ hash)
	}
	return hash
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// ChunkType is the leading byte of every chunk. The values are format
// constants.
type ChunkType uint8

const (
	ChunkNormal    ChunkType = 'N'
	ChunkDeflate   ChunkType = 'Z'
	ChunkEncrypted ChunkType = 'E'
	ChunkFrame     ChunkType = 'F'
)

// String returns the type letter, or "?" for bytes that are not a
// chunk type.
func (t ChunkType) String() string {
	if t.Known() {
		return string(rune(t))
	}
	return "?"
}

// Known reports whether t is one of the four chunk types.
func (t ChunkType) Known() bool {
	switch t {
	case ChunkNormal, ChunkDeflate, ChunkEncrypted, ChunkFrame:
		return true
	}
	return false
}

func chunkTypeOf(chunk []byte) ChunkType {
	if len(chunk) == 0 {
		return 0
	}
	return ChunkType(chunk[0])
}

// Cipher selectors inside an encrypted chunk.
const (
	cipherSalsa20 = 'S'
	cipherARC4    = 'A'
)

// decodeChunk dispatches on the chunk type. expected is the decoded
// size the table declares, or -1 when any length is acceptable.
func (d *Decoder) decodeChunk(chunk []byte, index, expected, depth int) ([]byte, error) {
	if depth > MaxNesting {
		return nil, fmt.Errorf("encrypted chunks nested deeper than %d: %w", MaxNesting, cascerr.ErrInvalidBLTE)
	}
	if len(chunk) == 0 {
		return nil, fmt.Errorf("empty chunk: %w", cascerr.ErrInvalidBLTE)
	}

	body := chunk[1:]
	switch ChunkType(chunk[0]) {
	case ChunkNormal:
		return decodeNormal(body, expected)
	case ChunkDeflate:
		return decodeDeflate(body, expected)
	case ChunkEncrypted:
		return d.decodeEncrypted(body, index, expected, depth)
	case ChunkFrame:
		return nil, fmt.Errorf("nested frame chunks are not supported: %w", cascerr.ErrInvalidBLTE)
	default:
		return nil, fmt.Errorf("unknown chunk type 0x%02X: %w", chunk[0], cascerr.ErrInvalidBLTE)
	}
}

func checkLength(kind string, produced, expected int) error {
	if expected >= 0 && produced != expected {
		return fmt.Errorf("%s chunk produced %d bytes, want %d: %w",
			kind, produced, expected, cascerr.ErrInvalidBLTE)
	}
	return nil
}

func decodeNormal(body []byte, expected int) ([]byte, error) {
	if err := checkLength("stored", len(body), expected); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeDeflate inflates a zlib stream. The two-byte zlib header is
// skipped and the trailing Adler-32 is never read.
func decodeDeflate(body []byte, expected int) ([]byte, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("deflate chunk missing zlib header: %w", cascerr.ErrInvalidBLTE)
	}
	reader := flate.NewReader(bytes.NewReader(body[2:]))
	defer reader.Close()

	var output bytes.Buffer
	if expected > 0 {
		output.Grow(expected)
	}
	if _, err := io.Copy(&output, reader); err != nil {
		return nil, fmt.Errorf("inflating chunk: %v: %w", err, cascerr.ErrInvalidBLTE)
	}
	if err := checkLength("deflate", output.Len(), expected); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}

// encryptedHeader is the parsed prefix of an 'E' chunk.
type encryptedHeader struct {
	keyName uint64
	nonce   [8]byte
	cipher  byte
	body    []byte
}

// parseEncryptedHeader reads the key name, IV, and cipher selector and
// derives the per-chunk nonce by XORing the chunk index into the IV.
func parseEncryptedHeader(data []byte, index int) (encryptedHeader, error) {
	var header encryptedHeader
	if len(data) < 1+8+1+4 {
		return header, fmt.Errorf("encrypted chunk header truncated: %w", cascerr.ErrInvalidBLTE)
	}
	if data[0] != 8 {
		return header, fmt.Errorf("key name size %d: %w", data[0], cascerr.ErrInvalidBLTE)
	}
	header.keyName = binary.LittleEndian.Uint64(data[1:9])

	ivSize := int(data[9])
	if ivSize != 4 && ivSize != 8 {
		return header, fmt.Errorf("iv size %d: %w", ivSize, cascerr.ErrInvalidBLTE)
	}
	ivEnd := 10 + ivSize
	if len(data) < ivEnd+1 {
		return header, fmt.Errorf("encrypted chunk iv truncated: %w", cascerr.ErrInvalidBLTE)
	}
	copy(header.nonce[:], data[10:ivEnd])
	for i := 0; i < 4; i++ {
		header.nonce[i] ^= byte(index >> (8 * i))
	}

	header.cipher = data[ivEnd]
	if header.cipher != cipherSalsa20 && header.cipher != cipherARC4 {
		return header, fmt.Errorf("cipher selector 0x%02X: %w", header.cipher, cascerr.ErrInvalidBLTE)
	}
	header.body = data[ivEnd+1:]
	return header, nil
}

func (d *Decoder) decodeEncrypted(data []byte, index, expected, depth int) ([]byte, error) {
	header, err := parseEncryptedHeader(data, index)
	if err != nil {
		return nil, err
	}
	logger := d.logger()

	var key [16]byte
	found := false
	if d.Keys != nil {
		key, found = d.Keys.Key(header.keyName)
	}

	if !found {
		logger.Warn("missing decryption key",
			"key_name", fmt.Sprintf("%016X", header.keyName),
			"chunk", index,
			"decoded_size", expected,
		)

		// Some chunks flagged as encrypted are stored in the clear.
		if chunkTypeOf(header.body).Known() {
			decoded, err := d.decodeChunk(header.body, index, expected, depth+1)
			if err == nil && (expected < 0 || len(decoded) == expected) {
				return decoded, nil
			}
		}

		if d.Strict || expected < 0 {
			// Without a declared size there is nothing to zero-fill.
			return nil, &cascerr.MissingKeyError{Name: header.keyName}
		}
		return make([]byte, expected), nil
	}

	if header.cipher == cipherARC4 {
		return nil, fmt.Errorf("ARC4 encrypted chunks are not supported: %w", cascerr.ErrInvalidBLTE)
	}

	plain := make([]byte, len(header.body))
	if err := XORKeyStream(plain, header.body, header.nonce, key[:]); err != nil {
		return nil, err
	}
	logger.Debug("chunk decrypted",
		"key_name", fmt.Sprintf("%016X", header.keyName),
		"nonce", hex.EncodeToString(header.nonce[:]),
		"bytes", len(plain),
	)

	if !chunkTypeOf(plain).Known() {
		// Decrypted bytes without a chunk type are the content itself.
		if err := checkLength("decrypted", len(plain), expected); err != nil {
			return nil, err
		}
		return plain, nil
	}

	decoded, err := d.decodeChunk(plain, index, expected, depth+1)
	if err != nil {
		return nil, err
	}
	if err := checkLength("decrypted", len(decoded), expected); err != nil {
		return nil, err
	}
	return decoded, nil
}

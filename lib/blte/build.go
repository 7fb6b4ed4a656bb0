// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// Chunk is an encoded chunk together with the size it decodes to.
type Chunk struct {
	Encoded []byte
	Size    int
}

// NormalChunk stores data as-is.
func NormalChunk(data []byte) Chunk {
	return Chunk{
		Encoded: append([]byte{byte(ChunkNormal)}, data...),
		Size:    len(data),
	}
}

// DeflateChunk compresses data into a zlib stream.
func DeflateChunk(data []byte) (Chunk, error) {
	var buffer bytes.Buffer
	buffer.WriteByte(byte(ChunkDeflate))
	writer := zlib.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		return Chunk{}, fmt.Errorf("compressing chunk: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Chunk{}, fmt.Errorf("compressing chunk: %w", err)
	}
	return Chunk{Encoded: buffer.Bytes(), Size: len(data)}, nil
}

// EncryptedChunk wraps inner in a Salsa20 envelope for key name, using
// iv (4 or 8 bytes). index must be the position the chunk will occupy
// in its container, since it is folded into the nonce.
func EncryptedChunk(name uint64, key [16]byte, iv []byte, index int, inner Chunk) (Chunk, error) {
	if len(iv) != 4 && len(iv) != 8 {
		return Chunk{}, fmt.Errorf("iv is %d bytes, want 4 or 8", len(iv))
	}
	var nonce [8]byte
	copy(nonce[:], iv)
	for i := 0; i < 4; i++ {
		nonce[i] ^= byte(index >> (8 * i))
	}

	encoded := []byte{byte(ChunkEncrypted), 8}
	encoded = binary.LittleEndian.AppendUint64(encoded, name)
	encoded = append(encoded, byte(len(iv)))
	encoded = append(encoded, iv...)
	encoded = append(encoded, cipherSalsa20)

	sealed := make([]byte, len(inner.Encoded))
	if err := XORKeyStream(sealed, inner.Encoded, nonce, key[:]); err != nil {
		return Chunk{}, err
	}
	return Chunk{Encoded: append(encoded, sealed...), Size: inner.Size}, nil
}

// Build assembles chunks into a container with a chunk table.
func Build(chunks ...Chunk) []byte {
	headerSize := 12 + len(chunks)*tableEntrySize
	container := make([]byte, 0, headerSize)
	container = append(container, Magic...)
	container = binary.BigEndian.AppendUint32(container, uint32(headerSize))
	container = append(container, tableFlag, byte(len(chunks)>>16), byte(len(chunks)>>8), byte(len(chunks)))
	for _, chunk := range chunks {
		container = binary.BigEndian.AppendUint32(container, uint32(len(chunk.Encoded)))
		container = binary.BigEndian.AppendUint32(container, uint32(chunk.Size))
		sum := md5.Sum(chunk.Encoded)
		container = append(container, sum[:]...)
	}
	for _, chunk := range chunks {
		container = append(container, chunk.Encoded...)
	}
	return container
}

// BuildSingle produces a container with no chunk table.
func BuildSingle(chunk Chunk) []byte {
	container := append([]byte{}, Magic...)
	container = binary.BigEndian.AppendUint32(container, 0)
	return append(container, chunk.Encoded...)
}

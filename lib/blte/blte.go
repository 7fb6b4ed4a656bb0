// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/logging"
)

// Magic is the first four bytes of every container.
var Magic = []byte("BLTE")

const (
	// tableFlag is the byte that starts a chunk table.
	tableFlag = 0x0F

	// tableEntrySize is the encoded size, decoded size, and MD5 of one
	// chunk table entry.
	tableEntrySize = 4 + 4 + md5.Size

	// MaxNesting bounds how many encrypted wrappers may enclose a chunk.
	MaxNesting = 2
)

// KeyLookup resolves a 64-bit key name to its 128-bit Salsa20 key.
type KeyLookup interface {
	Key(name uint64) ([16]byte, bool)
}

// Decoder decodes containers. The zero value decodes unencrypted
// containers and zero-fills encrypted chunks.
type Decoder struct {
	// Keys supplies decryption keys. Nil means no key is ever found.
	Keys KeyLookup

	// Strict makes a missing key an error instead of zero-filled output.
	Strict bool

	// DumpDir, when set, receives the raw bytes of each chunk that
	// fails to decode as <tag>_chunk<NNNN>_raw.bin.
	DumpDir string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// chunkSpec is one chunk table entry.
type chunkSpec struct {
	encodedSize int
	decodedSize int
	checksum    []byte
}

// Decode decodes a container that needs no keys.
func Decode(payload []byte) ([]byte, error) {
	var decoder Decoder
	return decoder.Decode(payload, "")
}

// Decode decodes payload. The tag (usually the encoding key in hex)
// labels log records and chunk dumps.
func (d *Decoder) Decode(payload []byte, tag string) ([]byte, error) {
	logger := d.logger()
	if tag == "" {
		tag = "unknown"
	}

	if len(payload) < 8 || !bytes.Equal(payload[:4], Magic) {
		return nil, fmt.Errorf("container %s: bad magic: %w", tag, cascerr.ErrInvalidBLTE)
	}

	headerSize := binary.BigEndian.Uint32(payload[4:8])
	chunks, position, err := parseTable(payload, headerSize)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", tag, err)
	}

	total := 0
	for _, chunk := range chunks {
		total += chunk.decodedSize
	}
	output := make([]byte, 0, total)

	for index, chunk := range chunks {
		end := position + chunk.encodedSize
		if chunk.encodedSize < 0 || end > len(payload) {
			return nil, fmt.Errorf("container %s chunk %d: %d bytes past end of payload: %w",
				tag, index, end-len(payload), cascerr.ErrInvalidBLTE)
		}
		raw := payload[position:end]
		position = end

		if chunk.checksum != nil {
			sum := md5.Sum(raw)
			if !bytes.Equal(sum[:], chunk.checksum) {
				d.dumpChunk(tag, index, raw)
				return nil, fmt.Errorf("container %s chunk %d: checksum mismatch: %w",
					tag, index, cascerr.ErrInvalidBLTE)
			}
		}

		decoded, err := d.decodeChunk(raw, index, chunk.decodedSize, 0)
		if err != nil {
			logger.Error("chunk decode failed",
				"tag", tag,
				"chunk", index,
				"type", chunkTypeOf(raw).String(),
				"encoded_size", chunk.encodedSize,
				"decoded_size", chunk.decodedSize,
				"error", err,
			)
			d.dumpChunk(tag, index, raw)
			return nil, fmt.Errorf("container %s chunk %d: %w", tag, index, err)
		}
		output = append(output, decoded...)
	}

	if len(output) != total {
		return nil, fmt.Errorf("container %s: decoded %d bytes, table declares %d: %w",
			tag, len(output), total, cascerr.ErrInvalidBLTE)
	}

	logger.Debug("container decoded", "tag", tag, "chunks", len(chunks), "bytes", len(output))
	return output, nil
}

// parseTable reads the chunk table, or synthesizes the single implicit
// chunk, and returns the offset of the first chunk.
func parseTable(payload []byte, headerSize uint32) ([]chunkSpec, int, error) {
	if headerSize == 0 || headerSize == 0xFFFFFFFF {
		// The implicit chunk always declares the rest of the payload
		// less its type byte as its decoded size.
		if len(payload) < 9 {
			return nil, 0, fmt.Errorf("implicit chunk missing: %w", cascerr.ErrInvalidBLTE)
		}
		return []chunkSpec{{
			encodedSize: len(payload) - 8,
			decodedSize: len(payload) - 9,
		}}, 8, nil
	}

	if len(payload) < 12 {
		return nil, 0, fmt.Errorf("truncated chunk table: %w", cascerr.ErrInvalidBLTE)
	}
	if payload[8] != tableFlag {
		return nil, 0, fmt.Errorf("chunk table flag 0x%02X: %w", payload[8], cascerr.ErrInvalidBLTE)
	}
	count := int(payload[9])<<16 | int(payload[10])<<8 | int(payload[11])
	if count == 0 {
		return nil, 0, fmt.Errorf("empty chunk table: %w", cascerr.ErrInvalidBLTE)
	}
	tableEnd := 12 + count*tableEntrySize
	if uint64(headerSize) != uint64(tableEnd) {
		return nil, 0, fmt.Errorf("header size %d does not match %d chunks: %w",
			headerSize, count, cascerr.ErrInvalidBLTE)
	}
	if len(payload) < tableEnd {
		return nil, 0, fmt.Errorf("chunk table runs past end of payload: %w", cascerr.ErrInvalidBLTE)
	}

	chunks := make([]chunkSpec, count)
	position := 12
	for i := range chunks {
		entry := payload[position : position+tableEntrySize]
		chunks[i] = chunkSpec{
			encodedSize: int(binary.BigEndian.Uint32(entry[0:4])),
			decodedSize: int(binary.BigEndian.Uint32(entry[4:8])),
			checksum:    entry[8:tableEntrySize],
		}
		position += tableEntrySize
	}
	return chunks, position, nil
}

func (d *Decoder) logger() *slog.Logger {
	return logging.Component(d.Logger, "blte")
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"fmt"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// BitReader reads little-endian bit fields from a byte slice. Bit 0 is
// the least significant bit of the first byte.
type BitReader struct {
	data     []byte
	position int
}

// NewBitReader returns a reader positioned at bit 0 of data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// Seek moves the cursor to an absolute bit offset.
func (b *BitReader) Seek(bit int) { b.position = bit }

// Position returns the cursor's bit offset.
func (b *BitReader) Position() int { return b.position }

// Read returns the next width bits (at most 64) and advances past them.
func (b *BitReader) Read(width int) (uint64, error) {
	if width < 0 || width > 64 {
		return 0, fmt.Errorf("bit field width %d: %w", width, cascerr.ErrInvalidConfig)
	}
	if b.position < 0 || b.position+width > len(b.data)*8 {
		return 0, fmt.Errorf("bit field %d+%d exceeds %d-byte record: %w",
			b.position, width, len(b.data), cascerr.ErrInvalidConfig)
	}

	var value uint64
	for read := 0; read < width; {
		bit := b.position + read
		shift := bit % 8
		take := min(8-shift, width-read)
		chunk := uint64(b.data[bit/8]>>shift) & (1<<take - 1)
		value |= chunk << read
		read += take
	}
	b.position += width
	return value, nil
}

// signExtend interprets the low width bits of value as two's
// complement.
func signExtend(value uint64, width int) int64 {
	if width <= 0 || width >= 64 {
		return int64(value)
	}
	shift := 64 - width
	return int64(value<<shift) >> shift
}

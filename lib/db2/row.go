// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"bytes"
	"fmt"
	"math"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// Row is one record of a [Table]. Accessors take a column index.
type Row struct {
	table *Table
	data  []byte

	// global is the record's index across all sections, or -1 for a
	// sparse record.
	global int

	id        uint32
	source    uint32
	parent    uint32
	hasParent bool

	// stored is the id the record data was stored under. Copies keep
	// their source's, so common values follow the data.
	stored uint32
}

// ID returns the record id: from the section's index data when
// present, else from the id column.
func (r Row) ID() uint32 { return r.id }

// CopyOf returns the id this row was copied from, or 0 for a stored
// record.
func (r Row) CopyOf() uint32 { return r.source }

// Parent returns the foreign id from the section's parent lookup.
func (r Row) Parent() (uint32, bool) { return r.parent, r.hasParent }

// Bytes returns the record's raw span.
func (r Row) Bytes() []byte { return r.data }

func (r Row) column(col int) (Column, error) {
	if r.table == nil {
		return Column{}, fmt.Errorf("zero row: %w", cascerr.ErrInvalidConfig)
	}
	if col < 0 || col >= len(r.table.Columns) {
		return Column{}, fmt.Errorf("column %d of %d: %w", col, len(r.table.Columns), cascerr.ErrInvalidConfig)
	}
	return r.table.Columns[col], nil
}

func (r Row) bits(offset, width int) (uint64, error) {
	reader := NewBitReader(r.data)
	reader.Seek(offset)
	return reader.Read(width)
}

// raw returns a scalar column's stored value and its width in bits.
func (r Row) raw(col int) (uint64, int, error) {
	column, err := r.column(col)
	if err != nil {
		return 0, 0, err
	}
	switch column.Compression {
	case CompressionNone, CompressionImmediate, CompressionSignedImmediate:
		width := int(column.SizeBits)
		if width > 64 {
			return 0, 0, fmt.Errorf("column %d is %d bits wide, read it as an array: %w", col, width, cascerr.ErrInvalidConfig)
		}
		value, err := r.bits(int(column.OffsetBits), width)
		return value, width, err
	case CompressionCommon:
		if value, ok := r.table.commons[col][r.stored]; ok {
			return uint64(value), 32, nil
		}
		return uint64(column.Val1), 32, nil
	case CompressionPallet, CompressionPalletArray:
		values, err := r.pallet(col, column)
		if err != nil {
			return 0, 0, err
		}
		return uint64(values[0]), 32, nil
	}
	return 0, 0, fmt.Errorf("column %d: %s: %w", col, column.Compression, cascerr.ErrInvalidConfig)
}

// pallet returns the pallet entry a record selects: one value, or
// Val3 values for a pallet array.
func (r Row) pallet(col int, column Column) ([]uint32, error) {
	index, err := r.bits(int(column.OffsetBits), int(column.SizeBits))
	if err != nil {
		return nil, err
	}
	cardinality := uint64(1)
	if column.Compression == CompressionPalletArray {
		cardinality = uint64(column.Val3)
	}
	pallet := r.table.pallets[col]
	start := index * cardinality
	if start+cardinality > uint64(len(pallet)) {
		return nil, fmt.Errorf("column %d: pallet index %d beyond %d entries: %w", col, index, len(pallet), cascerr.ErrInvalidConfig)
	}
	return pallet[start : start+cardinality], nil
}

// Uint returns a column as an unsigned integer.
func (r Row) Uint(col int) (uint64, error) {
	value, _, err := r.raw(col)
	return value, err
}

// Int returns a column as a signed integer, sign-extended from its
// stored width. Unsigned immediate columns are never negative.
func (r Row) Int(col int) (int64, error) {
	value, width, err := r.raw(col)
	if err != nil {
		return 0, err
	}
	if r.table.Columns[col].Compression == CompressionImmediate {
		return int64(value), nil
	}
	return signExtend(value, width), nil
}

// Float returns a column holding an IEEE 754 single.
func (r Row) Float(col int) (float32, error) {
	value, _, err := r.raw(col)
	return math.Float32frombits(uint32(value)), err
}

// String returns a string column. Dense records hold an offset
// relative to the field's own position; sparse records hold the string
// inline.
func (r Row) String(col int) (string, error) { return r.StringAt(col, 0) }

// StringAt returns element index of a string array column.
func (r Row) StringAt(col, index int) (string, error) {
	column, err := r.column(col)
	if err != nil {
		return "", err
	}
	byteOffset := int(column.OffsetBits)/8 + index*4
	if r.global < 0 {
		if index != 0 || byteOffset > len(r.data) {
			return "", fmt.Errorf("column %d element %d at byte %d of a %d-byte record: %w",
				col, index, byteOffset, len(r.data), cascerr.ErrInvalidConfig)
		}
		inline := r.data[byteOffset:]
		if end := bytes.IndexByte(inline, 0); end >= 0 {
			inline = inline[:end]
		}
		return string(inline), nil
	}

	var offset uint64
	if column.Compression == CompressionNone {
		offset, err = r.bits(byteOffset*8, 32)
	} else {
		offset, err = r.Uint(col)
	}
	if err != nil {
		return "", err
	}
	if offset == 0 {
		return "", nil
	}
	position := r.global*int(r.table.Header.RecordSize) + byteOffset + int(offset) - r.table.stringBase
	return r.table.string(position)
}

// Array returns every element of a column: the fixed-width elements of
// an uncompressed array field, the selected pallet array, or a single
// element for scalar columns.
func (r Row) Array(col int) ([]uint64, error) {
	column, err := r.column(col)
	if err != nil {
		return nil, err
	}
	switch column.Compression {
	case CompressionNone:
		width := int(column.SizeBits)
		if col < len(r.table.Fields) {
			if bits := r.table.Fields[col].Bits(); bits > 0 && bits <= 64 {
				width = bits
			}
		}
		if width == 0 {
			return nil, nil
		}
		count := int(column.SizeBits) / width
		values := make([]uint64, count)
		reader := NewBitReader(r.data)
		reader.Seek(int(column.OffsetBits))
		for i := range values {
			if values[i], err = reader.Read(width); err != nil {
				return nil, err
			}
		}
		return values, nil
	case CompressionPalletArray:
		entry, err := r.pallet(col, column)
		if err != nil {
			return nil, err
		}
		values := make([]uint64, len(entry))
		for i, v := range entry {
			values[i] = uint64(v)
		}
		return values, nil
	}
	value, err := r.Uint(col)
	if err != nil {
		return nil, err
	}
	return []uint64{value}, nil
}

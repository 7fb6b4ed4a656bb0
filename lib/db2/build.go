// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"encoding/binary"
	"slices"
)

// BuildColumn is one column of a table made by [Build]. Compression,
// offset, width and the Val fields come from Column; the additional
// data size is derived from Pallet or Common.
type BuildColumn struct {
	Column Column

	// FieldSize is the field structure size (32 minus element bits).
	FieldSize int16

	Pallet []uint32
	Common []CommonValue
}

// CommonValue is one entry of a common column's block.
type CommonValue struct {
	ID    uint32
	Value uint32
}

// BuildSection is one section of a table made by [Build].
type BuildSection struct {
	TactKeyHash uint64

	// Records are fixed-size records for dense tables or the
	// variable-length records of a sparse table.
	Records [][]byte
	Strings []byte

	// IDs become index data for dense tables and offset map ids for
	// sparse ones.
	IDs     []uint32
	Copies  []CopyValue
	Parents []ParentValue
}

// CopyValue is one copy table entry.
type CopyValue struct {
	ID     uint32
	Source uint32
}

// ParentValue is one parent lookup entry.
type ParentValue struct {
	Parent uint32
	Record uint32
}

// BuildTable describes a WDC5 table for [Build].
type BuildTable struct {
	LayoutHash uint32
	Flags      uint16
	IDIndex    uint16
	RecordSize uint32
	Columns    []BuildColumn
	Sections   []BuildSection
}

// Build encodes a WDC5 table. It exists to produce fixtures; it does
// not validate its input.
func Build(layout BuildTable) []byte {
	sparse := layout.Flags&FlagSparse != 0

	var recordCount, stringSize, palletSize, commonSize uint32
	var ids []uint32
	for _, section := range layout.Sections {
		recordCount += uint32(len(section.Records))
		stringSize += uint32(len(section.Strings))
		ids = append(ids, section.IDs...)
	}
	for _, column := range layout.Columns {
		palletSize += uint32(len(column.Pallet) * 4)
		commonSize += uint32(len(column.Common) * 8)
	}
	var minID, maxID uint32
	if len(ids) > 0 {
		minID, maxID = slices.Min(ids), slices.Max(ids)
	}

	le := binary.LittleEndian
	out := []byte(MagicWDC5)
	out = le.AppendUint32(out, 5)
	schema := make([]byte, schemaSize)
	copy(schema, "WDC5 fixture")
	out = append(out, schema...)
	for _, value := range []uint32{
		recordCount, uint32(len(layout.Columns)), layout.RecordSize, stringSize,
		0x7A1E5EED, layout.LayoutHash, minID, maxID, 0,
	} {
		out = le.AppendUint32(out, value)
	}
	out = le.AppendUint16(out, layout.Flags)
	out = le.AppendUint16(out, layout.IDIndex)
	for _, value := range []uint32{
		uint32(len(layout.Columns)), 0, 0, uint32(len(layout.Columns) * columnSize),
		commonSize, palletSize, uint32(len(layout.Sections)),
	} {
		out = le.AppendUint32(out, value)
	}

	sectionHeaders := len(out)
	out = append(out, make([]byte, len(layout.Sections)*sectionSize)...)

	for _, column := range layout.Columns {
		out = le.AppendUint16(out, uint16(column.FieldSize))
		out = le.AppendUint16(out, column.Column.OffsetBits/8)
	}
	for _, column := range layout.Columns {
		meta := column.Column
		additional := uint32(len(column.Pallet)*4 + len(column.Common)*8)
		out = le.AppendUint16(out, meta.OffsetBits)
		out = le.AppendUint16(out, meta.SizeBits)
		out = le.AppendUint32(out, additional)
		out = le.AppendUint32(out, uint32(meta.Compression))
		out = le.AppendUint32(out, meta.Val1)
		out = le.AppendUint32(out, meta.Val2)
		out = le.AppendUint32(out, meta.Val3)
	}
	for _, column := range layout.Columns {
		for _, value := range column.Pallet {
			out = le.AppendUint32(out, value)
		}
	}
	for _, column := range layout.Columns {
		for _, entry := range column.Common {
			out = le.AppendUint32(out, entry.ID)
			out = le.AppendUint32(out, entry.Value)
		}
	}

	for i, section := range layout.Sections {
		header := SectionHeader{
			TactKeyHash:     section.TactKeyHash,
			FileOffset:      uint32(len(out)),
			RecordCount:     uint32(len(section.Records)),
			StringTableSize: uint32(len(section.Strings)),
			CopyCount:       uint32(len(section.Copies)),
		}
		var offsets []uint32
		for _, record := range section.Records {
			offsets = append(offsets, uint32(len(out)))
			out = append(out, record...)
		}
		if sparse {
			header.SparseDataEnd = uint32(len(out))
			header.StringTableSize = 0
			header.SparseCount = uint32(len(section.Records))
		} else {
			out = append(out, section.Strings...)
			header.IndexDataSize = uint32(len(section.IDs) * 4)
			for _, id := range section.IDs {
				out = le.AppendUint32(out, id)
			}
		}
		for _, entry := range section.Copies {
			out = le.AppendUint32(out, entry.ID)
			out = le.AppendUint32(out, entry.Source)
		}
		if sparse {
			for j, record := range section.Records {
				out = le.AppendUint32(out, offsets[j])
				out = le.AppendUint16(out, uint16(len(record)))
			}
		}
		if len(section.Parents) > 0 {
			header.ParentLookupDataSize = uint32(12 + len(section.Parents)*8)
			out = le.AppendUint32(out, uint32(len(section.Parents)))
			out = le.AppendUint32(out, 0)
			out = le.AppendUint32(out, 0)
			for _, entry := range section.Parents {
				out = le.AppendUint32(out, entry.Parent)
				out = le.AppendUint32(out, entry.Record)
			}
		}
		if sparse {
			for _, id := range section.IDs {
				out = le.AppendUint32(out, id)
			}
		}
		writeSectionHeader(out[sectionHeaders+i*sectionSize:], header)
	}
	return out
}

func writeSectionHeader(b []byte, header SectionHeader) {
	le := binary.LittleEndian
	le.PutUint64(b, header.TactKeyHash)
	le.PutUint32(b[8:], header.FileOffset)
	le.PutUint32(b[12:], header.RecordCount)
	le.PutUint32(b[16:], header.StringTableSize)
	le.PutUint32(b[20:], header.SparseDataEnd)
	le.PutUint32(b[24:], header.IndexDataSize)
	le.PutUint32(b[28:], header.ParentLookupDataSize)
	le.PutUint32(b[32:], header.SparseCount)
	le.PutUint32(b[36:], header.CopyCount)
}

// StringRef returns the value a dense string field stores to point at
// position in the concatenated string tables, for the record at global
// index row with the field at byteOffset.
func (layout BuildTable) StringRef(row, byteOffset, position int) uint32 {
	records := 0
	for _, section := range layout.Sections {
		records += len(section.Records)
	}
	return uint32(position + records*int(layout.RecordSize) - row*int(layout.RecordSize) - byteOffset)
}

// BitWriter packs fields into a fixed-size record.
type BitWriter struct {
	data []byte
}

// NewBitWriter returns a writer over a zeroed record of size bytes.
func NewBitWriter(size int) *BitWriter {
	return &BitWriter{data: make([]byte, size)}
}

// Put stores the low width bits of value at bit offset.
func (w *BitWriter) Put(offset, width int, value uint64) *BitWriter {
	for i := range width {
		if value>>i&1 == 1 {
			bit := offset + i
			w.data[bit/8] |= 1 << (bit % 8)
		}
	}
	return w
}

// Bytes returns the record.
func (w *BitWriter) Bytes() []byte { return w.data }

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// CompressionKind is how a column's values are stored.
type CompressionKind uint32

const (
	// CompressionNone stores the value in the record at full width.
	CompressionNone CompressionKind = iota

	// CompressionImmediate stores an unsigned value in SizeBits bits.
	CompressionImmediate

	// CompressionCommon stores nothing in the record. Rows listed in
	// the column's common block take that value; the rest take Val1.
	CompressionCommon

	// CompressionPallet stores an index into the column's pallet.
	CompressionPallet

	// CompressionPalletArray stores an index into the column's pallet
	// of Val3-element arrays.
	CompressionPalletArray

	// CompressionSignedImmediate is CompressionImmediate with sign
	// extension.
	CompressionSignedImmediate
)

var compressionNames = [...]string{"none", "immediate", "common", "pallet", "pallet-array", "signed-immediate"}

func (k CompressionKind) String() string {
	if int(k) < len(compressionNames) {
		return compressionNames[k]
	}
	return fmt.Sprintf("compression(%d)", uint32(k))
}

// Valid reports whether k is one of the six known kinds.
func (k CompressionKind) Valid() bool { return int(k) < len(compressionNames) }

const (
	fieldSize   = 4
	columnSize  = 24
	offsetEntry = 6
	schemaSize  = 128
)

// Header is the WDC5 file header.
type Header struct {
	Version         uint32
	Schema          string
	RecordCount     uint32
	FieldCount      uint32
	RecordSize      uint32
	StringTableSize uint32
	TableHash       uint32
	LayoutHash      uint32
	MinID           uint32
	MaxID           uint32
	Locale          uint32
	Flags           uint16
	IDIndex         uint16
	TotalFieldCount uint32
	BitpackedOffset uint32
	LookupColumns   uint32
	ColumnMetaSize  uint32
	CommonDataSize  uint32
	PalletDataSize  uint32
	SectionCount    uint32
}

// Sparse reports whether records are variable length.
func (h Header) Sparse() bool { return h.Flags&FlagSparse != 0 }

// SectionHeader describes one section.
type SectionHeader struct {
	TactKeyHash     uint64
	FileOffset      uint32
	RecordCount     uint32
	StringTableSize uint32

	// SparseDataEnd is the end of variable-length record data in
	// sparse tables.
	SparseDataEnd uint32

	IndexDataSize        uint32
	ParentLookupDataSize uint32
	SparseCount          uint32
	CopyCount            uint32
}

// Section is a parsed section header and the number of rows it yielded.
type Section struct {
	SectionHeader
	Rows int
}

// Encrypted reports whether the section was skipped for want of a key.
func (s Section) Encrypted() bool { return s.TactKeyHash != 0 }

// Field is a field structure entry.
type Field struct {
	// Size is 32 minus the field's element width in bits.
	Size   int16
	Offset uint16
}

// Bits returns the width of one element of the field.
func (f Field) Bits() int { return 32 - int(f.Size) }

// Column is a column's storage description.
type Column struct {
	OffsetBits         uint16
	SizeBits           uint16
	AdditionalDataSize uint32
	Compression        CompressionKind

	// Val1..Val3 depend on Compression: bitpacking offset, width and
	// flags for the immediate kinds, the default for common, and
	// offset, width and array cardinality for the pallet kinds.
	Val1 uint32
	Val2 uint32
	Val3 uint32
}

// Table is a decoded WDC5 table. It is read-only after ParseWDC5.
type Table struct {
	Header   Header
	Sections []Section
	Fields   []Field
	Columns  []Column

	pallets [][]uint32
	commons []map[uint32]uint32
	strings []stringBlock
	rows    []Row
	byID    map[uint32]int

	// stringBase is subtracted from a field's absolute position plus
	// its stored offset to index the concatenated string tables.
	stringBase int
}

// stringBlock is one section's string table placed in the
// concatenation of all string tables.
type stringBlock struct {
	start int
	data  []byte
}

type copyEntry struct {
	id     uint32
	source uint32
}

// ParseWDC5 decodes a WDC5 table.
func ParseWDC5(data []byte) (*Table, error) {
	if len(data) < 4 || string(data[:4]) != MagicWDC5 {
		return nil, fmt.Errorf("not a %s table: %w", MagicWDC5, cascerr.ErrInvalidConfig)
	}
	r := &cursor{data: data, position: 4}
	table := &Table{byID: make(map[uint32]int)}
	if err := table.readHeader(r); err != nil {
		return nil, err
	}
	h := &table.Header

	sectionHeaders, err := readSectionHeaders(r, h.SectionCount)
	if err != nil {
		return nil, err
	}

	if h.FieldCount > h.TotalFieldCount {
		return nil, fmt.Errorf("field count %d exceeds total %d: %w", h.FieldCount, h.TotalFieldCount, cascerr.ErrInvalidConfig)
	}
	fieldBytes, err := r.take(int(h.TotalFieldCount) * fieldSize)
	if err != nil {
		return nil, fmt.Errorf("field structures: %w", err)
	}
	for i := range int(h.TotalFieldCount) {
		table.Fields = append(table.Fields, Field{
			Size:   int16(binary.LittleEndian.Uint16(fieldBytes[i*fieldSize:])),
			Offset: binary.LittleEndian.Uint16(fieldBytes[i*fieldSize+2:]),
		})
	}

	if h.ColumnMetaSize%columnSize != 0 {
		return nil, fmt.Errorf("column metadata size %d is not a multiple of %d: %w", h.ColumnMetaSize, columnSize, cascerr.ErrInvalidConfig)
	}
	if err := table.readColumns(r, int(h.ColumnMetaSize/columnSize)); err != nil {
		return nil, err
	}
	if err := table.readPallets(r); err != nil {
		return nil, err
	}
	if err := table.readCommons(r); err != nil {
		return nil, err
	}

	table.stringBase = int(h.RecordCount) * int(h.RecordSize)
	var copies []copyEntry
	recordBase, stringOffset := 0, 0
	for i, header := range sectionHeaders {
		section := Section{SectionHeader: header}
		if err := table.checkSection(data, header); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		if !section.Encrypted() {
			sectionCopies, err := table.readSection(data, &section, recordBase, stringOffset)
			if err != nil {
				return nil, fmt.Errorf("section %d: %w", i, err)
			}
			copies = append(copies, sectionCopies...)
		}
		recordBase += int(header.RecordCount)
		stringOffset += int(header.StringTableSize)
		table.Sections = append(table.Sections, section)
	}

	for _, entry := range copies {
		index, ok := table.byID[entry.source]
		if !ok {
			return nil, fmt.Errorf("copy of id %d names missing source %d: %w", entry.id, entry.source, cascerr.ErrInvalidConfig)
		}
		row := table.rows[index]
		row.id = entry.id
		row.source = entry.source
		table.addRow(row)
	}
	return table, nil
}

// checkSection fails when a section's record and string data run past
// the file. Encrypted sections are checked too, though never read.
func (t *Table) checkSection(data []byte, section SectionHeader) error {
	var size uint64
	if t.Header.Sparse() {
		if section.SparseDataEnd < section.FileOffset {
			return fmt.Errorf("sparse data ends at %d before it starts at %d: %w",
				section.SparseDataEnd, section.FileOffset, cascerr.ErrInvalidConfig)
		}
		size = uint64(section.SparseDataEnd - section.FileOffset)
	} else {
		size = uint64(section.RecordCount)*uint64(t.Header.RecordSize) + uint64(section.StringTableSize)
	}
	return checkRange(data, uint64(section.FileOffset), size, "records and strings")
}

func (t *Table) readHeader(r *cursor) error {
	h := &t.Header
	var err error
	read := func(into *uint32) {
		if err == nil {
			*into, err = r.uint32()
		}
	}
	read(&h.Version)
	schema, takeErr := r.take(schemaSize)
	if takeErr != nil {
		return fmt.Errorf("WDC5 header: %w", takeErr)
	}
	h.Schema = string(bytes.TrimRight(schema, "\x00"))
	read(&h.RecordCount)
	read(&h.FieldCount)
	read(&h.RecordSize)
	read(&h.StringTableSize)
	read(&h.TableHash)
	read(&h.LayoutHash)
	read(&h.MinID)
	read(&h.MaxID)
	read(&h.Locale)
	if err == nil {
		h.Flags, err = r.uint16()
	}
	if err == nil {
		h.IDIndex, err = r.uint16()
	}
	read(&h.TotalFieldCount)
	read(&h.BitpackedOffset)
	read(&h.LookupColumns)
	read(&h.ColumnMetaSize)
	read(&h.CommonDataSize)
	read(&h.PalletDataSize)
	read(&h.SectionCount)
	if err != nil {
		return fmt.Errorf("WDC5 header: %w", err)
	}
	return nil
}

func readSectionHeaders(r *cursor, count uint32) ([]SectionHeader, error) {
	raw, err := r.take(int(count) * sectionSize)
	if err != nil {
		return nil, fmt.Errorf("section headers: %w", err)
	}
	headers := make([]SectionHeader, count)
	for i := range headers {
		b := raw[i*sectionSize:]
		headers[i] = SectionHeader{
			TactKeyHash:          binary.LittleEndian.Uint64(b),
			FileOffset:           binary.LittleEndian.Uint32(b[8:]),
			RecordCount:          binary.LittleEndian.Uint32(b[12:]),
			StringTableSize:      binary.LittleEndian.Uint32(b[16:]),
			SparseDataEnd:        binary.LittleEndian.Uint32(b[20:]),
			IndexDataSize:        binary.LittleEndian.Uint32(b[24:]),
			ParentLookupDataSize: binary.LittleEndian.Uint32(b[28:]),
			SparseCount:          binary.LittleEndian.Uint32(b[32:]),
			CopyCount:            binary.LittleEndian.Uint32(b[36:]),
		}
	}
	return headers, nil
}

func (t *Table) readColumns(r *cursor, count int) error {
	raw, err := r.take(count * columnSize)
	if err != nil {
		return fmt.Errorf("column metadata: %w", err)
	}
	for i := range count {
		b := raw[i*columnSize:]
		column := Column{
			OffsetBits:         binary.LittleEndian.Uint16(b),
			SizeBits:           binary.LittleEndian.Uint16(b[2:]),
			AdditionalDataSize: binary.LittleEndian.Uint32(b[4:]),
			Compression:        CompressionKind(binary.LittleEndian.Uint32(b[8:])),
			Val1:               binary.LittleEndian.Uint32(b[12:]),
			Val2:               binary.LittleEndian.Uint32(b[16:]),
			Val3:               binary.LittleEndian.Uint32(b[20:]),
		}
		if !column.Compression.Valid() {
			return fmt.Errorf("column %d: unknown %s: %w", i, column.Compression, cascerr.ErrInvalidConfig)
		}
		if column.Compression == CompressionPalletArray && column.Val3 == 0 {
			return fmt.Errorf("column %d: pallet array of cardinality 0: %w", i, cascerr.ErrInvalidConfig)
		}
		t.Columns = append(t.Columns, column)
	}
	t.pallets = make([][]uint32, count)
	t.commons = make([]map[uint32]uint32, count)
	return nil
}

// readPallets splits the pallet block among the pallet columns in
// column order.
func (t *Table) readPallets(r *cursor) error {
	block, err := r.take(int(t.Header.PalletDataSize))
	if err != nil {
		return fmt.Errorf("pallet data: %w", err)
	}
	blockReader := &cursor{data: block}
	for i, column := range t.Columns {
		if column.Compression != CompressionPallet && column.Compression != CompressionPalletArray {
			continue
		}
		raw, err := blockReader.take(int(column.AdditionalDataSize))
		if err != nil {
			return fmt.Errorf("pallet for column %d: %w", i, err)
		}
		values := make([]uint32, len(raw)/4)
		for j := range values {
			values[j] = binary.LittleEndian.Uint32(raw[j*4:])
		}
		t.pallets[i] = values
	}
	return nil
}

// readCommons splits the common block into per-column id to value
// maps.
func (t *Table) readCommons(r *cursor) error {
	block, err := r.take(int(t.Header.CommonDataSize))
	if err != nil {
		return fmt.Errorf("common data: %w", err)
	}
	blockReader := &cursor{data: block}
	for i, column := range t.Columns {
		if column.Compression != CompressionCommon {
			continue
		}
		raw, err := blockReader.take(int(column.AdditionalDataSize))
		if err != nil {
			return fmt.Errorf("common data for column %d: %w", i, err)
		}
		values := make(map[uint32]uint32, len(raw)/8)
		for j := 0; j+8 <= len(raw); j += 8 {
			values[binary.LittleEndian.Uint32(raw[j:])] = binary.LittleEndian.Uint32(raw[j+4:])
		}
		t.commons[i] = values
	}
	return nil
}

// readSection appends the rows of one unencrypted section and returns
// its copy table for resolution once every section is read.
func (t *Table) readSection(data []byte, section *Section, recordBase, stringOffset int) ([]copyEntry, error) {
	h := t.Header
	r := &cursor{data: data, position: int(section.FileOffset)}

	var records []byte
	var err error
	if h.Sparse() {
		if section.SparseDataEnd < section.FileOffset {
			return nil, fmt.Errorf("sparse data ends at %d before it starts at %d: %w",
				section.SparseDataEnd, section.FileOffset, cascerr.ErrInvalidConfig)
		}
		if _, err = r.take(int(section.SparseDataEnd - section.FileOffset)); err != nil {
			return nil, fmt.Errorf("record data: %w", err)
		}
	} else {
		size := uint64(section.RecordCount) * uint64(h.RecordSize)
		if size > uint64(r.remaining()) {
			return nil, fmt.Errorf("%d records of %d bytes exceed the table: %w", section.RecordCount, h.RecordSize, cascerr.ErrInvalidConfig)
		}
		if records, err = r.take(int(size)); err != nil {
			return nil, fmt.Errorf("record data: %w", err)
		}
		strings, err := r.take(int(section.StringTableSize))
		if err != nil {
			return nil, fmt.Errorf("string table: %w", err)
		}
		t.strings = append(t.strings, stringBlock{start: stringOffset, data: strings})
	}

	indexIDs, err := r.uint32s(int(section.IndexDataSize / 4))
	if err != nil {
		return nil, fmt.Errorf("index data: %w", err)
	}
	copyRaw, err := r.take(int(section.CopyCount) * 8)
	if err != nil {
		return nil, fmt.Errorf("copy table: %w", err)
	}
	offsetMap, err := r.take(int(section.SparseCount) * offsetEntry)
	if err != nil {
		return nil, fmt.Errorf("offset map: %w", err)
	}
	parents, err := readParentLookup(r, section.ParentLookupDataSize)
	if err != nil {
		return nil, err
	}
	sparseIDs, err := r.uint32s(int(section.SparseCount))
	if err != nil {
		return nil, fmt.Errorf("offset map ids: %w", err)
	}

	var spans [][]byte
	globals := []int{}
	if h.Sparse() {
		for i := range int(section.SparseCount) {
			entry := offsetMap[i*offsetEntry:]
			offset := binary.LittleEndian.Uint32(entry)
			size := binary.LittleEndian.Uint16(entry[4:])
			if err := checkRange(data, uint64(offset), uint64(size), fmt.Sprintf("sparse record %d", i)); err != nil {
				return nil, err
			}
			spans = append(spans, data[offset:int(offset)+int(size)])
			globals = append(globals, -1)
		}
	} else {
		for i := range int(section.RecordCount) {
			start := i * int(h.RecordSize)
			spans = append(spans, records[start:start+int(h.RecordSize)])
			globals = append(globals, recordBase+i)
		}
	}

	if len(indexIDs) > 0 && len(indexIDs) != len(spans) {
		return nil, fmt.Errorf("%d index ids for %d records: %w", len(indexIDs), len(spans), cascerr.ErrInvalidConfig)
	}
	for i, span := range spans {
		row := Row{table: t, data: span, global: globals[i]}
		switch {
		case len(indexIDs) > 0:
			row.id = indexIDs[i]
		case h.Sparse() && len(sparseIDs) == len(spans):
			row.id = sparseIDs[i]
		default:
			id, err := row.Uint(int(h.IDIndex))
			if err != nil {
				return nil, fmt.Errorf("record %d id: %w", i, err)
			}
			row.id = uint32(id)
		}
		row.stored = row.id
		if parent, ok := parents[uint32(i)]; ok {
			row.parent, row.hasParent = parent, true
		}
		t.addRow(row)
	}
	section.Rows = len(spans)

	copies := make([]copyEntry, section.CopyCount)
	for i := range copies {
		copies[i] = copyEntry{
			id:     binary.LittleEndian.Uint32(copyRaw[i*8:]),
			source: binary.LittleEndian.Uint32(copyRaw[i*8+4:]),
		}
	}
	return copies, nil
}

// readParentLookup reads a relationship block: entry count, min and max
// id, then (foreign id, record index) pairs.
func readParentLookup(r *cursor, size uint32) (map[uint32]uint32, error) {
	if size == 0 {
		return nil, nil
	}
	block, err := r.take(int(size))
	if err != nil {
		return nil, fmt.Errorf("parent lookup: %w", err)
	}
	if len(block) < 12 {
		return nil, fmt.Errorf("parent lookup of %d bytes: %w", len(block), cascerr.ErrInvalidConfig)
	}
	count := binary.LittleEndian.Uint32(block)
	if uint64(count)*8 > uint64(len(block)-12) {
		return nil, fmt.Errorf("parent lookup declares %d entries in %d bytes: %w", count, len(block), cascerr.ErrInvalidConfig)
	}
	parents := make(map[uint32]uint32, count)
	for i := range int(count) {
		entry := block[12+i*8:]
		parents[binary.LittleEndian.Uint32(entry[4:])] = binary.LittleEndian.Uint32(entry)
	}
	return parents, nil
}

func (t *Table) addRow(row Row) {
	if _, ok := t.byID[row.id]; !ok {
		t.byID[row.id] = len(t.rows)
	}
	t.rows = append(t.rows, row)
}

// Rows returns every row: each unencrypted section's records in order,
// then rows produced by copy tables.
func (t *Table) Rows() []Row { return t.rows }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Lookup returns the row with the given id. When two rows share an id
// the first wins.
func (t *Table) Lookup(id uint32) (Row, bool) {
	index, ok := t.byID[id]
	if !ok {
		return Row{}, false
	}
	return t.rows[index], true
}

// string reads the null-terminated string at position in the
// concatenated string tables.
func (t *Table) string(position int) (string, error) {
	for _, block := range t.strings {
		if position < block.start || position >= block.start+len(block.data) {
			continue
		}
		rest := block.data[position-block.start:]
		if end := bytes.IndexByte(rest, 0); end >= 0 {
			rest = rest[:end]
		}
		return string(rest), nil
	}
	return "", fmt.Errorf("string offset %d outside every string table: %w", position, cascerr.ErrInvalidConfig)
}

// cursor is a bounds-checked little-endian reader.
type cursor struct {
	data     []byte
	position int
}

func (c *cursor) remaining() int { return len(c.data) - c.position }

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.position < 0 || n > c.remaining() {
		return nil, fmt.Errorf("truncated at offset %d (need %d bytes, have %d): %w",
			c.position, n, max(c.remaining(), 0), cascerr.ErrInvalidConfig)
	}
	b := c.data[c.position : c.position+n]
	c.position += n
	return b, nil
}

func (c *cursor) uint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) uint32s(n int) ([]uint32, error) {
	b, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}
	values := make([]uint32, n)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return values, nil
}

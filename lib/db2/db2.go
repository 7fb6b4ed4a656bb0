// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// Table signatures.
const (
	MagicWDB5 = "WDB5"
	MagicWDB6 = "WDB6"
	MagicWDC1 = "WDC1"
	MagicWDC2 = "WDC2"
	MagicWDC3 = "WDC3"
	MagicWDC5 = "WDC5"
)

// Header flags.
const (
	FlagSparse      uint16 = 0x01
	FlagSecondaryID uint16 = 0x02
	FlagIndexData   uint16 = 0x04
	FlagBitpacked   uint16 = 0x10
)

const (
	legacyHeaderSize = 20

	// sectionedHeaderSize covers the WDC2 and WDC3 header. WDC5 inserts
	// a version word and a 128-byte schema string after the signature,
	// so every WDC3 header field, the section count at 68 included,
	// sits wdc5Prefix bytes further in. Shipped WDC5 files carry the
	// schema string; reading the count at 68 lands inside it.
	sectionedHeaderSize = 72
	wdc5Prefix          = 4 + 128

	wdc2SectionSize = 36
	sectionSize     = 40
)

// File is the validated block layout of a table.
type File struct {
	Magic           string
	RecordCount     uint32
	FieldCount      uint32
	RecordSize      uint32
	StringTableSize uint32

	// Flags is zero for the legacy family.
	Flags uint16

	// Sections holds one entry per section. Legacy tables and
	// sectioned tables declaring no sections have a single implicit
	// section.
	Sections []SectionLayout
}

// Sectioned reports whether the table belongs to the WDC2+ family.
func (f *File) Sectioned() bool {
	switch f.Magic {
	case MagicWDC2, MagicWDC3, MagicWDC5:
		return true
	}
	return false
}

// Sparse reports whether records are variable length.
func (f *File) Sparse() bool { return f.Flags&FlagSparse != 0 }

// SectionLayout locates one section's record and string data.
type SectionLayout struct {
	TactKeyHash  uint64
	RecordCount  uint32
	DataOffset   int
	DataSize     int
	StringOffset int
	StringSize   int
}

// Encrypted reports whether the section needs a TACT key.
func (s SectionLayout) Encrypted() bool { return s.TactKeyHash != 0 }

// Parse validates a table's header and section bounds.
func Parse(data []byte) (*File, error) {
	if len(data) < legacyHeaderSize {
		return nil, fmt.Errorf("db2 table of %d bytes: %w", len(data), cascerr.ErrInvalidConfig)
	}
	magic := string(data[:4])
	switch magic {
	case MagicWDB5, MagicWDB6, MagicWDC1:
		return parseLegacy(data, magic)
	case MagicWDC2, MagicWDC3, MagicWDC5:
		return parseSectioned(data, magic)
	}
	return nil, fmt.Errorf("db2 signature %q: %w", data[:4], cascerr.ErrInvalidConfig)
}

func parseLegacy(data []byte, magic string) (*File, error) {
	file := &File{
		Magic:           magic,
		RecordCount:     binary.LittleEndian.Uint32(data[4:]),
		FieldCount:      binary.LittleEndian.Uint32(data[8:]),
		RecordSize:      binary.LittleEndian.Uint32(data[12:]),
		StringTableSize: binary.LittleEndian.Uint32(data[16:]),
	}
	dataSize := uint64(file.RecordCount) * uint64(file.RecordSize)
	if err := checkRange(data, legacyHeaderSize, dataSize+uint64(file.StringTableSize), "records and strings"); err != nil {
		return nil, err
	}
	file.Sections = []SectionLayout{{
		RecordCount:  file.RecordCount,
		DataOffset:   legacyHeaderSize,
		DataSize:     int(dataSize),
		StringOffset: legacyHeaderSize + int(dataSize),
		StringSize:   int(file.StringTableSize),
	}}
	return file, nil
}

// headerOffset returns where the WDC2/WDC3 header fields start.
func headerOffset(magic string) int {
	if magic == MagicWDC5 {
		return wdc5Prefix
	}
	return 0
}

func parseSectioned(data []byte, magic string) (*File, error) {
	shift := headerOffset(magic)
	headerEnd := shift + sectionedHeaderSize
	if len(data) < headerEnd {
		return nil, fmt.Errorf("%s header needs %d bytes, have %d: %w", magic, headerEnd, len(data), cascerr.ErrInvalidConfig)
	}
	field := func(offset int) uint32 { return binary.LittleEndian.Uint32(data[shift+offset:]) }
	file := &File{
		Magic:           magic,
		RecordCount:     field(4),
		FieldCount:      field(8),
		RecordSize:      field(12),
		StringTableSize: field(16),
		Flags:           binary.LittleEndian.Uint16(data[shift+40:]),
	}
	sectionCount := field(68)

	if sectionCount == 0 {
		dataSize := uint64(file.RecordCount) * uint64(file.RecordSize)
		if err := checkRange(data, uint64(headerEnd), dataSize+uint64(file.StringTableSize), "implicit section"); err != nil {
			return nil, err
		}
		file.Sections = []SectionLayout{{
			RecordCount:  file.RecordCount,
			DataOffset:   headerEnd,
			DataSize:     int(dataSize),
			StringOffset: headerEnd + int(dataSize),
			StringSize:   int(file.StringTableSize),
		}}
		return file, nil
	}

	headerSize := sectionSize
	if magic == MagicWDC2 {
		headerSize = wdc2SectionSize
	}
	if err := checkRange(data, uint64(headerEnd), uint64(sectionCount)*uint64(headerSize), "section headers"); err != nil {
		return nil, err
	}

	for i := range int(sectionCount) {
		base := headerEnd + i*headerSize
		section := SectionLayout{
			TactKeyHash: binary.LittleEndian.Uint64(data[base:]),
			DataOffset:  int(binary.LittleEndian.Uint32(data[base+8:])),
			RecordCount: binary.LittleEndian.Uint32(data[base+12:]),
		}
		stringSize := uint64(binary.LittleEndian.Uint32(data[base+16:]))

		var dataSize uint64
		if file.Sparse() {
			// WDC2 stores the offset map position; later revisions
			// store the end of the variable-length record data.
			endField := 20
			if magic == MagicWDC2 {
				endField = 24
			}
			end := binary.LittleEndian.Uint32(data[base+endField:])
			if int(end) < section.DataOffset {
				return nil, fmt.Errorf("section %d: sparse data ends at %d before it starts at %d: %w",
					i, end, section.DataOffset, cascerr.ErrInvalidConfig)
			}
			dataSize = uint64(int(end) - section.DataOffset)
			stringSize = 0
		} else {
			dataSize = uint64(section.RecordCount) * uint64(file.RecordSize)
		}

		if err := checkRange(data, uint64(section.DataOffset), dataSize+stringSize, fmt.Sprintf("section %d", i)); err != nil {
			return nil, err
		}
		section.DataSize = int(dataSize)
		section.StringOffset = section.DataOffset + int(dataSize)
		section.StringSize = int(stringSize)
		file.Sections = append(file.Sections, section)
	}
	return file, nil
}

// checkRange fails unless [offset, offset+size) lies inside data.
func checkRange(data []byte, offset, size uint64, what string) error {
	end := offset + size
	if end < offset || end > uint64(len(data)) {
		return fmt.Errorf("%s: range %d+%d exceeds %d bytes: %w", what, offset, size, len(data), cascerr.ErrInvalidConfig)
	}
	return nil
}

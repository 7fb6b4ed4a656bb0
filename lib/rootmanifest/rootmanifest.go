// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rootmanifest

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// Magic is "MFST" read as a little-endian uint32.
const Magic = 0x4D465354

const (
	mfstHeaderSize   = 0x18
	legacyMFSTHeader = 12
)

// Options controls variant selection.
type Options struct {
	// LocaleMask keeps only groups whose locale intersects it. Zero
	// keeps every group.
	LocaleMask Locale
}

// Record is the selected variant of one asset.
type Record struct {
	ContentKey hashkey.ContentKey

	// NameHash is the record's stored name hash, or the FileDataHash
	// of its id when the group carries none.
	NameHash uint64

	Locale  Locale
	Content ContentFlags
}

// Manifest maps asset ids to records. It is read-only after Parse.
type Manifest struct {
	// Version is 0 for the legacy layout, otherwise the MFST version.
	Version int

	// Groups counts record groups read; Skipped counts those rejected
	// by the locale mask.
	Groups  int
	Skipped int

	records map[uint32]Record
}

// Lookup returns the content key for an asset id.
func (m *Manifest) Lookup(id uint32) (hashkey.ContentKey, bool) {
	record, ok := m.records[id]
	return record.ContentKey, ok
}

// Record returns the full selected record for an asset id.
func (m *Manifest) Record(id uint32) (Record, bool) {
	record, ok := m.records[id]
	return record, ok
}

// NameHash returns the name hash recorded for an asset id.
func (m *Manifest) NameHash(id uint32) (uint64, bool) {
	record, ok := m.records[id]
	return record.NameHash, ok
}

// Len returns the number of distinct asset ids.
func (m *Manifest) Len() int { return len(m.records) }

// IDs returns every asset id in ascending order.
func (m *Manifest) IDs() []uint32 {
	ids := make([]uint32, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type layout int

const (
	layoutLegacy layout = iota
	layoutMFSTv1
	layoutMFSTv2
)

// reader is a bounds-checked little-endian cursor.
type reader struct {
	data     []byte
	position int
}

func (r *reader) remaining() int { return len(r.data) - r.position }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("root manifest truncated at offset %d (need %d bytes): %w",
			r.position, n, cascerr.ErrInvalidConfig)
	}
	b := r.data[r.position : r.position+n]
	r.position += n
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Parse decodes a BLTE-decoded root manifest.
func Parse(data []byte, options Options) (*Manifest, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("root manifest of %d bytes: %w", len(data), cascerr.ErrInvalidConfig)
	}

	manifest := &Manifest{records: make(map[uint32]Record)}
	r := &reader{data: data}
	kind := layoutLegacy

	if binary.LittleEndian.Uint32(data[0:4]) == Magic {
		if len(data) < legacyMFSTHeader {
			return nil, fmt.Errorf("MFST header truncated: %w", cascerr.ErrInvalidConfig)
		}
		headerSize := binary.LittleEndian.Uint32(data[4:8])
		version := binary.LittleEndian.Uint32(data[8:12])
		switch {
		case headerSize != mfstHeaderSize:
			kind = layoutMFSTv1
			r.position = legacyMFSTHeader
		case version == 1:
			kind = layoutMFSTv1
			manifest.Version = 1
			r.position = mfstHeaderSize
		case version == 2:
			kind = layoutMFSTv2
			manifest.Version = 2
			r.position = mfstHeaderSize
		default:
			return nil, fmt.Errorf("MFST version %d: %w", version, cascerr.ErrInvalidConfig)
		}
		if r.position > len(data) {
			return nil, fmt.Errorf("MFST header truncated: %w", cascerr.ErrInvalidConfig)
		}
	}

	for r.remaining() > 0 {
		if err := manifest.parseGroup(r, kind, options); err != nil {
			return nil, fmt.Errorf("root manifest group %d: %w", manifest.Groups, err)
		}
		manifest.Groups++
	}
	return manifest, nil
}

func (m *Manifest) parseGroup(r *reader, kind layout, options Options) error {
	rawCount, err := r.uint32()
	if err != nil {
		return err
	}
	count := int(int32(rawCount))

	var locale Locale
	var content ContentFlags
	if kind == layoutMFSTv2 {
		localeValue, err := r.uint32()
		if err != nil {
			return err
		}
		first, err := r.uint32()
		if err != nil {
			return err
		}
		second, err := r.uint32()
		if err != nil {
			return err
		}
		third, err := r.uint8()
		if err != nil {
			return err
		}
		locale = Locale(localeValue)
		content = ContentFlags(first | second | uint32(third)<<17)
	} else {
		contentValue, err := r.uint32()
		if err != nil {
			return err
		}
		localeValue, err := r.uint32()
		if err != nil {
			return err
		}
		locale = Locale(localeValue)
		content = ContentFlags(contentValue)
	}

	if locale == 0 {
		return fmt.Errorf("zero locale flags: %w", cascerr.ErrInvalidConfig)
	}
	if content != 0 && content&ContentAllowedMask == 0 {
		return fmt.Errorf("content flags %#x outside the allowed set: %w", uint32(content), cascerr.ErrInvalidConfig)
	}
	if count < 0 || count > r.remaining()/4 {
		return fmt.Errorf("record count %d: %w", count, cascerr.ErrInvalidConfig)
	}

	ids := make([]uint32, count)
	next := int64(0)
	for i := range ids {
		delta, err := r.uint32()
		if err != nil {
			return err
		}
		id := next + int64(int32(delta))
		if id < 0 || id > 0xFFFFFFFF {
			return fmt.Errorf("asset id %d out of range: %w", id, cascerr.ErrInvalidConfig)
		}
		ids[i] = uint32(id)
		next = id + 1
	}

	keys := make([]hashkey.ContentKey, count)
	var hashes []uint64
	if kind == layoutLegacy {
		hashes = make([]uint64, count)
		for i := range keys {
			b, err := r.take(hashkey.Size + 8)
			if err != nil {
				return err
			}
			copy(keys[i][:], b[:hashkey.Size])
			hashes[i] = binary.LittleEndian.Uint64(b[hashkey.Size:])
		}
	} else {
		block, err := r.take(count * hashkey.Size)
		if err != nil {
			return err
		}
		for i := range keys {
			copy(keys[i][:], block[i*hashkey.Size:])
		}
		if content&ContentNoNameHash == 0 {
			block, err := r.take(count * 8)
			if err != nil {
				return err
			}
			hashes = make([]uint64, count)
			for i := range hashes {
				hashes[i] = binary.LittleEndian.Uint64(block[i*8:])
			}
		}
	}

	if options.LocaleMask != 0 && locale&options.LocaleMask == 0 {
		m.Skipped++
		return nil
	}

	for i, id := range ids {
		if _, exists := m.records[id]; exists {
			continue
		}
		record := Record{ContentKey: keys[i], Locale: locale, Content: content}
		if hashes != nil {
			record.NameHash = hashes[i]
		} else {
			record.NameHash = hashkey.FileDataHash(id)
		}
		m.records[id] = record
	}
	return nil
}

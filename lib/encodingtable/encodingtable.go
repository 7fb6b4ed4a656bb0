// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encodingtable

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/casc/lib/blte"
	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// HeaderSize is the fixed header length.
const HeaderSize = 22

// DefaultPageSize is used when a header declares a zero page size.
const DefaultPageSize = 4096

const (
	pageTableEntrySize = 32
	ekeyRecordSize     = hashkey.Size + 4 + 5
	noEspec            = -1
)

// Entry is one content key's record.
type Entry struct {
	// Size is the decoded content size.
	Size uint64
	// Keys are the encoding keys, in table order. Keys[0] is the
	// preferred representation.
	Keys []hashkey.EncodingKey
}

// Table is a parsed encoding table. It is read-only after Parse.
type Table struct {
	Version byte

	entries     map[hashkey.ContentKey]Entry
	contentKeys map[hashkey.EncodingKey]hashkey.ContentKey
	especs      []string
	especIndex  map[hashkey.EncodingKey]int
	encryption  map[hashkey.EncodingKey][]uint64
}

// Lookup returns the record for a content key.
func (t *Table) Lookup(key hashkey.ContentKey) (Entry, bool) {
	entry, ok := t.entries[key]
	return entry, ok
}

// ContentKeyFor maps an encoding key back to its content key.
func (t *Table) ContentKeyFor(key hashkey.EncodingKey) (hashkey.ContentKey, bool) {
	ckey, ok := t.contentKeys[key]
	return ckey, ok
}

// EncryptionKeys returns the TACT key names the encoding key's spec
// string references, or nil.
func (t *Table) EncryptionKeys(key hashkey.EncodingKey) []uint64 {
	return t.encryption[key]
}

// Spec returns the encoding spec string for an encoding key.
func (t *Table) Spec(key hashkey.EncodingKey) (string, bool) {
	index, ok := t.especIndex[key]
	if !ok {
		return "", false
	}
	return t.especs[index], true
}

// KeyNames returns every distinct TACT key name referenced by the
// table, sorted.
func (t *Table) KeyNames() []uint64 {
	seen := make(map[uint64]struct{})
	for _, names := range t.encryption {
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}
	names := make([]uint64, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of content keys.
func (t *Table) Len() int { return len(t.entries) }

// EncryptedLen returns the number of encoding keys with encrypted
// spec strings.
func (t *Table) EncryptedLen() int { return len(t.encryption) }

type header struct {
	version        byte
	ckeySize       int
	ekeySize       int
	ckeyPageSize   int
	ekeyPageSize   int
	ckeyPageCount  int
	ekeyPageCount  int
	especBlockSize int
}

func parseHeader(data []byte) (header, error) {
	if len(data) < HeaderSize {
		return header{}, fmt.Errorf("encoding header truncated at %d bytes: %w", len(data), cascerr.ErrInvalidConfig)
	}
	if data[0] != 'E' || data[1] != 'N' {
		return header{}, fmt.Errorf("encoding signature %q: %w", data[0:2], cascerr.ErrInvalidConfig)
	}
	parsed := header{
		version:        data[2],
		ckeySize:       int(data[3]),
		ekeySize:       int(data[4]),
		ckeyPageSize:   int(binary.BigEndian.Uint16(data[5:7])) * 1024,
		ekeyPageSize:   int(binary.BigEndian.Uint16(data[7:9])) * 1024,
		ckeyPageCount:  int(binary.BigEndian.Uint32(data[9:13])),
		ekeyPageCount:  int(binary.BigEndian.Uint32(data[13:17])),
		especBlockSize: int(binary.BigEndian.Uint32(data[18:22])),
	}
	if parsed.ckeySize != hashkey.Size || parsed.ekeySize != hashkey.Size {
		return header{}, fmt.Errorf("encoding key sizes %d/%d: %w",
			parsed.ckeySize, parsed.ekeySize, cascerr.ErrInvalidConfig)
	}
	if parsed.ckeyPageSize == 0 {
		parsed.ckeyPageSize = DefaultPageSize
	}
	if parsed.ekeyPageSize == 0 {
		parsed.ekeyPageSize = DefaultPageSize
	}
	return parsed, nil
}

// Parse decodes an encoding table. data is the BLTE-decoded file.
func Parse(data []byte) (*Table, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	table := &Table{
		Version:     h.version,
		entries:     make(map[hashkey.ContentKey]Entry),
		contentKeys: make(map[hashkey.EncodingKey]hashkey.ContentKey),
		especIndex:  make(map[hashkey.EncodingKey]int),
		encryption:  make(map[hashkey.EncodingKey][]uint64),
	}

	position := HeaderSize
	especEnd := position + h.especBlockSize
	if especEnd > len(data) {
		return nil, fmt.Errorf("encoding spec block of %d bytes exceeds file: %w", h.especBlockSize, cascerr.ErrInvalidConfig)
	}
	table.especs = strings.Split(string(data[position:especEnd]), "\x00")
	position = especEnd

	position, err = skipSection(data, position, h.ckeyPageCount*pageTableEntrySize, "content key page table")
	if err != nil {
		return nil, err
	}
	for page := range h.ckeyPageCount {
		end := position + h.ckeyPageSize
		if end > len(data) {
			return nil, fmt.Errorf("content key page %d of %d truncated: %w", page, h.ckeyPageCount, cascerr.ErrInvalidConfig)
		}
		table.parseContentPage(data[position:end])
		position = end
	}

	position, err = skipSection(data, position, h.ekeyPageCount*pageTableEntrySize, "encoding key page table")
	if err != nil {
		return nil, err
	}
	for page := range h.ekeyPageCount {
		end := position + h.ekeyPageSize
		if end > len(data) {
			return nil, fmt.Errorf("encoding key page %d of %d truncated: %w", page, h.ekeyPageCount, cascerr.ErrInvalidConfig)
		}
		if err := table.parseEncodingPage(data[position:end]); err != nil {
			return nil, fmt.Errorf("encoding key page %d: %w", page, err)
		}
		position = end
	}

	return table, nil
}

func skipSection(data []byte, position, length int, what string) (int, error) {
	if position+length > len(data) {
		return 0, fmt.Errorf("%s truncated: %w", what, cascerr.ErrInvalidConfig)
	}
	return position + length, nil
}

// parseContentPage reads records until the zero key count that starts
// the page's padding, or until the next record would not fit.
func (t *Table) parseContentPage(page []byte) {
	position := 0
	for position < len(page) {
		keyCount := int(page[position])
		if keyCount == 0 {
			return
		}
		recordSize := 1 + 5 + hashkey.Size + keyCount*hashkey.Size
		if position+recordSize > len(page) {
			return
		}
		record := page[position : position+recordSize]
		position += recordSize

		size := uint64(record[1])<<32 | uint64(binary.BigEndian.Uint32(record[2:6]))
		var ckey hashkey.ContentKey
		copy(ckey[:], record[6:6+hashkey.Size])

		keys := make([]hashkey.EncodingKey, keyCount)
		for i := range keys {
			start := 6 + hashkey.Size + i*hashkey.Size
			copy(keys[i][:], record[start:start+hashkey.Size])
			if _, exists := t.contentKeys[keys[i]]; !exists {
				t.contentKeys[keys[i]] = ckey
			}
		}
		if _, exists := t.entries[ckey]; !exists {
			t.entries[ckey] = Entry{Size: size, Keys: keys}
		}
	}
}

// parseEncodingPage reads 25-byte records until an all-ones spec
// index, an all-zero key, or the end of the page.
func (t *Table) parseEncodingPage(page []byte) error {
	for position := 0; position+ekeyRecordSize <= len(page); position += ekeyRecordSize {
		record := page[position : position+ekeyRecordSize]
		var ekey hashkey.EncodingKey
		copy(ekey[:], record[:hashkey.Size])
		especIndex := int(int32(binary.BigEndian.Uint32(record[hashkey.Size : hashkey.Size+4])))
		if especIndex == noEspec || ekey.IsZero() {
			return nil
		}
		if especIndex < 0 || especIndex >= len(t.especs) {
			return fmt.Errorf("spec index %d out of %d for %s: %w", especIndex, len(t.especs), ekey, cascerr.ErrInvalidConfig)
		}
		if _, exists := t.especIndex[ekey]; exists {
			continue
		}
		t.especIndex[ekey] = especIndex
		if names := blte.EncryptionKeyNames(t.especs[especIndex]); len(names) > 0 {
			t.encryption[ekey] = names
		}
	}
	return nil
}

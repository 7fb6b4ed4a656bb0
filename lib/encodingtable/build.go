// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encodingtable

import (
	"encoding/binary"
	"strings"

	"github.com/bureau-foundation/casc/lib/hashkey"
)

// Record is a content-key record for Build.
type Record struct {
	ContentKey hashkey.ContentKey
	Size       uint64
	Keys       []hashkey.EncodingKey
}

// SpecRecord pairs an encoding key with an index into the spec strings
// given to Build.
type SpecRecord struct {
	Key  hashkey.EncodingKey
	Spec int
	Size uint64
}

// Build encodes an encoding table with 4 KiB pages. It exists for
// tests that need a table without a game installation.
func Build(records []Record, especs []string, specRecords []SpecRecord) []byte {
	var contentRecords [][]byte
	for _, record := range records {
		encoded := []byte{byte(len(record.Keys))}
		encoded = appendUint40(encoded, record.Size)
		encoded = append(encoded, record.ContentKey[:]...)
		for _, key := range record.Keys {
			encoded = append(encoded, key[:]...)
		}
		contentRecords = append(contentRecords, encoded)
	}
	var encodingRecords [][]byte
	for _, record := range specRecords {
		encoded := append([]byte(nil), record.Key[:]...)
		encoded = binary.BigEndian.AppendUint32(encoded, uint32(int32(record.Spec)))
		encoded = appendUint40(encoded, record.Size)
		encodingRecords = append(encodingRecords, encoded)
	}

	contentPages := paginate(contentRecords, DefaultPageSize)
	encodingPages := paginate(encodingRecords, DefaultPageSize)
	especBlock := []byte(strings.Join(especs, "\x00") + "\x00")

	out := []byte{'E', 'N', 1, hashkey.Size, hashkey.Size}
	out = binary.BigEndian.AppendUint16(out, DefaultPageSize/1024)
	out = binary.BigEndian.AppendUint16(out, DefaultPageSize/1024)
	out = binary.BigEndian.AppendUint32(out, uint32(len(contentPages)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(encodingPages)))
	out = append(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(especBlock)))
	out = append(out, especBlock...)

	out = appendPageTable(out, contentPages, 6)
	for _, page := range contentPages {
		out = append(out, page...)
	}
	out = appendPageTable(out, encodingPages, 0)
	for _, page := range encodingPages {
		out = append(out, page...)
	}
	return out
}

func appendUint40(b []byte, value uint64) []byte {
	b = append(b, byte(value>>32))
	return binary.BigEndian.AppendUint32(b, uint32(value))
}

// paginate packs records into zero-padded pages without splitting any.
func paginate(records [][]byte, pageSize int) [][]byte {
	var pages [][]byte
	var current []byte
	for _, record := range records {
		if len(current)+len(record) > pageSize {
			pages = append(pages, padPage(current, pageSize))
			current = nil
		}
		current = append(current, record...)
	}
	if len(current) > 0 {
		pages = append(pages, padPage(current, pageSize))
	}
	return pages
}

func padPage(page []byte, pageSize int) []byte {
	return append(page, make([]byte, pageSize-len(page))...)
}

// appendPageTable writes each page's first key (read at keyOffset)
// and MD5.
func appendPageTable(b []byte, pages [][]byte, keyOffset int) []byte {
	for _, page := range pages {
		b = append(b, page[keyOffset:keyOffset+hashkey.Size]...)
		sum := hashkey.Sum(page)
		b = append(b, sum[:]...)
	}
	return b
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encodingtable

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

func contentKey(i int) hashkey.ContentKey {
	var key hashkey.ContentKey
	key[0] = 0xC0
	binary.BigEndian.PutUint32(key[12:], uint32(i)+1)
	return key
}

func encodingKey(i, variant int) hashkey.EncodingKey {
	var key hashkey.EncodingKey
	key[0] = 0xE0
	key[1] = byte(variant)
	binary.BigEndian.PutUint32(key[12:], uint32(i)+1)
	return key
}

const encryptedSpec = "b:{256K*=e:{3ECB6A12785050FA,01020304,z}}"

func TestParse(t *testing.T) {
	records := []Record{
		{ContentKey: contentKey(0), Size: 16, Keys: []hashkey.EncodingKey{encodingKey(0, 0)}},
		{ContentKey: contentKey(1), Size: 1 << 33, Keys: []hashkey.EncodingKey{encodingKey(1, 0), encodingKey(1, 1)}},
	}
	especs := []string{"n", encryptedSpec}
	specRecords := []SpecRecord{
		{Key: encodingKey(0, 0), Spec: 0, Size: 46},
		{Key: encodingKey(1, 0), Spec: 1, Size: 100},
	}

	table, err := Parse(Build(records, especs, specRecords))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len = %d, want 2", table.Len())
	}

	entry, ok := table.Lookup(contentKey(1))
	if !ok {
		t.Fatal("content key 1 missing")
	}
	if entry.Size != 1<<33 {
		t.Errorf("Size = %d, want 40-bit value %d", entry.Size, uint64(1)<<33)
	}
	if !slices.Equal(entry.Keys, records[1].Keys) {
		t.Errorf("Keys = %v, want %v", entry.Keys, records[1].Keys)
	}

	if ckey, ok := table.ContentKeyFor(encodingKey(1, 1)); !ok || ckey != contentKey(1) {
		t.Errorf("ContentKeyFor = %s, %v", ckey, ok)
	}
	if _, ok := table.Lookup(contentKey(9)); ok {
		t.Error("unknown content key found")
	}

	if spec, ok := table.Spec(encodingKey(0, 0)); !ok || spec != "n" {
		t.Errorf("Spec = %q, %v", spec, ok)
	}
	names := table.EncryptionKeys(encodingKey(1, 0))
	if len(names) != 1 || names[0] != 0xFA505078126ACB3E {
		t.Errorf("EncryptionKeys = %x", names)
	}
	if names := table.EncryptionKeys(encodingKey(0, 0)); names != nil {
		t.Errorf("unencrypted key has names %x", names)
	}
	if got := table.KeyNames(); !slices.Equal(got, []uint64{0xFA505078126ACB3E}) {
		t.Errorf("KeyNames = %x", got)
	}
	if table.EncryptedLen() != 1 {
		t.Errorf("EncryptedLen = %d, want 1", table.EncryptedLen())
	}
}

func TestParse_MultiplePages(t *testing.T) {
	// 38-byte records: 107 fit in a 4 KiB page, so 300 span three.
	const count = 300
	var records []Record
	var specRecords []SpecRecord
	for i := range count {
		records = append(records, Record{ContentKey: contentKey(i), Size: uint64(i), Keys: []hashkey.EncodingKey{encodingKey(i, 0)}})
		specRecords = append(specRecords, SpecRecord{Key: encodingKey(i, 0), Spec: i % 2})
	}
	data := Build(records, []string{"n", encryptedSpec}, specRecords)
	if pages := binary.BigEndian.Uint32(data[9:13]); pages != 3 {
		t.Fatalf("fixture has %d content pages, want 3", pages)
	}

	table, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != count {
		t.Errorf("Len = %d, want %d", table.Len(), count)
	}
	for _, i := range []int{0, 106, 107, 213, 214, 299} {
		entry, ok := table.Lookup(contentKey(i))
		if !ok || entry.Size != uint64(i) || entry.Keys[0] != encodingKey(i, 0) {
			t.Errorf("record %d = %+v, %v", i, entry, ok)
		}
	}
	if table.EncryptedLen() != count/2 {
		t.Errorf("EncryptedLen = %d, want %d", table.EncryptedLen(), count/2)
	}
}

func TestParse_FullPage(t *testing.T) {
	// Seven single-key records (38 bytes each) and one 238-key record
	// (3830 bytes) fill a page exactly, leaving no zero key count. The
	// next page must still be read from its own boundary.
	var records []Record
	for i := range 7 {
		records = append(records, Record{ContentKey: contentKey(i), Keys: []hashkey.EncodingKey{encodingKey(i, 0)}})
	}
	wide := make([]hashkey.EncodingKey, 238)
	for j := range wide {
		wide[j] = encodingKey(7, j)
	}
	records = append(records, Record{ContentKey: contentKey(7), Keys: wide})
	records = append(records, Record{ContentKey: contentKey(8), Keys: []hashkey.EncodingKey{encodingKey(8, 0)}})

	data := Build(records, []string{"n"}, nil)
	if pages := binary.BigEndian.Uint32(data[9:13]); pages != 2 {
		t.Fatalf("fixture has %d content pages, want 2", pages)
	}

	table, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != len(records) {
		t.Errorf("Len = %d, want %d", table.Len(), len(records))
	}
	entry, ok := table.Lookup(contentKey(7))
	if !ok || len(entry.Keys) != 238 {
		t.Errorf("page-filling record = %d keys, %v", len(entry.Keys), ok)
	}
	if _, ok := table.Lookup(contentKey(8)); !ok {
		t.Error("record on the page after a full page missing")
	}
}

func TestParse_Malformed(t *testing.T) {
	valid := Build([]Record{{ContentKey: contentKey(0), Keys: []hashkey.EncodingKey{encodingKey(0, 0)}}},
		[]string{"n"}, []SpecRecord{{Key: encodingKey(0, 0), Spec: 0}})

	badSignature := slices.Clone(valid)
	badSignature[0] = 'X'

	badKeySize := slices.Clone(valid)
	badKeySize[3] = 9

	hugeSpecBlock := slices.Clone(valid)
	binary.BigEndian.PutUint32(hugeSpecBlock[18:22], 1<<30)

	extraPages := slices.Clone(valid)
	binary.BigEndian.PutUint32(extraPages[9:13], 5)

	badSpecIndex := Build(nil, []string{"n"}, []SpecRecord{{Key: encodingKey(0, 0), Spec: 7}})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:HeaderSize-1]},
		{"signature", badSignature},
		{"key size", badKeySize},
		{"spec block past end", hugeSpecBlock},
		{"pages past end", extraPages},
		{"truncated encoding page", valid[:len(valid)-1]},
		{"spec index out of range", badSpecIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, cascerr.ErrInvalidConfig) {
				t.Errorf("Parse error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParse_FirstRecordWins(t *testing.T) {
	records := []Record{
		{ContentKey: contentKey(0), Size: 1, Keys: []hashkey.EncodingKey{encodingKey(0, 0)}},
		{ContentKey: contentKey(0), Size: 2, Keys: []hashkey.EncodingKey{encodingKey(0, 1)}},
	}
	table, err := Parse(Build(records, []string{"n"}, nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry, _ := table.Lookup(contentKey(0))
	if entry.Size != 1 {
		t.Errorf("Size = %d, want the first record's 1", entry.Size)
	}
}

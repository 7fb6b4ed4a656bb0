// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// Dense fixture layout, 8-byte records:
//
//	bits  0-9   level    immediate
//	bits 10-15  delta    signed immediate
//	bits 16-17  tier     pallet index
//	bit  18     pair     pallet array index (cardinality 2)
//	            bonus    common, default 7
//	bits 32-63  name     string offset
const (
	fixtureLayout     = 0x00C0FFEE
	fixtureRecordSize = 8
	nameByteOffset    = 4
)

var (
	tierPallet = []uint32{100, 200, 300}
	pairPallet = []uint32{1, 2, 3, 4}
	strings0   = []byte("\x00alpha\x00beta\x00gamma\x00")
)

type fixtureRow struct {
	level uint64
	delta int64
	tier  uint64
	pair  uint64
	name  int
}

func fixtureColumns() []BuildColumn {
	return []BuildColumn{
		{Column: Column{OffsetBits: 0, SizeBits: 10, Compression: CompressionImmediate, Val2: 10}, FieldSize: 16},
		{Column: Column{OffsetBits: 10, SizeBits: 6, Compression: CompressionSignedImmediate, Val2: 6}, FieldSize: 24},
		{Column: Column{OffsetBits: 16, SizeBits: 2, Compression: CompressionPallet, Val2: 2}, FieldSize: 0, Pallet: tierPallet},
		{Column: Column{OffsetBits: 18, SizeBits: 1, Compression: CompressionPalletArray, Val2: 1, Val3: 2}, FieldSize: 0, Pallet: pairPallet},
		{Column: Column{Compression: CompressionCommon, Val1: 7}, FieldSize: 0, Common: []CommonValue{{ID: 11, Value: 42}}},
		{Column: Column{OffsetBits: 32, SizeBits: 32, Compression: CompressionNone}, FieldSize: 0},
	}
}

// denseTable lays rows out across the given sections. Records are
// filled after the section shapes are known so string offsets account
// for every section.
func denseTable(sections []BuildSection, rows [][]fixtureRow) BuildTable {
	fixture := BuildTable{
		LayoutHash: fixtureLayout,
		RecordSize: fixtureRecordSize,
		Columns:    fixtureColumns(),
		Sections:   sections,
	}
	for i := range fixture.Sections {
		fixture.Sections[i].Records = make([][]byte, len(rows[i]))
	}
	global, stringBase := 0, 0
	for i := range fixture.Sections {
		for j, row := range rows[i] {
			writer := NewBitWriter(fixtureRecordSize).
				Put(0, 10, row.level).
				Put(10, 6, uint64(row.delta)).
				Put(16, 2, row.tier).
				Put(18, 1, row.pair)
			if row.name >= 0 {
				writer.Put(32, 32, uint64(fixture.StringRef(global, nameByteOffset, stringBase+row.name)))
			}
			fixture.Sections[i].Records[j] = writer.Bytes()
			global++
		}
		stringBase += len(fixture.Sections[i].Strings)
	}
	return fixture
}

func singleSection() BuildTable {
	return denseTable(
		[]BuildSection{{Strings: strings0, IDs: []uint32{10, 11, 12}}},
		[][]fixtureRow{{
			{level: 1000, delta: -5, tier: 2, pair: 1, name: 1},
			{level: 3, delta: 31, tier: 0, pair: 0, name: 7},
			{level: 0, delta: -32, tier: 1, pair: 1, name: 12},
		}},
	)
}

func mustParseWDC5(t *testing.T, data []byte) *Table {
	t.Helper()
	table, err := ParseWDC5(data)
	if err != nil {
		t.Fatalf("ParseWDC5: %v", err)
	}
	return table
}

func TestParseWDC5_Columns(t *testing.T) {
	table := mustParseWDC5(t, Build(singleSection()))

	if table.Header.LayoutHash != fixtureLayout || table.Header.Version != 5 {
		t.Errorf("header = %+v", table.Header)
	}
	if table.Header.MinID != 10 || table.Header.MaxID != 12 {
		t.Errorf("id range = %d..%d", table.Header.MinID, table.Header.MaxID)
	}
	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}

	type want struct {
		id    uint32
		level uint64
		delta int64
		tier  uint64
		pair  []uint64
		bonus uint64
		name  string
	}
	wants := []want{
		{10, 1000, -5, 300, []uint64{3, 4}, 7, "alpha"},
		{11, 3, 31, 100, []uint64{1, 2}, 42, "beta"},
		{12, 0, -32, 200, []uint64{3, 4}, 7, "gamma"},
	}
	for i, row := range table.Rows() {
		w := wants[i]
		if row.ID() != w.id {
			t.Errorf("row %d: ID = %d, want %d", i, row.ID(), w.id)
		}
		if got, err := row.Uint(0); err != nil || got != w.level {
			t.Errorf("row %d: level = %d, %v; want %d", i, got, err, w.level)
		}
		if got, err := row.Int(1); err != nil || got != w.delta {
			t.Errorf("row %d: delta = %d, %v; want %d", i, got, err, w.delta)
		}
		if got, err := row.Uint(2); err != nil || got != w.tier {
			t.Errorf("row %d: tier = %d, %v; want %d", i, got, err, w.tier)
		}
		if got, err := row.Array(3); err != nil || !reflect.DeepEqual(got, w.pair) {
			t.Errorf("row %d: pair = %v, %v; want %v", i, got, err, w.pair)
		}
		if got, err := row.Uint(4); err != nil || got != w.bonus {
			t.Errorf("row %d: bonus = %d, %v; want %d", i, got, err, w.bonus)
		}
		if got, err := row.String(5); err != nil || got != w.name {
			t.Errorf("row %d: name = %q, %v; want %q", i, got, err, w.name)
		}
	}
}

func TestParseWDC5_PalletValuesComeFromPallet(t *testing.T) {
	table := mustParseWDC5(t, Build(singleSection()))
	for i, row := range table.Rows() {
		index, err := row.bits(16, 2)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		value, err := row.Uint(2)
		if err != nil {
			t.Fatalf("row %d: Uint: %v", i, err)
		}
		if value != uint64(tierPallet[index]) {
			t.Errorf("row %d: value %d, want pallet[%d] = %d", i, value, index, tierPallet[index])
		}
	}
}

func TestParseWDC5_Deterministic(t *testing.T) {
	data := Build(singleSection())
	first := mustParseWDC5(t, data)
	second := mustParseWDC5(t, data)
	for i := range first.Rows() {
		a, b := first.Rows()[i], second.Rows()[i]
		for col := range first.Columns {
			x, errX := a.Array(col)
			y, errY := b.Array(col)
			if errX != nil || errY != nil || !reflect.DeepEqual(x, y) {
				t.Errorf("row %d column %d: %v/%v vs %v/%v", i, col, x, errX, y, errY)
			}
		}
	}
}

func TestParseWDC5_CopyTable(t *testing.T) {
	fixture := singleSection()
	fixture.Sections[0].Copies = []CopyValue{{ID: 20, Source: 11}, {ID: 21, Source: 10}, {ID: 22, Source: 20}}
	table := mustParseWDC5(t, Build(fixture))

	if table.Len() != 6 {
		t.Fatalf("Len = %d, want 6", table.Len())
	}
	row, ok := table.Lookup(20)
	if !ok {
		t.Fatal("copy 20 not found")
	}
	if row.ID() != 20 || row.CopyOf() != 11 {
		t.Errorf("copy: ID %d CopyOf %d", row.ID(), row.CopyOf())
	}
	if name, err := row.String(5); err != nil || name != "beta" {
		t.Errorf("copy name = %q, %v", name, err)
	}
	// Common values follow the stored record, not the copy's id.
	for id, want := range map[uint32]uint64{20: 42, 21: 7, 22: 42} {
		copied, ok := table.Lookup(id)
		if !ok {
			t.Fatalf("copy %d not found", id)
		}
		if bonus, err := copied.Uint(4); err != nil || bonus != want {
			t.Errorf("copy %d bonus = %d, %v; want %d", id, bonus, err, want)
		}
	}
	if original, _ := table.Lookup(11); original.CopyOf() != 0 {
		t.Error("source row marked as a copy")
	}
	if _, ok := table.Lookup(99); ok {
		t.Error("Lookup(99) found a row")
	}

	fixture.Sections[0].Copies = []CopyValue{{ID: 21, Source: 404}}
	if _, err := ParseWDC5(Build(fixture)); !errors.Is(err, cascerr.ErrInvalidConfig) {
		t.Errorf("dangling copy: error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseWDC5_EncryptedSectionSkipped(t *testing.T) {
	encryptedStrings := []byte("\x00secret\x00")
	fixture := denseTable(
		[]BuildSection{
			{TactKeyHash: 0xFA505078126ACB3E, Strings: encryptedStrings, IDs: []uint32{1, 2}},
			{Strings: strings0, IDs: []uint32{10, 11}},
		},
		[][]fixtureRow{
			{{level: 1, name: 1}, {level: 2, name: 1}},
			{{level: 5, name: 1}, {level: 6, name: 12}},
		},
	)
	table := mustParseWDC5(t, Build(fixture))

	if len(table.Sections) != 2 {
		t.Fatalf("sections = %d", len(table.Sections))
	}
	if !table.Sections[0].Encrypted() || table.Sections[0].Rows != 0 {
		t.Errorf("section 0 = %+v, want encrypted with no rows", table.Sections[0])
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
	if _, ok := table.Lookup(1); ok {
		t.Error("row from the encrypted section was decoded")
	}
	row, _ := table.Lookup(11)
	if level, _ := row.Uint(0); level != 6 {
		t.Errorf("level = %d, want 6", level)
	}
	if name, err := row.String(5); err != nil || name != "gamma" {
		t.Errorf("name = %q, %v; want gamma", name, err)
	}
}

func TestParseWDC5_EncryptedSectionBounds(t *testing.T) {
	fixture := denseTable(
		[]BuildSection{
			{Strings: strings0, IDs: []uint32{10}},
			{TactKeyHash: 0xFA505078126ACB3E, Strings: []byte("\x00secret\x00"), IDs: []uint32{1}},
		},
		[][]fixtureRow{{{level: 5, name: 1}}, {{level: 1, name: 1}}},
	)
	valid := Build(fixture)
	mustParseWDC5(t, valid)

	second := wdc5Prefix + sectionedHeaderSize + sectionSize
	tests := []struct {
		name   string
		offset int
		value  uint32
	}{
		{"record count", second + 12, 1_000_000},
		{"string table size", second + 16, uint32(len(valid))},
		{"file offset", second + 8, uint32(len(valid))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), valid...)
			binary.LittleEndian.PutUint32(data[tt.offset:], tt.value)
			if _, err := ParseWDC5(data); !errors.Is(err, cascerr.ErrInvalidConfig) {
				t.Errorf("ParseWDC5: error = %v, want ErrInvalidConfig", err)
			}
			if _, err := Parse(data); !errors.Is(err, cascerr.ErrInvalidConfig) {
				t.Errorf("Parse: error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseWDC5_IDColumn(t *testing.T) {
	fixture := singleSection()
	fixture.Sections[0].IDs = nil
	fixture.IDIndex = 0
	table := mustParseWDC5(t, Build(fixture))
	for _, id := range []uint32{1000, 3, 0} {
		if _, ok := table.Lookup(id); !ok {
			t.Errorf("id %d from the id column not found", id)
		}
	}
}

func TestParseWDC5_ParentLookup(t *testing.T) {
	fixture := singleSection()
	fixture.Sections[0].Parents = []ParentValue{{Parent: 77, Record: 1}}
	table := mustParseWDC5(t, Build(fixture))

	rows := table.Rows()
	if parent, ok := rows[1].Parent(); !ok || parent != 77 {
		t.Errorf("row 1 parent = %d, %v; want 77", parent, ok)
	}
	if _, ok := rows[0].Parent(); ok {
		t.Error("row 0 has a parent")
	}
}

func TestParseWDC5_Sparse(t *testing.T) {
	record := func(value uint32, name string) []byte {
		b := binary.LittleEndian.AppendUint32(nil, value)
		return append(append(b, name...), 0)
	}
	fixture := BuildTable{
		LayoutHash: fixtureLayout,
		Flags:      FlagSparse,
		Columns: []BuildColumn{
			{Column: Column{OffsetBits: 0, SizeBits: 32, Compression: CompressionNone}},
			{Column: Column{OffsetBits: 32, Compression: CompressionNone}},
		},
		Sections: []BuildSection{{
			Records: [][]byte{record(7, "Stormwind"), record(9, ""), record(0xFFFFFFFF, "Orgrimmar")},
			IDs:     []uint32{1519, 1637, 1},
		}},
	}
	table := mustParseWDC5(t, Build(fixture))

	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}
	tests := []struct {
		id    uint32
		value int64
		name  string
	}{
		{1519, 7, "Stormwind"},
		{1637, 9, ""},
		{1, -1, "Orgrimmar"},
	}
	for _, tt := range tests {
		row, ok := table.Lookup(tt.id)
		if !ok {
			t.Errorf("id %d not found", tt.id)
			continue
		}
		if value, err := row.Int(0); err != nil || value != tt.value {
			t.Errorf("id %d: value = %d, %v; want %d", tt.id, value, err, tt.value)
		}
		if name, err := row.String(1); err != nil || name != tt.name {
			t.Errorf("id %d: name = %q, %v; want %q", tt.id, name, err, tt.name)
		}
	}
}

func TestParseWDC5_Malformed(t *testing.T) {
	valid := Build(singleSection())
	headerEnd := wdc5Prefix + sectionedHeaderSize

	corrupt := func(mutate func([]byte)) []byte {
		data := append([]byte(nil), valid...)
		mutate(data)
		return data
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", append([]byte("WDC3"), valid[4:]...)},
		{"truncated header", valid[:100]},
		{"truncated records", valid[:len(valid)-20]},
		{"section past end", corrupt(func(d []byte) {
			binary.LittleEndian.PutUint32(d[headerEnd+8:], uint32(len(d)))
		})},
		{"unknown compression", corrupt(func(d []byte) {
			columns := headerEnd + sectionSize + 6*fieldSize
			binary.LittleEndian.PutUint32(d[columns+8:], 6)
		})},
		{"field count above total", corrupt(func(d []byte) {
			binary.LittleEndian.PutUint32(d[wdc5Prefix+8:], 99)
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWDC5(tt.data); !errors.Is(err, cascerr.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRow_Errors(t *testing.T) {
	fixture := singleSection()
	fixture.Sections[0].Records[0] = NewBitWriter(fixtureRecordSize).Put(16, 2, 3).Bytes()
	table := mustParseWDC5(t, Build(fixture))
	row, _ := table.Lookup(10)

	if _, err := row.Uint(2); !errors.Is(err, cascerr.ErrInvalidConfig) {
		t.Errorf("pallet index past end: error = %v, want ErrInvalidConfig", err)
	}
	if _, err := row.Uint(len(table.Columns)); !errors.Is(err, cascerr.ErrInvalidConfig) {
		t.Errorf("column out of range: error = %v, want ErrInvalidConfig", err)
	}
	if _, err := (Row{}).Uint(0); err == nil {
		t.Error("zero Row read succeeded")
	}

	// An offset that lands outside every string table.
	fixture.Sections[0].Records[0] = NewBitWriter(fixtureRecordSize).Put(32, 32, 0xFFFF).Bytes()
	table = mustParseWDC5(t, Build(fixture))
	row, _ = table.Lookup(10)
	if _, err := row.String(5); !errors.Is(err, cascerr.ErrInvalidConfig) {
		t.Errorf("string offset past end: error = %v, want ErrInvalidConfig", err)
	}
}

func TestCompressionKind(t *testing.T) {
	if CompressionPalletArray.String() != "pallet-array" {
		t.Errorf("String = %s", CompressionPalletArray)
	}
	if CompressionKind(6).Valid() || !CompressionSignedImmediate.Valid() {
		t.Error("Valid disagrees with the six known kinds")
	}
	if CompressionKind(9).String() != "compression(9)" {
		t.Errorf("String = %s", CompressionKind(9))
	}
}

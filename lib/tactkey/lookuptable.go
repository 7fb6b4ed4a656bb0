// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tactkey

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// File data ids of the key tables shipped inside the game data.
const (
	TactKeyFileDataID       = 1302850
	TactKeyLookupFileDataID = 1302851
)

const (
	buildStringOffset = 8
	buildStringLength = 128
)

var staticMarker = []byte("WOWSTATIC_")

// StaticPayload checks that b carries a WOWSTATIC build string and
// returns the bytes after it.
func StaticPayload(b []byte) ([]byte, error) {
	end := buildStringOffset + buildStringLength
	if len(b) < end {
		return nil, fmt.Errorf("static table is %d bytes: %w", len(b), cascerr.ErrInvalidConfig)
	}
	if !bytes.Contains(b[buildStringOffset:end], staticMarker) {
		return nil, fmt.Errorf("static table has no WOWSTATIC build string: %w", cascerr.ErrInvalidConfig)
	}
	return b[end:], nil
}

// HeaderConstraints describe a plausible record header: four
// little-endian words (count, unknown1, record size, unknown2).
type HeaderConstraints struct {
	// RecordSize must match the third word exactly.
	RecordSize uint32

	// MaxCount is an exclusive bound on the count; zero is rejected.
	MaxCount uint32

	// MaxUnknown1 is an exclusive bound on the second word, which must
	// also be nonzero.
	MaxUnknown1 uint32

	// MaxUnknown2 is an exclusive bound on the fourth word.
	MaxUnknown2 uint32
}

var (
	// KeyTableHeader matches the TactKey table: 16-byte keys.
	KeyTableHeader = HeaderConstraints{RecordSize: 16, MaxCount: 100_000, MaxUnknown1: 0x100, MaxUnknown2: 0x10000}

	// LookupTableHeader matches the TactKeyLookup table: 8-byte names.
	LookupTableHeader = HeaderConstraints{RecordSize: 8, MaxCount: 100_000, MaxUnknown1: 0x100, MaxUnknown2: 0x10000}
)

// FindPlausibleHeader scans b at 4-byte steps for the first header
// satisfying constraints and returns its offset and record count.
func FindPlausibleHeader(b []byte, constraints HeaderConstraints) (int, uint32, bool) {
	for offset := 0; offset+16 < len(b); offset += 4 {
		count := binary.LittleEndian.Uint32(b[offset:])
		unknown1 := binary.LittleEndian.Uint32(b[offset+4:])
		recordSize := binary.LittleEndian.Uint32(b[offset+8:])
		unknown2 := binary.LittleEndian.Uint32(b[offset+12:])

		if count == 0 || count >= constraints.MaxCount {
			continue
		}
		if unknown1 == 0 || unknown1 >= constraints.MaxUnknown1 || unknown2 >= constraints.MaxUnknown2 {
			continue
		}
		if recordSize == constraints.RecordSize {
			return offset, count, true
		}
	}
	return 0, 0, false
}

// idLayout describes how ids are packed into the high bits of a word.
type idLayout struct {
	shift     uint
	max       uint32
	allowZero bool
}

var (
	keyTableIDs  = idLayout{shift: 16, max: 5_000_000}
	lookupIDs24  = idLayout{shift: 24, max: 100_000, allowZero: true}
	lookupIDs16  = idLayout{shift: 16, max: 5_000_000, allowZero: true}
	lookupLayout = []idLayout{lookupIDs24, lookupIDs16}
)

// findIDTable searches backward from the end of b for count words that
// all fit layout and never decrease, starting no earlier than
// minOffset.
func findIDTable(b []byte, minOffset, count int, layout idLayout) (int, bool) {
	tableLength := count * 4
	if count < 0 || len(b) < tableLength {
		return 0, false
	}
	lowMask := uint32(1)<<layout.shift - 1
	maxStart := len(b) - tableLength

	for start := maxStart - maxStart%4; start >= minOffset; start -= 4 {
		if idRunFits(b[start:start+tableLength], lowMask, layout) {
			return start, true
		}
	}
	return 0, false
}

func idRunFits(table []byte, lowMask uint32, layout idLayout) bool {
	previous := uint32(0)
	for i := 0; i < len(table); i += 4 {
		value := binary.LittleEndian.Uint32(table[i:])
		if value&lowMask != 0 {
			return false
		}
		id := value >> layout.shift
		if (id == 0 && !layout.allowZero) || id > layout.max || id < previous {
			return false
		}
		previous = id
	}
	return true
}

// ParseKeyTable extracts id -> key from a TactKey payload (the bytes
// after the build string). The keys sit immediately before the id
// table.
func ParseKeyTable(payload []byte) (map[uint32][KeySize]byte, error) {
	headerOffset, count, ok := FindPlausibleHeader(payload, KeyTableHeader)
	if !ok {
		return nil, fmt.Errorf("no plausible key table header: %w", cascerr.ErrInvalidConfig)
	}
	records := int(count)
	tableStart, ok := findIDTable(payload, headerOffset, records, keyTableIDs)
	if !ok {
		return nil, fmt.Errorf("no id table for %d keys: %w", records, cascerr.ErrInvalidConfig)
	}
	keysStart := tableStart - records*KeySize
	if keysStart < 0 {
		return nil, fmt.Errorf("key blob would start before the payload: %w", cascerr.ErrInvalidConfig)
	}

	keys := make(map[uint32][KeySize]byte, records)
	for i := 0; i < records; i++ {
		id := binary.LittleEndian.Uint32(payload[tableStart+4*i:]) >> keyTableIDs.shift
		var key [KeySize]byte
		copy(key[:], payload[keysStart+KeySize*i:])
		keys[id] = key
	}
	return keys, nil
}

// ParseLookupTable extracts key name -> id from a TactKeyLookup
// payload. Builds disagree on the id width and on whether the header
// count includes a sentinel, so every workable layout is parsed and
// the one that resolves the most probe names to their known keys
// through keysByID wins, preferring the larger count on a tie.
func ParseLookupTable(payload []byte, keysByID map[uint32][KeySize]byte) (map[uint64]uint32, error) {
	headerOffset, headerCount, ok := FindPlausibleHeader(payload, LookupTableHeader)
	if !ok {
		return nil, fmt.Errorf("no plausible lookup table header: %w", cascerr.ErrInvalidConfig)
	}
	count := int(headerCount)

	tableStart, layout, ok := findLookupIDTable(payload, headerOffset, count)
	if !ok {
		tableStart, layout, ok = findLookupIDTable(payload, headerOffset, count-1)
	}
	if !ok {
		return nil, fmt.Errorf("no id table for %d lookups: %w", count, cascerr.ErrInvalidConfig)
	}

	probes := probeKeys()
	var best map[uint64]uint32
	bestScore, bestCount := -1, 0
	for _, candidate := range []int{count, count - 1} {
		if candidate <= 0 {
			continue
		}
		lookup, ok := parseLookupWithCount(payload, tableStart, layout, candidate)
		if !ok {
			continue
		}
		score := scoreLookup(lookup, keysByID, probes)
		if score > bestScore || (score == bestScore && candidate > bestCount) {
			best, bestScore, bestCount = lookup, score, candidate
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no lookup layout parsed: %w", cascerr.ErrInvalidConfig)
	}
	return best, nil
}

func findLookupIDTable(payload []byte, minOffset, count int) (int, idLayout, bool) {
	for _, layout := range lookupLayout {
		if start, ok := findIDTable(payload, minOffset, count, layout); ok {
			return start, layout, true
		}
	}
	return 0, idLayout{}, false
}

// parseLookupWithCount pairs count names, which end where the id
// table starts, with the first count ids.
func parseLookupWithCount(payload []byte, tableStart int, layout idLayout, count int) (map[uint64]uint32, bool) {
	namesStart := tableStart - 8*count
	if namesStart < 0 || tableStart+4*count > len(payload) {
		return nil, false
	}
	lookup := make(map[uint64]uint32, count)
	for i := 0; i < count; i++ {
		name := binary.LittleEndian.Uint64(payload[namesStart+8*i:])
		lookup[name] = binary.LittleEndian.Uint32(payload[tableStart+4*i:]) >> layout.shift
	}
	return lookup, true
}

func probeKeys() map[uint64][KeySize]byte {
	probes := make(map[uint64][KeySize]byte, len(probeNames))
	for _, name := range probeNames {
		for _, builtin := range builtinKeys {
			if builtin.name == name {
				key, _ := parseKey(builtin.key)
				probes[name] = key
			}
		}
	}
	return probes
}

func scoreLookup(lookup map[uint64]uint32, keysByID map[uint32][KeySize]byte, probes map[uint64][KeySize]byte) int {
	score := 0
	for name, expected := range probes {
		id, ok := lookup[name]
		if !ok {
			continue
		}
		if key, ok := keysByID[id]; ok && key == expected {
			score++
		}
	}
	return score
}

// Resolved is one key name joined to its key through the tables.
type Resolved struct {
	Name uint64
	Key  [KeySize]byte
	ID   uint32
}

// ResolveLookupTables joins a TactKey table and a TactKeyLookup table,
// both given as complete file contents, into name/key pairs sorted by
// name.
func ResolveLookupTables(keyTable, lookupTable []byte) ([]Resolved, error) {
	keyPayload, err := StaticPayload(keyTable)
	if err != nil {
		return nil, fmt.Errorf("TactKey: %w", err)
	}
	lookupPayload, err := StaticPayload(lookupTable)
	if err != nil {
		return nil, fmt.Errorf("TactKeyLookup: %w", err)
	}

	keysByID, err := ParseKeyTable(keyPayload)
	if err != nil {
		return nil, fmt.Errorf("TactKey: %w", err)
	}
	lookup, err := ParseLookupTable(lookupPayload, keysByID)
	if err != nil {
		return nil, fmt.Errorf("TactKeyLookup: %w", err)
	}

	resolved := make([]Resolved, 0, len(lookup))
	for name, id := range lookup {
		if key, ok := keysByID[id]; ok {
			resolved = append(resolved, Resolved{Name: name, Key: key, ID: id})
		}
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Name < resolved[j].Name })
	return resolved, nil
}

// SeedResult summarises SeedFromLookupTables.
type SeedResult struct {
	Resolved  []Resolved
	Inserted  int
	Unchanged int
}

// SeedFromLookupTables resolves the in-data key tables and inserts
// every resolved key.
func (s *Service) SeedFromLookupTables(keyTable, lookupTable []byte) (SeedResult, error) {
	resolved, err := ResolveLookupTables(keyTable, lookupTable)
	if err != nil {
		return SeedResult{}, err
	}

	result := SeedResult{Resolved: resolved}
	for _, r := range resolved {
		if s.Insert(r.Name, r.Key) {
			result.Inserted++
		} else {
			result.Unchanged++
		}
	}
	s.logger.Info("seeded keys from lookup tables",
		"resolved", len(resolved),
		"inserted", result.Inserted,
		"unchanged", result.Unchanged,
	)
	return result, nil
}

// WriteKeyring writes one NAME:KEY:ID line per resolved key, in name
// order.
func WriteKeyring(w io.Writer, resolved []Resolved) error {
	sorted := append([]Resolved(nil), resolved...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, r := range sorted {
		if _, err := fmt.Fprintf(w, "%016X:%X:%d\n", r.Name, r.Key[:], r.ID); err != nil {
			return err
		}
	}
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archiveindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// BucketCount is the number of local index buckets.
const BucketCount = 0x10

// LocalEntrySize is the size of one .idx record.
const LocalEntrySize = 18

// Entry locates one encoded payload.
type Entry struct {
	// Archive is the N of data.NNN (local) or the archive's position
	// in the CDN config's archive list (CDN).
	Archive uint32
	Offset  uint64
	Size    uint32

	// Key9 is the truncated key as stored in a local index. It is zero
	// for CDN entries.
	Key9 hashkey.TruncatedKey
}

// Locator is satisfied by both index families.
type Locator interface {
	Lookup(key hashkey.EncodingKey) (Entry, bool)
	Len() int
}

// LocalIndex is the merged content of the current .idx generation.
type LocalIndex struct {
	entries map[hashkey.TruncatedKey]Entry
}

// NewLocalIndex returns an empty index.
func NewLocalIndex() *LocalIndex {
	return &LocalIndex{entries: make(map[hashkey.TruncatedKey]Entry)}
}

// Lookup finds key by its nine-byte prefix.
func (x *LocalIndex) Lookup(key hashkey.EncodingKey) (Entry, bool) {
	entry, ok := x.entries[key.Truncate()]
	return entry, ok
}

// Len returns the number of distinct truncated keys.
func (x *LocalIndex) Len() int { return len(x.entries) }

// insert keeps the first entry for a key.
func (x *LocalIndex) insert(entry Entry) {
	if _, exists := x.entries[entry.Key9]; !exists {
		x.entries[entry.Key9] = entry
	}
}

// merge adds every entry of other that x does not already hold.
func (x *LocalIndex) merge(other *LocalIndex) {
	for _, entry := range other.entries {
		x.insert(entry)
	}
}

// LoadLocal builds a LocalIndex from the .idx files in dir (normally
// Data/data). It fails with ErrFileNotFound when dir is missing or
// holds no .idx file for any bucket.
func LoadLocal(ctx context.Context, dir string) (*LocalIndex, error) {
	paths, err := currentBucketFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .idx files in %s: %w", dir, cascerr.ErrFileNotFound)
	}

	parsed := make([]*LocalIndex, len(paths))
	group, _ := errgroup.WithContext(ctx)
	for i, path := range paths {
		group.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			bucket := NewLocalIndex()
			if err := ParseLocal(data, bucket); err != nil {
				return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
			}
			parsed[i] = bucket
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	index := NewLocalIndex()
	for _, bucket := range parsed {
		index.merge(bucket)
	}
	return index, nil
}

// currentBucketFiles returns, in bucket order, the lexicographically
// last .idx file for each bucket present in dir.
func currentBucketFiles(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("index directory %s: %w", dir, cascerr.ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var latest [BucketCount]string
	names := make([]string, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if dirEntry.Type().IsRegular() {
			names = append(names, dirEntry.Name())
		}
	}
	sort.Strings(names)

	for bucket := range BucketCount {
		prefix := fmt.Sprintf("%02x", bucket)
		for _, name := range names {
			lower := strings.ToLower(name)
			if strings.HasPrefix(lower, prefix) && strings.HasSuffix(lower, ".idx") {
				latest[bucket] = name
			}
		}
	}

	var paths []string
	for _, name := range latest {
		if name != "" {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

// ParseLocal adds the records of one .idx file to into. The layout is
// a length-prefixed header block, padding to a 16-byte boundary, then
// an entries block of 18-byte records: nine key bytes, one byte of
// archive high bits, four big-endian bytes packing the two low archive
// bits above a 30-bit offset, and a little-endian size.
func ParseLocal(data []byte, into *LocalIndex) error {
	if len(data) < 8 {
		return fmt.Errorf("idx header truncated: %w", cascerr.ErrInvalidConfig)
	}
	headerHashSize := int(binary.LittleEndian.Uint32(data[0:4]))
	if headerHashSize > len(data)-8 {
		return fmt.Errorf("idx header block of %d bytes exceeds file: %w",
			headerHashSize, cascerr.ErrInvalidConfig)
	}

	position := (8 + headerHashSize + 0x0F) &^ 0x0F
	if position+8 > len(data) {
		return fmt.Errorf("idx entries block header truncated: %w", cascerr.ErrInvalidConfig)
	}
	entriesSize := int(binary.LittleEndian.Uint32(data[position : position+4]))
	position += 8

	count := entriesSize / LocalEntrySize
	if count > (len(data)-position)/LocalEntrySize {
		return fmt.Errorf("idx declares %d entries, file holds %d: %w",
			count, (len(data)-position)/LocalEntrySize, cascerr.ErrInvalidConfig)
	}

	for range count {
		record := data[position : position+LocalEntrySize]
		position += LocalEntrySize

		var entry Entry
		copy(entry.Key9[:], record[0:9])
		high := uint32(record[9])
		low := binary.BigEndian.Uint32(record[10:14])
		entry.Archive = high<<2 | low>>30
		entry.Offset = uint64(low & 0x3FFFFFFF)
		entry.Size = binary.LittleEndian.Uint32(record[14:18])
		into.insert(entry)
	}
	return nil
}

// AppendLocalRecord encodes one .idx record. It is the inverse of the
// record decoding in ParseLocal.
func AppendLocalRecord(b []byte, key hashkey.TruncatedKey, archive uint32, offset uint32, size uint32) []byte {
	b = append(b, key[:]...)
	b = append(b, byte(archive>>2))
	b = binary.BigEndian.AppendUint32(b, (archive&0x3)<<30|offset&0x3FFFFFFF)
	return binary.LittleEndian.AppendUint32(b, size)
}

// BuildLocalFile wraps records produced by AppendLocalRecord in an
// .idx header block. Hash fields are left zero; ParseLocal does not
// check them.
func BuildLocalFile(records []byte) []byte {
	const headerBlockSize = 0x10
	out := binary.LittleEndian.AppendUint32(nil, headerBlockSize)
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = append(out, make([]byte, headerBlockSize)...)
	for len(out)%0x10 != 0 {
		out = append(out, 0)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(records)))
	out = binary.LittleEndian.AppendUint32(out, 0)
	return append(out, records...)
}

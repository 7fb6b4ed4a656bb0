// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archiveindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// CDN index footer layout.
const (
	CDNFooterSize   = 20
	cdnBlockSize    = 4096
	cdnKeySize      = 16
	cdnSizeBytes    = 4
	cdnHashSize     = 8
	cdnBlockSizeKiB = 4
)

// loadConcurrency bounds parallel CDN index reads and downloads.
const loadConcurrency = 8

// Fetcher downloads a CDN file by name. lib/cdn.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, name string, index bool) ([]byte, error)
}

// CDNIndex maps full encoding keys to archive locations.
type CDNIndex struct {
	entries map[hashkey.EncodingKey]Entry
}

// NewCDNIndex returns an empty index.
func NewCDNIndex() *CDNIndex {
	return &CDNIndex{entries: make(map[hashkey.EncodingKey]Entry)}
}

// Lookup finds key.
func (x *CDNIndex) Lookup(key hashkey.EncodingKey) (Entry, bool) {
	entry, ok := x.entries[key]
	return entry, ok
}

// Len returns the number of keys.
func (x *CDNIndex) Len() int { return len(x.entries) }

func (x *CDNIndex) insert(key hashkey.EncodingKey, entry Entry) {
	if _, exists := x.entries[key]; !exists {
		x.entries[key] = entry
	}
}

func (x *CDNIndex) merge(other *CDNIndex) {
	for key, entry := range other.entries {
		x.insert(key, entry)
	}
}

// cdnFooter is the fixed trailer of a CDN .index file.
type cdnFooter struct {
	offsetBytes int
	count       int
}

// entrySize is the width of one record.
func (f cdnFooter) entrySize() int { return cdnKeySize + cdnSizeBytes + f.offsetBytes }

func parseCDNFooter(data []byte) (cdnFooter, error) {
	if len(data) < CDNFooterSize {
		return cdnFooter{}, fmt.Errorf("cdn index of %d bytes has no footer: %w", len(data), cascerr.ErrInvalidConfig)
	}
	footer := data[len(data)-CDNFooterSize:]

	version, unknown1, unknown2, blockSizeKiB := footer[0], footer[1], footer[2], footer[3]
	if version != 1 || unknown1 != 0 || unknown2 != 0 || blockSizeKiB != cdnBlockSizeKiB {
		return cdnFooter{}, fmt.Errorf("cdn index footer version %d block %d KiB: %w",
			version, blockSizeKiB, cascerr.ErrInvalidConfig)
	}
	offsetBytes := int(footer[4])
	switch offsetBytes {
	case 0, 4, 5, 6:
	default:
		return cdnFooter{}, fmt.Errorf("cdn index offset width %d: %w", offsetBytes, cascerr.ErrInvalidConfig)
	}
	if footer[5] != cdnSizeBytes || footer[6] != cdnKeySize || footer[7] != cdnHashSize {
		return cdnFooter{}, fmt.Errorf("cdn index field widths size=%d key=%d hash=%d: %w",
			footer[5], footer[6], footer[7], cascerr.ErrInvalidConfig)
	}

	parsed := cdnFooter{offsetBytes: offsetBytes}
	// The element count has been written in both byte orders. Take the
	// big-endian reading unless it cannot fit in the file.
	capacity := (len(data) - CDNFooterSize) / parsed.entrySize()
	parsed.count = int(binary.BigEndian.Uint32(footer[8:12]))
	if parsed.count > capacity {
		parsed.count = int(binary.LittleEndian.Uint32(footer[8:12]))
	}
	if parsed.count > capacity {
		return cdnFooter{}, fmt.Errorf("cdn index declares %d entries, room for %d: %w",
			parsed.count, capacity, cascerr.ErrInvalidConfig)
	}
	return parsed, nil
}

// ParseCDN adds the records of one CDN .index file to into.
// archiveIndex is recorded as each entry's archive unless the index
// carries archive numbers of its own (offset width 5 or 6). Records do
// not straddle 4 KiB blocks: when fewer than one record's bytes remain
// in a block, the rest of the block is padding.
func ParseCDN(data []byte, archiveIndex uint32, into *CDNIndex) error {
	footer, err := parseCDNFooter(data)
	if err != nil {
		return err
	}
	body := data[:len(data)-CDNFooterSize]
	size := footer.entrySize()

	position := 0
	for range footer.count {
		if position+size > len(body) {
			return fmt.Errorf("cdn index entry at %d runs past end: %w", position, cascerr.ErrInvalidConfig)
		}
		record := body[position : position+size]
		position += size

		var key hashkey.EncodingKey
		copy(key[:], record[:cdnKeySize])
		entry := Entry{
			Archive: archiveIndex,
			Size:    binary.BigEndian.Uint32(record[cdnKeySize : cdnKeySize+4]),
		}
		tail := record[cdnKeySize+4:]
		switch footer.offsetBytes {
		case 4:
			entry.Offset = uint64(binary.BigEndian.Uint32(tail))
		case 5:
			entry.Archive = uint32(tail[0])
			entry.Offset = uint64(binary.BigEndian.Uint32(tail[1:]))
		case 6:
			entry.Archive = uint32(binary.BigEndian.Uint16(tail))
			entry.Offset = uint64(binary.BigEndian.Uint32(tail[2:]))
		}
		into.insert(key, entry)

		if remaining := cdnBlockSize - position%cdnBlockSize; remaining < size {
			position += remaining
		}
	}
	return nil
}

// AppendCDNRecord encodes one record with a four-byte offset.
func AppendCDNRecord(b []byte, key hashkey.EncodingKey, size, offset uint32) []byte {
	b = append(b, key[:]...)
	b = binary.BigEndian.AppendUint32(b, size)
	return binary.BigEndian.AppendUint32(b, offset)
}

// BuildCDNFile appends a footer for count four-byte-offset records.
func BuildCDNFile(records []byte, count int) []byte {
	out := append([]byte(nil), records...)
	out = append(out, 1, 0, 0, cdnBlockSizeKiB, 4, cdnSizeBytes, cdnKeySize, cdnHashSize)
	out = binary.BigEndian.AppendUint32(out, uint32(count))
	return append(out, make([]byte, cdnHashSize)...)
}

// LoadCDN builds a CDNIndex for archives, the CDN config's archive
// list. Each archive's index is read from indicesDir/<name>.index when
// present, otherwise fetched through fetcher (when non-nil). An
// archive whose index cannot be obtained or parsed is logged and
// skipped. Entries are merged in archive order.
func LoadCDN(ctx context.Context, indicesDir string, archives []string, fetcher Fetcher, logger *slog.Logger) (*CDNIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parsed := make([]*CDNIndex, len(archives))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(loadConcurrency)
	for i, name := range archives {
		group.Go(func() error {
			data, err := readCDNIndex(groupCtx, indicesDir, name, fetcher)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("skipping cdn index", "archive", name, "error", err)
				return nil
			}
			index := NewCDNIndex()
			if err := ParseCDN(data, uint32(i), index); err != nil {
				logger.Warn("skipping malformed cdn index", "archive", name, "error", err)
				return nil
			}
			parsed[i] = index
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := NewCDNIndex()
	loaded := 0
	for _, index := range parsed {
		if index == nil {
			continue
		}
		merged.merge(index)
		loaded++
	}
	logger.Info("loaded cdn indices", "archives", len(archives), "loaded", loaded, "entries", merged.Len())
	return merged, nil
}

func readCDNIndex(ctx context.Context, indicesDir, name string, fetcher Fetcher) ([]byte, error) {
	if indicesDir != "" {
		data, err := os.ReadFile(filepath.Join(indicesDir, name+".index"))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if fetcher == nil {
		return nil, fmt.Errorf("index %s not cached and no fetcher: %w", name, cascerr.ErrFileNotFound)
	}
	return fetcher.Get(ctx, name, true)
}

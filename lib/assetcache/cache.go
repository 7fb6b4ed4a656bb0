// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetcache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/casc/lib/codec"
	"github.com/bureau-foundation/casc/lib/hashkey"
	"github.com/bureau-foundation/casc/lib/logging"
)

// formatVersion is written to every entry header. Entries with another
// version are treated as corrupt.
const formatVersion = 1

// entryHeader precedes the body of every cache file.
type entryHeader struct {
	Version int    `cbor:"v"`
	Tag     string `cbor:"tag"`
	Size    uint64 `cbor:"size"`
	Digest  []byte `cbor:"digest"`
}

// Options configures a Cache.
type Options struct {
	// Dir is created if missing.
	Dir string

	// Compression is the algorithm for new entries. The zero value is
	// CompressionNone; use CompressionAuto to probe each entry.
	Compression Compression

	Logger *slog.Logger
}

// Cache is an on-disk store of decoded assets. It is safe for
// concurrent use by multiple goroutines and processes: writes are
// atomic renames and reads never observe a partial entry.
type Cache struct {
	dir         string
	compression Compression
	logger      *slog.Logger
}

// New opens (creating if needed) a cache directory.
func New(options Options) (*Cache, error) {
	if options.Dir == "" {
		return nil, errors.New("asset cache directory is required")
	}
	if err := os.MkdirAll(options.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating asset cache directory: %w", err)
	}
	return &Cache{
		dir:         options.Dir,
		compression: options.Compression,
		logger:      logging.Component(options.Logger, "assetcache"),
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) path(key hashkey.EncodingKey) string {
	name := key.String()
	return filepath.Join(c.dir, name[:2], name)
}

// Get returns the decoded asset stored under key. A missing entry is a
// miss; so is a corrupt one, which is removed.
func (c *Cache) Get(key hashkey.EncodingKey) ([]byte, bool) {
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("reading cache entry failed", "ekey", key.String(), "error", err)
		}
		return nil, false
	}
	data, err := readEntry(raw)
	if err != nil {
		c.logger.Warn("removing corrupt cache entry", "ekey", key.String(), "error", err)
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			c.logger.Warn("removing cache entry failed", "path", path, "error", removeErr)
		}
		return nil, false
	}
	return data, true
}

// Put stores data under key, replacing any existing entry.
func (c *Cache) Put(key hashkey.EncodingKey, data []byte) error {
	body, tag, err := compressAuto(data, c.compression)
	if err != nil {
		return fmt.Errorf("compressing cache entry %s: %w", key, err)
	}
	digest := blake3.Sum256(data)
	header, err := codec.Marshal(entryHeader{
		Version: formatVersion,
		Tag:     tag.String(),
		Size:    uint64(len(data)),
		Digest:  digest[:],
	})
	if err != nil {
		return fmt.Errorf("encoding cache entry header: %w", err)
	}

	finalPath := c.path(key)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating cache shard directory: %w", err)
	}

	// Atomic write: temp file + rename.
	tmpFile, err := os.CreateTemp(filepath.Dir(finalPath), "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(header); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing cache entry header: %w", err)
	}
	if _, err := tmpFile.Write(body); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing cache entry body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}

	success = true
	c.logger.Debug("cached asset", "ekey", key.String(), "size", len(data), "stored", len(body), "compression", tag.String())
	return nil
}

// readEntry parses, decompresses, and verifies one cache file.
func readEntry(raw []byte) ([]byte, error) {
	decoder := codec.NewDecoder(bytes.NewReader(raw))
	var header entryHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	if header.Version != formatVersion {
		return nil, fmt.Errorf("entry format version %d, want %d", header.Version, formatVersion)
	}
	tag, err := ParseCompression(header.Tag)
	if err != nil || tag == CompressionAuto {
		return nil, fmt.Errorf("entry compression %q", header.Tag)
	}
	if header.Size > uint64(maxEntrySize) {
		return nil, fmt.Errorf("entry size %d exceeds %d", header.Size, maxEntrySize)
	}

	data, err := decompress(raw[decoder.NumBytesRead():], tag, int(header.Size))
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(data)
	if !bytes.Equal(digest[:], header.Digest) {
		return nil, errors.New("digest mismatch")
	}
	return data, nil
}

// maxEntrySize bounds the allocation a corrupt header can request.
const maxEntrySize = 1 << 30

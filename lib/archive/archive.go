// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive reads payloads out of the numbered data.NNN files of
// a local installation.
//
// A [Set] opens archives on first use and keeps them mapped until
// [Set.Close]. On Linux and macOS each archive is memory-mapped
// read-only, so a read of a resident page costs a copy and no system
// call; elsewhere it falls back to positioned reads. Reads never
// return slices of the mapping itself: callers receive copies that stay
// valid after Close.
//
// [Set.Payload] is the usual entry point. It reads the entry located
// by an index lookup, checks the 30-byte archive header against the
// index's truncated key and size, and returns the BLTE container that
// follows.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/casc/lib/archiveindex"
	"github.com/bureau-foundation/casc/lib/blte"
	"github.com/bureau-foundation/casc/lib/cascerr"
)

// FileName returns the archive file name for an archive number.
func FileName(archive uint32) string {
	return fmt.Sprintf("data.%03d", archive)
}

// Set is the archives of one data directory. It is safe for
// concurrent use.
type Set struct {
	dir string

	mu     sync.Mutex
	files  map[uint32]*mappedFile
	closed bool
}

// Open returns a Set reading from dir (normally Data/data). No file is
// opened until it is read.
func Open(dir string) *Set {
	return &Set{dir: dir, files: make(map[uint32]*mappedFile)}
}

func (s *Set) file(archive uint32) (*mappedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("archive set is closed")
	}
	if file, ok := s.files[archive]; ok {
		return file, nil
	}

	path := filepath.Join(s.dir, FileName(archive))
	file, err := openMapped(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", FileName(archive), cascerr.ErrFileNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.files[archive] = file
	return file, nil
}

// ReadAt reads len(p) bytes from an archive at off. Reading past the
// end of the archive is an error.
func (s *Set) ReadAt(archive uint32, p []byte, off int64) error {
	file, err := s.file(archive)
	if err != nil {
		return err
	}
	if off < 0 || off+int64(len(p)) > file.Size() {
		return fmt.Errorf("%s: range %d+%d exceeds %d bytes: %w",
			FileName(archive), off, len(p), file.Size(), cascerr.ErrInvalidConfig)
	}
	if _, err := file.ReadAt(p, off); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading %s at %d: %w", FileName(archive), off, err)
	}
	return nil
}

// Read returns the entry's bytes, archive header included.
func (s *Set) Read(entry archiveindex.Entry) ([]byte, error) {
	buffer := make([]byte, entry.Size)
	if err := s.ReadAt(entry.Archive, buffer, int64(entry.Offset)); err != nil {
		return nil, err
	}
	return buffer, nil
}

// Payload reads the entry, verifies its archive header, and returns the
// container that follows the header.
func (s *Set) Payload(entry archiveindex.Entry) ([]byte, error) {
	raw, err := s.Read(entry)
	if err != nil {
		return nil, err
	}
	header, err := blte.ParseLocalHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%s offset %d: %w", FileName(entry.Archive), entry.Offset, err)
	}
	length, err := header.Check(entry.Key9, entry.Size)
	if err != nil {
		return nil, fmt.Errorf("%s offset %d: %w", FileName(entry.Archive), entry.Offset, err)
	}
	return raw[blte.LocalHeaderSize : blte.LocalHeaderSize+length], nil
}

// Close unmaps every open archive. Reads after Close fail.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	for archive, file := range s.files {
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", FileName(archive), err))
		}
		delete(s.files, archive)
	}
	return errors.Join(errs...)
}

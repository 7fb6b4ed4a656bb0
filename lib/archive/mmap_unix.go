// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package archive

import (
	"fmt"
	"io"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// mappedFile is one data.NNN archive mapped read-only. ReadAt is
// lock-free and safe for concurrent use until Close.
type mappedFile struct {
	fd   int
	data []byte // mmap'd MAP_SHARED, PROT_READ
	size int64
}

func openMapped(path string) (*mappedFile, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating archive %s: %w", path, err)
	}

	file := &mappedFile{fd: fd, size: stat.Size}
	if stat.Size == 0 {
		return file, nil
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping archive %s: %w", path, err)
	}
	file.data = data
	return file, nil
}

// ReadAt copies from the mapping. A page fault from a failing disk is
// turned into an error instead of a SIGBUS.
func (f *mappedFile) ReadAt(p []byte, off int64) (readCount int, err error) {
	if off < 0 || off >= f.size {
		return 0, io.EOF
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading archive at offset %d: %v", off, r)
		}
	}()

	readCount = copy(p, f.data[off:])
	if readCount < len(p) {
		return readCount, io.EOF
	}
	return readCount, nil
}

func (f *mappedFile) Size() int64 { return f.size }

func (f *mappedFile) Close() error {
	var firstErr error
	if f.data != nil {
		if err := unix.Munmap(f.data); err != nil {
			firstErr = fmt.Errorf("unmapping archive: %w", err)
		}
	}
	if err := unix.Close(f.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing archive fd: %w", err)
	}
	f.data = nil
	f.fd = -1
	return firstErr
}

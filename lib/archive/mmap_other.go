// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || linux)

package archive

import (
	"fmt"
	"os"
)

// mappedFile falls back to positioned reads where mmap is unavailable.
type mappedFile struct {
	file *os.File
	size int64
}

func openMapped(path string) (*mappedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stating archive %s: %w", path, err)
	}
	return &mappedFile{file: file, size: info.Size()}, nil
}

func (f *mappedFile) ReadAt(p []byte, off int64) (int, error) { return f.file.ReadAt(p, off) }

func (f *mappedFile) Size() int64 { return f.size }

func (f *mappedFile) Close() error { return f.file.Close() }

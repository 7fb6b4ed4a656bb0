// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package listfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Listfile is an immutable id/name mapping.
type Listfile struct {
	names map[uint32]string
	ids   map[string]uint32

	// Skipped counts malformed lines.
	Skipped int
}

// Normalize returns the lookup form of a path name.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `\`, "/")
	return strings.ToLower(name)
}

// Load parses the listfile at path.
func Load(path string) (*Listfile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening listfile: %w", err)
	}
	defer file.Close()
	listfile, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("reading listfile %s: %w", path, err)
	}
	return listfile, nil
}

// Parse reads listfile lines from r. Blank lines, '#' comments, and
// lines without a numeric id are skipped.
func Parse(r io.Reader) (*Listfile, error) {
	listfile := &Listfile{
		names: make(map[uint32]string),
		ids:   make(map[string]uint32),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		separator := strings.IndexAny(line, ";,")
		if separator <= 0 {
			listfile.Skipped++
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(line[:separator]), 10, 32)
		name := Normalize(line[separator+1:])
		if err != nil || name == "" {
			listfile.Skipped++
			continue
		}
		listfile.add(uint32(id), name)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return listfile, nil
}

func (l *Listfile) add(id uint32, name string) {
	if _, exists := l.names[id]; !exists {
		l.names[id] = name
	}
	if _, exists := l.ids[name]; !exists {
		l.ids[name] = id
	}
}

// ID returns the file data id for name, normalising it first.
func (l *Listfile) ID(name string) (uint32, bool) {
	id, ok := l.ids[Normalize(name)]
	return id, ok
}

// Name returns the normalised name recorded for id.
func (l *Listfile) Name(id uint32) (string, bool) {
	name, ok := l.names[id]
	return name, ok
}

// Len returns the number of ids.
func (l *Listfile) Len() int { return len(l.names) }

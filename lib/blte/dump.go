// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// dumpChunk writes the raw bytes of a failed chunk for offline
// inspection. Failures to dump are logged and otherwise ignored.
func (d *Decoder) dumpChunk(tag string, index int, raw []byte) {
	if d.DumpDir == "" {
		return
	}
	logger := d.logger()
	if err := os.MkdirAll(d.DumpDir, 0o755); err != nil {
		logger.Warn("creating chunk dump directory failed", "dir", d.DumpDir, "error", err)
		return
	}
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, tag)
	path := filepath.Join(d.DumpDir, fmt.Sprintf("%s_chunk%04d_raw.bin", name, index))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.Warn("writing chunk dump failed", "path", path, "error", err)
		return
	}
	logger.Warn("dumped failed chunk", "path", path)
}

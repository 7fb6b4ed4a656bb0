// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// WriteFile writes data to root/relative, creating parent directories.
// It returns the absolute path.
func WriteFile(t testing.TB, root, relative string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relative))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating directory for %s: %v", relative, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", relative, err)
	}
	return path
}

// WriteTree writes every entry of files (slash-separated relative path
// to content) under root, in sorted order so failures are reproducible.
func WriteTree(t testing.TB, root string, files map[string][]byte) {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		WriteFile(t, root, name, files[name])
	}
}

// Hex decodes a hex string, ignoring spaces, or fails the test.
func Hex(t testing.TB, text string) []byte {
	t.Helper()
	decoded, err := hex.DecodeString(strings.ReplaceAll(text, " ", ""))
	if err != nil {
		t.Fatalf("decoding hex %q: %v", text, err)
	}
	return decoded
}

// Hex16 decodes exactly sixteen bytes of hex, or fails the test.
func Hex16(t testing.TB, text string) [16]byte {
	t.Helper()
	decoded := Hex(t, text)
	if len(decoded) != 16 {
		t.Fatalf("hex %q is %d bytes, want 16", text, len(decoded))
	}
	var out [16]byte
	copy(out[:], decoded)
	return out
}

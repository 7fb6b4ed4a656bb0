// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteTree(t *testing.T) {
	root := t.TempDir()
	WriteTree(t, root, map[string][]byte{
		".build.info":        []byte("header"),
		"Data/data/data.000": {1, 2, 3},
	})

	data, err := os.ReadFile(filepath.Join(root, "Data", "data", "data.000"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if len(data) != 3 {
		t.Errorf("got %d bytes, want 3", len(data))
	}
}

func TestHex16(t *testing.T) {
	key := Hex16(t, "290D27B0E871F8C5 B14A14E514D0F0D9")
	if key[0] != 0x29 || key[15] != 0xD9 {
		t.Errorf("unexpected key %X", key)
	}
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	close(ch)
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
	if extra := RequireDrained(t, ch, time.Second, "value channel"); extra != 0 {
		t.Errorf("RequireDrained saw %d extra values, want 0", extra)
	}
}

func TestRequireDrained_CountsExtras(t *testing.T) {
	ch := make(chan string, 2)
	ch <- "first"
	ch <- "second"
	close(ch)
	if extra := RequireDrained(t, ch, time.Second, "results"); extra != 2 {
		t.Errorf("RequireDrained = %d, want 2", extra)
	}
}

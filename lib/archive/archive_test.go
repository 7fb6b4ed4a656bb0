// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/bureau-foundation/casc/lib/archiveindex"
	"github.com/bureau-foundation/casc/lib/blte"
	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
	"github.com/bureau-foundation/casc/lib/testutil"
)

// writeArchive lays out containers back to back in data.NNN and
// returns an index entry for each.
func writeArchive(t *testing.T, dir string, archive uint32, keys []hashkey.EncodingKey, containers [][]byte) []archiveindex.Entry {
	t.Helper()
	var data []byte
	var entries []archiveindex.Entry
	for i, container := range containers {
		offset := len(data)
		data = blte.AppendLocalHeader(data, keys[i], len(container))
		data = append(data, container...)
		entries = append(entries, archiveindex.Entry{
			Archive: archive,
			Offset:  uint64(offset),
			Size:    uint32(len(data) - offset),
			Key9:    keys[i].Truncate(),
		})
	}
	testutil.WriteFile(t, dir, FileName(archive), data)
	return entries
}

func TestPayload(t *testing.T) {
	dir := t.TempDir()
	keys := []hashkey.EncodingKey{
		testutil.Hex16(t, "0123456789abcdef0123456789abcdef"),
		testutil.Hex16(t, "fedcba9876543210fedcba9876543210"),
	}
	first := blte.BuildSingle(blte.NormalChunk([]byte("sixteen raw byte")))
	second := blte.BuildSingle(blte.NormalChunk([]byte("another container")))
	entries := writeArchive(t, dir, 3, keys, [][]byte{first, second})

	set := Open(dir)
	defer set.Close()

	for i, want := range [][]byte{first, second} {
		got, err := set.Payload(entries[i])
		if err != nil {
			t.Fatalf("Payload(%d): %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Payload(%d) = %x, want %x", i, got, want)
		}
	}

	decoded, err := blte.Decode(mustPayload(t, set, entries[0]))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != "sixteen raw byte" {
		t.Errorf("decoded = %q", decoded)
	}
}

func mustPayload(t *testing.T, set *Set, entry archiveindex.Entry) []byte {
	t.Helper()
	payload, err := set.Payload(entry)
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	return payload
}

func TestPayload_HeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	key := testutil.Hex16(t, "00112233445566778899aabbccddeeff")
	entries := writeArchive(t, dir, 0, []hashkey.EncodingKey{key},
		[][]byte{blte.BuildSingle(blte.NormalChunk([]byte("payload")))})
	set := Open(dir)
	defer set.Close()

	wrongKey := entries[0]
	wrongKey.Key9[0] ^= 0xFF
	if _, err := set.Payload(wrongKey); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("wrong key: error = %v, want ErrInvalidBLTE", err)
	}

	wrongSize := entries[0]
	wrongSize.Size--
	if _, err := set.Payload(wrongSize); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("wrong size: error = %v, want ErrInvalidBLTE", err)
	}

	pastEnd := entries[0]
	pastEnd.Offset = 1 << 20
	if _, err := set.Payload(pastEnd); !errors.Is(err, cascerr.ErrInvalidConfig) {
		t.Errorf("past end: error = %v, want ErrInvalidConfig", err)
	}
}

func TestRead_MissingArchive(t *testing.T) {
	set := Open(t.TempDir())
	defer set.Close()
	_, err := set.Read(archiveindex.Entry{Archive: 7, Size: 40})
	if !errors.Is(err, cascerr.ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}
}

func TestReadAfterClose(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, FileName(0), []byte("0123456789"))
	set := Open(dir)

	buffer := make([]byte, 4)
	if err := set.ReadAt(0, buffer, 2); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buffer) != "2345" {
		t.Errorf("ReadAt = %q", buffer)
	}
	if err := set.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := set.ReadAt(0, buffer, 0); err == nil {
		t.Error("expected error reading a closed set")
	}
	// The copy taken before Close is still intact.
	if string(buffer) != "2345" {
		t.Errorf("buffer changed after Close: %q", buffer)
	}
}

func TestEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, FileName(1), nil)
	set := Open(dir)
	defer set.Close()
	if err := set.ReadAt(1, make([]byte, 1), 0); !errors.Is(err, cascerr.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i * 31)
	}
	testutil.WriteFile(t, dir, FileName(2), data)
	set := Open(dir)
	defer set.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for worker := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			offset := worker * 4096
			buffer := make([]byte, 4096)
			if err := set.ReadAt(2, buffer, int64(offset)); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(buffer, data[offset:offset+4096]) {
				errs <- errors.New("mismatched bytes")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(7); got != "data.007" {
		t.Errorf("FileName(7) = %s", got)
	}
	if got := FileName(1234); got != "data.1234" {
		t.Errorf("FileName(1234) = %s", got)
	}
}

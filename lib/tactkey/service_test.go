// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tactkey

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bureau-foundation/casc/lib/testutil"
)

func newTestService(t *testing.T, options Options) *Service {
	t.Helper()
	if options.CacheDir == "" {
		options.CacheDir = t.TempDir()
	}
	return New(options)
}

func TestBuiltinKeys(t *testing.T) {
	service := newTestService(t, Options{})
	if service.Len() != len(builtinKeys) {
		t.Errorf("Len() = %d, want %d", service.Len(), len(builtinKeys))
	}
	key, ok := service.Key(0xFA505078126ACB3E)
	if !ok {
		t.Fatal("builtin key FA505078126ACB3E missing")
	}
	if key != testutil.Hex16(t, "BDC51862ABED79B2DE48C8E7E66C6200") {
		t.Errorf("key = %X", key)
	}
	if _, ok := service.Key(0x1234); ok {
		t.Error("unexpected key for unknown name")
	}

	names := service.Names()
	if len(names) != len(builtinKeys) || !slices.IsSorted(names) {
		t.Errorf("Names() = %d names (sorted %v), want %d sorted", len(names), slices.IsSorted(names), len(builtinKeys))
	}
}

func TestInsert(t *testing.T) {
	service := newTestService(t, Options{})
	first := testutil.Hex16(t, "00112233445566778899AABBCCDDEEFF")
	second := testutil.Hex16(t, "FFEEDDCCBBAA99887766554433221100")

	if !service.Insert(0x42, first) {
		t.Error("inserting a new name should report a change")
	}
	if service.Insert(0x42, first) {
		t.Error("re-inserting the same key should report no change")
	}
	if !service.Insert(0x42, second) {
		t.Error("replacing with a different key should report a change")
	}
	if key, _ := service.Key(0x42); key != second {
		t.Errorf("key = %X, want the replacement", key)
	}
}

func TestLoadText(t *testing.T) {
	text := strings.Join([]string{
		"# comment",
		"",
		"0000000000000042;00112233445566778899AABBCCDDEEFF",
		"0x0000000000000043 00112233445566778899aabbccddeeff extra columns",
		"44 00112233445566778899AABBCCDDEEFF",
		"not-hex;00112233445566778899AABBCCDDEEFF",
		"45;too-short",
		"46",
		// Builtin names keep their key.
		"FA505078126ACB3E;00000000000000000000000000000000",
	}, "\n")

	service := newTestService(t, Options{})
	added, err := service.LoadText(strings.NewReader(text))
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}
	for _, name := range []uint64{0x42, 0x43, 0x44} {
		if _, ok := service.Key(name); !ok {
			t.Errorf("key %X missing", name)
		}
	}
	if key, _ := service.Key(0xFA505078126ACB3E); key[0] != 0xBD {
		t.Error("key file overrode a builtin key")
	}
}

func TestLoadFileMissing(t *testing.T) {
	service := newTestService(t, Options{})
	if _, err := service.LoadFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestRefreshRescansFiles(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "keys.txt")
	service := newTestService(t, Options{Files: []string{keyFile}})

	if _, ok := service.Key(0x99); ok {
		t.Fatal("key present before the file exists")
	}

	testutil.WriteFile(t, dir, "keys.txt", []byte("0000000000000099;00112233445566778899AABBCCDDEEFF\n"))
	if !service.Refresh(context.Background(), 0x99) {
		t.Fatal("Refresh should find the key in the rescanned file")
	}
	if _, ok := service.Key(0x99); !ok {
		t.Error("key not registered after Refresh")
	}
}

func TestRefreshSingleShot(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "keys.txt")
	service := newTestService(t, Options{Files: []string{keyFile}})

	if service.Refresh(context.Background(), 0x77) {
		t.Fatal("Refresh found a key that exists nowhere")
	}

	// The name has had its attempt; a new file is not scanned for it.
	testutil.WriteFile(t, dir, "keys.txt", []byte("77;00112233445566778899AABBCCDDEEFF\n"))
	if service.Refresh(context.Background(), 0x77) {
		t.Error("second Refresh for the same name should not rescan")
	}
}

func TestRefreshFetchesRemoteOnce(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprintln(w, "0000000000000101 00112233445566778899AABBCCDDEEFF")
		fmt.Fprintln(w, "0000000000000102 FFEEDDCCBBAA99887766554433221100")
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	service := newTestService(t, Options{
		RemoteURL:  server.URL + "/WoW.txt",
		CacheDir:   cacheDir,
		HTTPClient: server.Client(),
	})

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = service.Refresh(context.Background(), 0x101+uint64(i%2))
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Errorf("Refresh #%d did not find its key", i)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("remote list fetched %d times, want 1", got)
	}

	// Unknown names do not trigger another download.
	service.Refresh(context.Background(), 0x999)
	if got := requests.Load(); got != 1 {
		t.Errorf("remote list fetched %d times after a miss, want 1", got)
	}

	if _, err := os.Stat(filepath.Join(cacheDir, RemoteCacheName)); err != nil {
		t.Errorf("remote list not cached: %v", err)
	}
}

func TestRefreshLoadsCachedList(t *testing.T) {
	cacheDir := t.TempDir()
	testutil.WriteFile(t, cacheDir, RemoteCacheName, []byte("0x00000000000000AB 00112233445566778899AABBCCDDEEFF\n"))

	service := newTestService(t, Options{CacheDir: cacheDir})
	if !service.Refresh(context.Background(), 0xAB) {
		t.Fatal("Refresh should load the cached key list")
	}
}

func TestFetchRemoteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	service := newTestService(t, Options{RemoteURL: server.URL, HTTPClient: server.Client()})
	if _, err := service.FetchRemote(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 410")
	}
	if service.Refresh(context.Background(), 0x5555) {
		t.Error("Refresh should report a miss when the remote list is unavailable")
	}
}

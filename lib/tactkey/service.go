// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tactkey

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/casc/lib/logging"
	"github.com/bureau-foundation/casc/lib/netutil"
)

// KeySize is the length of a TACT key.
const KeySize = 16

// RemoteCacheName is the file name the remote key list is cached under.
const RemoteCacheName = "WoW.txt"

// DefaultFetchTimeout bounds the remote key list request.
const DefaultFetchTimeout = 30 * time.Second

// Options configures a Service.
type Options struct {
	// Files are rescanned by Refresh.
	Files []string

	// RemoteURL is fetched at most once, by Refresh, when a key is
	// still missing after rescanning Files. Empty disables it.
	RemoteURL string

	// CacheDir receives the fetched list as RemoteCacheName, and a
	// cached copy there is loaded by Refresh before going to the
	// network. Empty uses os.TempDir.
	CacheDir string

	// HTTPClient defaults to a client with FetchTimeout.
	HTTPClient *http.Client

	// FetchTimeout defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration

	Logger *slog.Logger
}

// Service maps key names to keys. It is safe for concurrent use.
type Service struct {
	options Options
	logger  *slog.Logger

	mu            sync.RWMutex
	keys          map[uint64][KeySize]byte
	remoteFetched bool

	// refreshMu is held for the whole of a Refresh so that callers
	// missing the same key wait for one rescan instead of each running
	// their own.
	refreshMu sync.Mutex
	attempted map[uint64]bool

	fetches singleflight.Group
}

// New creates a Service seeded with the builtin keys. Files are not
// loaded until LoadFile or Refresh is called.
func New(options Options) *Service {
	if options.CacheDir == "" {
		options.CacheDir = os.TempDir()
	}
	if options.FetchTimeout == 0 {
		options.FetchTimeout = DefaultFetchTimeout
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: options.FetchTimeout}
	}

	service := &Service{
		options:   options,
		logger:    logging.Component(options.Logger, "tactkey"),
		keys:      make(map[uint64][KeySize]byte, len(builtinKeys)),
		attempted: make(map[uint64]bool),
	}
	for _, builtin := range builtinKeys {
		key, err := parseKey(builtin.key)
		if err != nil {
			panic(fmt.Sprintf("tactkey: builtin key %016X: %v", builtin.name, err))
		}
		service.keys[builtin.name] = key
	}
	return service
}

// Key returns the key registered under name.
func (s *Service) Key(name uint64) ([KeySize]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[name]
	return key, ok
}

// Len returns the number of known keys.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Names returns the known key names in ascending order.
func (s *Service) Names() []uint64 {
	s.mu.RLock()
	names := make([]uint64, 0, len(s.keys))
	for name := range s.keys {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Insert registers key under name. It returns true if the name was new
// or its key changed. Replacing a different key is logged as a
// conflict.
func (s *Service) Insert(name uint64, key [KeySize]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(name, key, true)
}

func (s *Service) insertLocked(name uint64, key [KeySize]byte, overwrite bool) bool {
	existing, ok := s.keys[name]
	if ok && existing == key {
		return false
	}
	if ok {
		if !overwrite {
			return false
		}
		s.logger.Warn("conflicting key replaced",
			"key_name", fmt.Sprintf("%016X", name),
			"old", hex.EncodeToString(existing[:]),
			"new", hex.EncodeToString(key[:]),
		)
	}
	s.keys[name] = key
	return true
}

// LoadFile adds the keys listed in the file at path and returns how
// many were new. Names already known keep their key.
func (s *Service) LoadFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening key file: %w", err)
	}
	defer file.Close()

	added, err := s.LoadText(file)
	if err != nil {
		return added, fmt.Errorf("reading key file %s: %w", path, err)
	}
	if added > 0 {
		s.logger.Info("loaded key file", "path", path, "added", added)
	}
	return added, nil
}

// LoadText adds the keys listed in r. Malformed lines are skipped.
func (s *Service) LoadText(r io.Reader) (int, error) {
	var parsed []entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line, ok := parseLine(scanner.Text()); ok {
			parsed = append(parsed, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, line := range parsed {
		if s.insertLocked(line.name, line.key, false) {
			added++
		}
	}
	return added, nil
}

type entry struct {
	name uint64
	key  [KeySize]byte
}

// parseLine accepts "NAME;KEY" and "NAME KEY [anything]".
func parseLine(line string) (entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return entry{}, false
	}

	var fields []string
	if strings.Contains(line, ";") {
		fields = strings.Split(line, ";")
	} else {
		fields = strings.Fields(line)
	}
	if len(fields) < 2 {
		return entry{}, false
	}

	nameText := strings.TrimSpace(fields[0])
	nameText = strings.TrimPrefix(strings.TrimPrefix(nameText, "0x"), "0X")
	name, err := strconv.ParseUint(nameText, 16, 64)
	if err != nil {
		return entry{}, false
	}
	key, err := parseKey(strings.TrimSpace(fields[1]))
	if err != nil {
		return entry{}, false
	}
	return entry{name: name, key: key}, true
}

func parseKey(text string) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(text) != 2*KeySize {
		return key, fmt.Errorf("key is %d hex digits, want %d", len(text), 2*KeySize)
	}
	if _, err := hex.Decode(key[:], []byte(text)); err != nil {
		return key, err
	}
	return key, nil
}

// Refresh tries to make name resolvable. It rescans the configured key
// files and the cached remote list, and fetches the remote list if the
// key is still missing and no fetch has happened yet. Each name gets
// one attempt per Service; later calls for the same name return the
// current state without scanning.
func (s *Service) Refresh(ctx context.Context, name uint64) bool {
	if _, ok := s.Key(name); ok {
		return true
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have found it while this one waited.
	if _, ok := s.Key(name); ok {
		return true
	}
	if s.attempted[name] {
		return false
	}
	s.attempted[name] = true

	s.logger.Info("refreshing keys", "key_name", fmt.Sprintf("%016X", name))
	s.rescan(ctx, name)

	_, ok := s.Key(name)
	if !ok {
		s.logger.Warn("key still missing after refresh", "key_name", fmt.Sprintf("%016X", name))
	}
	return ok
}

func (s *Service) rescan(ctx context.Context, name uint64) {
	for _, path := range s.options.Files {
		if _, err := s.LoadFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("rescanning key file failed", "path", path, "error", err)
		}
	}
	cached := filepath.Join(s.options.CacheDir, RemoteCacheName)
	if _, err := s.LoadFile(cached); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("loading cached key list failed", "path", cached, "error", err)
	}
	if _, ok := s.Key(name); ok {
		return
	}

	s.mu.Lock()
	fetch := !s.remoteFetched && s.options.RemoteURL != ""
	s.remoteFetched = true
	s.mu.Unlock()
	if !fetch {
		return
	}
	if _, err := s.FetchRemote(ctx); err != nil {
		s.logger.Warn("fetching remote key list failed", "url", s.options.RemoteURL, "error", err)
	}
}

// FetchRemote downloads the remote key list, caches it, and loads it.
// It returns the number of new keys. Concurrent calls share one
// download.
func (s *Service) FetchRemote(ctx context.Context) (int, error) {
	if s.options.RemoteURL == "" {
		return 0, errors.New("no remote key list configured")
	}
	added, err, _ := s.fetches.Do(s.options.RemoteURL, func() (any, error) {
		return s.fetchRemote(ctx)
	})
	return added.(int), err
}

func (s *Service) fetchRemote(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.options.FetchTimeout)
	defer cancel()

	data, err := netutil.Get(ctx, s.options.HTTPClient, s.options.RemoteURL, nil)
	if err != nil {
		return 0, fmt.Errorf("fetching key list: %w", err)
	}

	cached := filepath.Join(s.options.CacheDir, RemoteCacheName)
	if err := os.WriteFile(cached, data, 0o644); err != nil {
		s.logger.Warn("caching key list failed", "path", cached, "error", err)
	}

	added, err := s.LoadText(bytes.NewReader(data))
	if err != nil {
		return added, fmt.Errorf("parsing key list: %w", err)
	}
	s.logger.Info("fetched remote key list", "url", s.options.RemoteURL, "added", added)
	return added, nil
}

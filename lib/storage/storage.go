// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bureau-foundation/casc/lib/archive"
	"github.com/bureau-foundation/casc/lib/archiveindex"
	"github.com/bureau-foundation/casc/lib/assetcache"
	"github.com/bureau-foundation/casc/lib/buildconfig"
	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/cdn"
	"github.com/bureau-foundation/casc/lib/encodingtable"
	"github.com/bureau-foundation/casc/lib/hashkey"
	"github.com/bureau-foundation/casc/lib/listfile"
	"github.com/bureau-foundation/casc/lib/logging"
	"github.com/bureau-foundation/casc/lib/rootmanifest"
	"github.com/bureau-foundation/casc/lib/tactkey"
)

// Options configures Open.
type Options struct {
	// Root is the installation directory (holding .build.info, or
	// whose Data subdirectory does).
	Root string

	// Product selects the .build.info row.
	Product string

	// LocaleMask restricts root manifest variants. Zero accepts all.
	LocaleMask rootmanifest.Locale

	// Keys is the key service used for encrypted chunks. Nil creates
	// one with builtin keys only.
	Keys *tactkey.Service

	// StrictKeys fails a fetch whose key cannot be found instead of
	// returning zero-filled chunks.
	StrictKeys bool

	// SeedKeys reads the TactKey and TactKeyLookup tables after opening
	// and adds the keys they resolve. Failure is logged.
	SeedKeys bool

	// DumpDir receives raw chunks that fail to decode.
	DumpDir string

	// CDN enables the network sources. CDNHosts, when set, replaces the
	// hosts listed in .build.info.
	CDN        bool
	CDNHosts   []string
	CDNTimeout time.Duration
	HTTPClient *http.Client

	// FetchIndices downloads CDN archive indices missing from
	// Data/indices. Without it only cached indices are used.
	FetchIndices bool

	// Cache, when non-nil, stores decoded assets by encoding key.
	Cache *assetcache.Cache

	// Listfile enables FetchByName.
	Listfile *listfile.Listfile

	Logger *slog.Logger
}

// Storage is an opened installation.
type Storage struct {
	build    *buildconfig.BuildConfig
	local    *archiveindex.LocalIndex
	archives *archive.Set
	encoding *encodingtable.Table
	root     *rootmanifest.Manifest

	localeMask rootmanifest.Locale

	keys       *tactkey.Service
	strictKeys bool
	dumpDir    string

	cdn          *cdn.Client
	fetchIndices bool
	cdnOnce      sync.Once
	cdnIndex     *archiveindex.CDNIndex

	cache    *assetcache.Cache
	listfile *listfile.Listfile

	// logger is tagged for this package; baseLogger is handed to the
	// components, which tag their own records.
	logger     *slog.Logger
	baseLogger *slog.Logger
}

// Open resolves the build, loads the local indices, and reads the
// encoding table and root manifest.
func Open(ctx context.Context, options Options) (*Storage, error) {
	logger := logging.Component(options.Logger, "storage")
	start := time.Now()

	build, err := buildconfig.Resolve(options.Root, options.Product)
	if err != nil {
		return nil, err
	}
	logger.Info("resolved build",
		"product", build.Product,
		"version", build.Version,
		"build_name", build.BuildName,
		"archives", len(build.Archives),
	)

	storage := &Storage{
		build:        build,
		archives:     archive.Open(build.ArchiveDir()),
		localeMask:   options.LocaleMask,
		keys:         options.Keys,
		strictKeys:   options.StrictKeys,
		dumpDir:      options.DumpDir,
		fetchIndices: options.FetchIndices,
		cache:        options.Cache,
		listfile:     options.Listfile,
		logger:       logger,
		baseLogger:   options.Logger,
	}
	if storage.keys == nil {
		storage.keys = tactkey.New(tactkey.Options{Logger: options.Logger})
	}

	if options.CDN {
		hosts := build.CDNHosts
		if len(options.CDNHosts) > 0 {
			hosts = options.CDNHosts
		}
		storage.cdn, err = cdn.New(cdn.Options{
			Hosts:      hosts,
			Path:       build.CDNPath,
			HTTPClient: options.HTTPClient,
			Timeout:    options.CDNTimeout,
			Logger:     options.Logger,
		})
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("configuring cdn: %w", err)
		}
	}

	if err := storage.load(ctx); err != nil {
		storage.Close()
		return nil, err
	}
	logger.Info("storage opened",
		"local_entries", storage.local.Len(),
		"encoding_entries", storage.encoding.Len(),
		"root_entries", storage.root.Len(),
		"duration", time.Since(start),
	)

	if options.SeedKeys {
		if _, err := storage.SeedKeys(ctx); err != nil {
			logger.Warn("seeding keys from lookup tables failed", "error", err)
		}
	}
	return storage, nil
}

func (s *Storage) load(ctx context.Context) error {
	local, err := archiveindex.LoadLocal(ctx, s.build.ArchiveDir())
	switch {
	case err == nil:
		s.local = local
	case errors.Is(err, cascerr.ErrFileNotFound) && s.cdn != nil:
		s.logger.Warn("no local indices, reading from cdn only", "error", err)
		s.local = archiveindex.NewLocalIndex()
	default:
		return fmt.Errorf("loading local indices: %w", err)
	}

	// A build config with a single encoding value names the table by
	// content key only; installs store it under the same key.
	encodingKey := s.build.EncodingKey
	if !s.build.HasEncodingKey {
		encodingKey = hashkey.EncodingKey(s.build.EncodingContent)
	}
	data, err := s.FetchEncoded(ctx, encodingKey)
	if err != nil {
		return fmt.Errorf("reading encoding table %s: %w", encodingKey, err)
	}
	s.encoding, err = encodingtable.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing encoding table %s: %w", encodingKey, err)
	}
	if names := s.encoding.KeyNames(); len(names) > 0 {
		missing := 0
		for _, name := range names {
			if _, ok := s.keys.Key(name); !ok {
				missing++
			}
		}
		s.logger.Info("encoding table references encryption keys", "keys", len(names), "missing", missing)
	}

	data, err = s.FetchContent(ctx, s.build.Root)
	if err != nil {
		return fmt.Errorf("reading root manifest %s: %w", s.build.Root, err)
	}
	s.root, err = rootmanifest.Parse(data, rootmanifest.Options{LocaleMask: s.localeMask})
	if err != nil {
		return fmt.Errorf("parsing root manifest %s: %w", s.build.Root, err)
	}
	return nil
}

// OpenResult is delivered by OpenAsync.
type OpenResult struct {
	Storage *Storage
	Err     error
}

// OpenAsync runs Open on its own goroutine. The channel receives
// exactly one result and is then closed.
func OpenAsync(ctx context.Context, options Options) <-chan OpenResult {
	results := make(chan OpenResult, 1)
	go func() {
		defer close(results)
		storage, err := Open(ctx, options)
		results <- OpenResult{Storage: storage, Err: err}
	}()
	return results
}

// Build returns the resolved build configuration.
func (s *Storage) Build() *buildconfig.BuildConfig { return s.build }

// Encoding returns the encoding table.
func (s *Storage) Encoding() *encodingtable.Table { return s.encoding }

// Root returns the root manifest.
func (s *Storage) Root() *rootmanifest.Manifest { return s.root }

// Keys returns the key service.
func (s *Storage) Keys() *tactkey.Service { return s.keys }

// LocalIndex returns the merged local archive index.
func (s *Storage) LocalIndex() *archiveindex.LocalIndex { return s.local }

// Listfile returns the listfile, or nil.
func (s *Storage) Listfile() *listfile.Listfile { return s.listfile }

// Close releases the archive mappings.
func (s *Storage) Close() error {
	return s.archives.Close()
}

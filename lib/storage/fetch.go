// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/casc/lib/archive"
	"github.com/bureau-foundation/casc/lib/archiveindex"
	"github.com/bureau-foundation/casc/lib/blte"
	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// Fetch returns the decoded bytes of the asset with file data id id.
func (s *Storage) Fetch(ctx context.Context, id uint32) ([]byte, error) {
	contentKey, ok := s.root.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("file data id %d not in root manifest: %w", id, cascerr.ErrFileNotFound)
	}
	data, err := s.FetchContent(ctx, contentKey)
	if err != nil {
		s.logger.Warn("fetch failed", "id", id, "ckey", contentKey.String(), "error", err)
		return nil, fmt.Errorf("file data id %d: %w", id, err)
	}
	return data, nil
}

// FetchByName looks name up in the listfile and fetches it.
func (s *Storage) FetchByName(ctx context.Context, name string) ([]byte, error) {
	if s.listfile == nil {
		return nil, fmt.Errorf("fetching %q: no listfile loaded: %w", name, cascerr.ErrFileNotFound)
	}
	id, ok := s.listfile.ID(name)
	if !ok {
		return nil, fmt.Errorf("%q not in listfile: %w", name, cascerr.ErrFileNotFound)
	}
	return s.Fetch(ctx, id)
}

// FetchContent returns the decoded bytes for a content key. Its
// encoding keys are tried in table order; the first one that some
// source holds is decoded.
func (s *Storage) FetchContent(ctx context.Context, key hashkey.ContentKey) ([]byte, error) {
	// The root manifest itself is fetched while the table is loading.
	if s.encoding == nil {
		return nil, fmt.Errorf("content key %s: %w", key, cascerr.ErrMissingEncoding)
	}
	entry, ok := s.encoding.Lookup(key)
	if !ok || len(entry.Keys) == 0 {
		return nil, fmt.Errorf("content key %s: %w", key, cascerr.ErrMissingEncoding)
	}

	var lastErr error
	for _, encodingKey := range entry.Keys {
		data, err := s.FetchEncoded(ctx, encodingKey)
		if err == nil {
			if uint64(len(data)) != entry.Size {
				s.logger.Debug("decoded size differs from encoding table",
					"ckey", key.String(), "ekey", encodingKey.String(),
					"size", len(data), "declared", entry.Size)
			}
			return data, nil
		}
		if !errors.Is(err, cascerr.ErrFileNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// FetchEncoded returns the decoded bytes for an encoding key.
func (s *Storage) FetchEncoded(ctx context.Context, key hashkey.EncodingKey) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			return data, nil
		}
	}

	payload, source, err := s.payload(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := s.decode(ctx, payload, key)
	if err != nil {
		return nil, fmt.Errorf("decoding %s from %s: %w", key, source, err)
	}

	if s.cache != nil {
		if err := s.cache.Put(key, data); err != nil {
			s.logger.Warn("caching asset failed", "ekey", key.String(), "error", err)
		}
	}
	return data, nil
}

// payload returns the BLTE container for key from the first source
// holding it, with a label naming the source.
func (s *Storage) payload(ctx context.Context, key hashkey.EncodingKey) ([]byte, string, error) {
	if entry, ok := s.local.Lookup(key); ok {
		payload, err := s.archives.Payload(entry)
		if err == nil {
			return payload, fmt.Sprintf("%s offset %d", archive.FileName(entry.Archive), entry.Offset), nil
		}
		if !errors.Is(err, cascerr.ErrFileNotFound) || s.cdn == nil {
			return nil, "", fmt.Errorf("reading %s: %w", key, err)
		}
		s.logger.Debug("local archive missing, trying cdn", "ekey", key.String(), "error", err)
	}

	if s.cdn == nil {
		return nil, "", fmt.Errorf("encoding key %s not in local indices: %w", key, cascerr.ErrFileNotFound)
	}

	if entry, ok := s.cdnIndexes(ctx).Lookup(key); ok && int(entry.Archive) < len(s.build.Archives) {
		name := s.build.Archives[entry.Archive]
		start := int64(entry.Offset)
		payload, err := s.cdn.GetRange(ctx, name, start, start+int64(entry.Size)-1)
		if err == nil {
			return payload, fmt.Sprintf("cdn archive %s offset %d", name, entry.Offset), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		s.logger.Warn("cdn archive range failed", "ekey", key.String(), "archive", name, "offset", entry.Offset, "error", err)
	}

	payload, err := s.cdn.Get(ctx, key.String(), false)
	if err == nil {
		return payload, "cdn loose file", nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	s.logger.Debug("cdn loose file failed", "ekey", key.String(), "error", err)
	return nil, "", fmt.Errorf("encoding key %s not found locally or on cdn: %w", key, cascerr.ErrFileNotFound)
}

// cdnIndexes loads the CDN archive indices on first use. The load is
// shared by every later fetch, so it does not inherit the first
// caller's cancellation.
func (s *Storage) cdnIndexes(ctx context.Context) *archiveindex.CDNIndex {
	s.cdnOnce.Do(func() {
		ctx := context.WithoutCancel(ctx)
		var fetcher archiveindex.Fetcher
		if s.fetchIndices {
			fetcher = s.cdn
		}
		index, err := archiveindex.LoadCDN(ctx, s.build.IndicesDir(), s.build.Archives, fetcher, s.logger)
		if err != nil {
			s.logger.Warn("loading cdn indices failed", "error", err)
			index = archiveindex.NewCDNIndex()
		}
		s.cdnIndex = index
	})
	return s.cdnIndex
}

// decode decodes payload strictly, refreshing keys and retrying once
// when a key is missing. A key that is still missing yields
// zero-filled chunks unless keys are strict.
func (s *Storage) decode(ctx context.Context, payload []byte, key hashkey.EncodingKey) ([]byte, error) {
	tag := key.String()
	decoder := blte.Decoder{Keys: s.keys, Strict: true, DumpDir: s.dumpDir, Logger: s.baseLogger}

	data, err := decoder.Decode(payload, tag)
	name, missing := cascerr.MissingKey(err)
	if !missing {
		return data, err
	}
	if s.keys.Refresh(ctx, name) {
		s.logger.Info("retrying decode after key refresh", "ekey", tag, "key_name", fmt.Sprintf("%016X", name))
		data, err = decoder.Decode(payload, tag)
		name, missing = cascerr.MissingKey(err)
		if !missing {
			return data, err
		}
	}
	if s.strictKeys {
		return nil, err
	}

	s.logger.Warn("decoding with zero-filled chunks", "ekey", tag, "key_name", fmt.Sprintf("%016X", name))
	decoder.Strict = false
	return decoder.Decode(payload, tag)
}

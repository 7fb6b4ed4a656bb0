// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/casc/lib/tactkey"
)

// SeedKeys reads the TactKey and TactKeyLookup tables from the
// installation and inserts every key they resolve.
func (s *Storage) SeedKeys(ctx context.Context) (tactkey.SeedResult, error) {
	keyTable, err := s.Fetch(ctx, tactkey.TactKeyFileDataID)
	if err != nil {
		return tactkey.SeedResult{}, fmt.Errorf("reading TactKey table: %w", err)
	}
	lookupTable, err := s.Fetch(ctx, tactkey.TactKeyLookupFileDataID)
	if err != nil {
		return tactkey.SeedResult{}, fmt.Errorf("reading TactKeyLookup table: %w", err)
	}
	return s.keys.SeedFromLookupTables(keyTable, lookupTable)
}

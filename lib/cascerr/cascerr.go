// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cascerr defines the error kinds shared by every stage of the
// CASC read path.
//
// The kinds are sentinel values matched with [errors.Is]. Stages wrap
// them with context (asset id, key, archive offset) using
// fmt.Errorf("...: %w", err), so a caller several layers up can still
// classify a failure without parsing messages:
//
//   - [ErrFileNotFound] -- a required file or index entry is absent
//   - [ErrInvalidConfig] -- malformed build info, config, index,
//     manifest, or table
//   - [ErrInvalidBLTE] -- any container structural or integrity
//     violation
//   - [ErrMissingEncoding] -- a content key is not in the encoding table
//   - [ErrMissingDecryptionKey] -- an encrypted chunk names a key the
//     key service does not hold; carried by [*MissingKeyError]
//   - [ErrInvalidHex] -- a hex string failed to decode
//
// Filesystem and network failures are not re-kinded: they stay wrapped
// as the underlying *fs.PathError or *url.Error and [IsIO] reports
// them.
//
// This package has no dependencies on other packages in this module.
package cascerr

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
)

var (
	ErrFileNotFound         = errors.New("file not found")
	ErrInvalidConfig        = errors.New("invalid config file")
	ErrInvalidBLTE          = errors.New("invalid blte format")
	ErrMissingEncoding      = errors.New("missing encoding entry")
	ErrMissingDecryptionKey = errors.New("missing decryption key")
	ErrInvalidHex           = errors.New("invalid hex string")
)

// MissingKeyError reports an encrypted BLTE chunk whose key name is not
// known. It is the only recoverable decode failure: the storage layer
// refreshes the key service once and retries.
type MissingKeyError struct {
	Name uint64
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing decryption key %016X", e.Name)
}

// Is makes errors.Is(err, ErrMissingDecryptionKey) match.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingDecryptionKey
}

// MissingKey returns the key name carried by err, if err wraps a
// *MissingKeyError.
func MissingKey(err error) (uint64, bool) {
	var missing *MissingKeyError
	if errors.As(err, &missing) {
		return missing.Name, true
	}
	return 0, false
}

// IsIO reports whether err is a wrapped filesystem or network failure
// rather than one of the format kinds above.
func IsIO(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dump writes decoded table rows and other diagnostics as JSON,
// YAML, or CBOR.
package dump

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/casc/lib/codec"
)

// Format is an output encoding.
type Format int

const (
	JSON Format = iota
	YAML
	CBOR
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	case CBOR:
		return "cbor"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Extension returns the conventional file extension, dot included.
func (f Format) Extension() string { return "." + f.String() }

// ParseFormat maps a name onto a Format. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "cbor":
		return CBOR, nil
	}
	return 0, fmt.Errorf("unknown dump format %q (want json, yaml or cbor)", name)
}

// Write encodes value to w. A nil slice is written as an empty list.
func Write(w io.Writer, format Format, value any) error {
	value = normalizeNilSlice(value)
	switch format {
	case JSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case YAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	case CBOR:
		return codec.NewEncoder(w).Encode(value)
	}
	return fmt.Errorf("unknown dump format %s", format)
}

// WriteFile encodes value to path, creating parent directories. The
// file is written to a temporary name and renamed into place.
func WriteFile(path string, format Format, value any) error {
	return WriteFileFunc(path, func(w io.Writer) error {
		if err := Write(w, format, value); err != nil {
			return fmt.Errorf("encoding %s dump: %w", format, err)
		}
		return nil
	})
}

// WriteFileFunc creates path atomically with the bytes write produces.
// Nothing is left behind when write fails.
func WriteFileFunc(path string, write func(io.Writer) error) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	temporary, err := os.CreateTemp(directory, ".dump-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	temporaryPath := temporary.Name()
	success := false
	defer func() {
		if !success {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	if err := write(temporary); err != nil {
		return err
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fmt.Errorf("renaming %s into place: %w", filepath.Base(path), err)
	}
	success = true
	return nil
}

func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetcache

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an entry body is stored. The string form
// is what the entry header records.
type Compression uint8

const (
	// CompressionNone stores the body as-is. Used for payloads that
	// were already compressed inside the game client (BLP, M2 with
	// packed streams) where another pass only costs CPU.
	CompressionNone Compression = iota

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4

	// CompressionZstd is zstd at the default level: better ratio for
	// tables and text.
	CompressionZstd

	// CompressionAuto probes each entry with SelectCompression. It is
	// a cache setting, never recorded in an entry.
	CompressionAuto
)

// String returns the configuration and header name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionAuto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name. The empty string means
// CompressionAuto.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "auto":
		return CompressionAuto, nil
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// errIncompressible is returned when compressed output would not be
// smaller than the input. The caller stores the body uncompressed.
var errIncompressible = errors.New("data is incompressible")

// compress compresses data with c.
func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

// decompress reverses compress. The output length must equal size.
func decompress(body []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(body) != size {
			return nil, fmt.Errorf("stored body is %d bytes, header says %d", len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, size)
	case CompressionZstd:
		return decompressZstd(body, size)
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(body []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use; one of
// each serves the whole process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("assetcache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("assetcache: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(body []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}

// probeSize bounds how much of an entry SelectCompression compresses
// to estimate the ratio.
const probeSize = 64 * 1024

// SelectCompression picks an algorithm for data by compressing a
// prefix with zstd: a ratio of at least 1.5 selects zstd, at least 1.1
// selects LZ4, and anything less stores the data uncompressed.
func SelectCompression(data []byte) Compression {
	if len(data) == 0 {
		return CompressionNone
	}
	probe := data[:min(len(data), probeSize)]
	compressed := zstdEncoder.EncodeAll(probe, nil)
	ratio := float64(len(probe)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// compressAuto compresses data with c, resolving CompressionAuto by
// probing and falling back to CompressionNone when the chosen
// algorithm does not shrink the data.
func compressAuto(data []byte, c Compression) ([]byte, Compression, error) {
	if c == CompressionAuto {
		c = SelectCompression(data)
	}
	body, err := compress(data, c)
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return body, c, nil
}

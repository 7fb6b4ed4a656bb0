// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// keyMap is a KeyLookup backed by a map.
type keyMap map[uint64][16]byte

func (m keyMap) Key(name uint64) ([16]byte, bool) {
	key, ok := m[name]
	return key, ok
}

var (
	testKeyName = uint64(0xFA505078126ACB3E)
	testKey     = [16]byte{
		0xBD, 0xC5, 0x18, 0x62, 0xAB, 0xED, 0x79, 0xB2,
		0xDE, 0x48, 0xC8, 0xE7, 0xE6, 0x6C, 0x62, 0x00,
	}
)

func mustDeflate(t *testing.T, data []byte) Chunk {
	t.Helper()
	chunk, err := DeflateChunk(data)
	if err != nil {
		t.Fatalf("DeflateChunk: %v", err)
	}
	return chunk
}

func mustEncrypt(t *testing.T, index int, inner Chunk) Chunk {
	t.Helper()
	chunk, err := EncryptedChunk(testKeyName, testKey, []byte{1, 2, 3, 4}, index, inner)
	if err != nil {
		t.Fatalf("EncryptedChunk: %v", err)
	}
	return chunk
}

func TestDecodeRoundtrip(t *testing.T) {
	text := bytes.Repeat([]byte("spell data "), 200)
	tests := []struct {
		name   string
		chunks []Chunk
		want   []byte
	}{
		{
			name:   "single normal",
			chunks: []Chunk{NormalChunk([]byte("hello"))},
			want:   []byte("hello"),
		},
		{
			name:   "single deflate",
			chunks: []Chunk{mustDeflate(t, text)},
			want:   text,
		},
		{
			name: "mixed",
			chunks: []Chunk{
				NormalChunk([]byte("head-")),
				mustDeflate(t, text),
				NormalChunk(nil),
				mustDeflate(t, []byte("-tail")),
			},
			want: append(append([]byte("head-"), text...), []byte("-tail")...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(Build(tt.chunks...))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded, tt.want) {
				t.Errorf("decoded %d bytes, want %d", len(decoded), len(tt.want))
			}
		})
	}
}

func TestDecodeTwoByteDeflateChunk(t *testing.T) {
	container := Build(mustDeflate(t, []byte{0xAB, 0xCD}))

	decoded, err := Decode(container)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, []byte{0xAB, 0xCD}) {
		t.Errorf("decoded %x, want abcd", decoded)
	}

	// The table hash sits right after the two size fields of the
	// first entry.
	corrupted := bytes.Clone(container)
	corrupted[12+8] ^= 0xFF
	if _, err := Decode(corrupted); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("corrupted hash: error = %v, want ErrInvalidBLTE", err)
	}
}

func TestDecodeIntegrity(t *testing.T) {
	container := Build(NormalChunk([]byte("abcdefgh")), mustDeflate(t, []byte("ijklmnop")))
	headerSize := 12 + 2*tableEntrySize

	for offset := headerSize; offset < len(container); offset++ {
		corrupted := bytes.Clone(container)
		corrupted[offset] ^= 0x01
		if _, err := Decode(corrupted); !errors.Is(err, cascerr.ErrInvalidBLTE) {
			t.Fatalf("flipping byte %d: error = %v, want ErrInvalidBLTE", offset, err)
		}
	}
}

func TestDecodeImplicitChunkUnchecked(t *testing.T) {
	container := BuildSingle(NormalChunk([]byte("0123456789abcdef")))
	container[len(container)-1] = 'X'

	decoded, err := Decode(container)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != "0123456789abcdeX" {
		t.Errorf("decoded %q", decoded)
	}
}

func TestDecodeImplicitLengthEnforced(t *testing.T) {
	// An implicit chunk decodes to the payload size less the header and
	// type byte, whatever its type.
	text := bytes.Repeat([]byte("z"), 1000)
	if _, err := Decode(BuildSingle(mustDeflate(t, text))); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("implicit deflate: error = %v, want ErrInvalidBLTE", err)
	}

	if _, err := Decode([]byte("BLTE\x00\x00\x00\x00")); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("empty implicit chunk: error = %v, want ErrInvalidBLTE", err)
	}
}

func TestDecodeImplicitMissingKey(t *testing.T) {
	container := BuildSingle(mustEncrypt(t, 0, NormalChunk(bytes.Repeat([]byte{0x11}, 16))))

	t.Run("zero fill", func(t *testing.T) {
		decoded, err := (&Decoder{}).Decode(container, "")
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if want := make([]byte, len(container)-9); !bytes.Equal(decoded, want) {
			t.Errorf("decoded %x, want %d zero bytes", decoded, len(want))
		}
	})

	t.Run("strict", func(t *testing.T) {
		_, err := (&Decoder{Strict: true}).Decode(container, "")
		if name, ok := cascerr.MissingKey(err); !ok || name != testKeyName {
			t.Errorf("error = %v, want missing key %016X", err, testKeyName)
		}
	})
}

func TestDecodeMalformed(t *testing.T) {
	valid := Build(NormalChunk([]byte("data")))

	withFlag := bytes.Clone(valid)
	withFlag[8] = 0x10

	zeroCount := bytes.Clone(valid)
	zeroCount[11] = 0

	badHeaderSize := bytes.Clone(valid)
	badHeaderSize[7]++

	badType := Build(Chunk{Encoded: []byte("Qdata"), Size: 4})
	frame := Build(Chunk{Encoded: []byte("Fdata"), Size: 4})
	shortNormal := Build(Chunk{Encoded: []byte("Ndat"), Size: 4})

	tests := []struct {
		name    string
		payload []byte
	}{
		{"too short", []byte("BLTE")},
		{"bad magic", append([]byte("ABCD"), valid[4:]...)},
		{"bad table flag", withFlag},
		{"zero chunk count", zeroCount},
		{"header size mismatch", badHeaderSize},
		{"truncated chunk", valid[:len(valid)-1]},
		{"unknown chunk type", badType},
		{"frame chunk", frame},
		{"normal length mismatch", shortNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.payload); !errors.Is(err, cascerr.ErrInvalidBLTE) {
				t.Errorf("error = %v, want ErrInvalidBLTE", err)
			}
		})
	}
}

func TestDecodeEncrypted(t *testing.T) {
	plain := []byte("encrypted spell names")
	container := Build(
		NormalChunk([]byte("clear:")),
		mustEncrypt(t, 1, NormalChunk(plain)),
	)

	decoder := Decoder{Keys: keyMap{testKeyName: testKey}}
	decoded, err := decoder.Decode(container, "test")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if want := append([]byte("clear:"), plain...); !bytes.Equal(decoded, want) {
		t.Errorf("decoded %q, want %q", decoded, want)
	}
}

func TestDecodeEncryptedDeflate(t *testing.T) {
	text := bytes.Repeat([]byte("compressed then encrypted "), 50)
	container := Build(mustEncrypt(t, 0, mustDeflate(t, text)))

	decoder := Decoder{Keys: keyMap{testKeyName: testKey}}
	decoded, err := decoder.Decode(container, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, text) {
		t.Errorf("decoded %d bytes, want %d", len(decoded), len(text))
	}
}

func TestDecodeEncryptedWrongIndex(t *testing.T) {
	// Encrypting for position 5 but storing at position 0 derives the
	// wrong nonce, so the plaintext has no recognisable chunk type and
	// is taken literally. The length still matches, the content does not.
	plain := []byte("payload")
	container := Build(mustEncrypt(t, 5, NormalChunk(plain)))

	decoder := Decoder{Keys: keyMap{testKeyName: testKey}}
	decoded, err := decoder.Decode(container, "")
	if err == nil && bytes.Equal(decoded, plain) {
		t.Fatal("chunk index should be folded into the nonce")
	}
}

func TestDecodeMissingKey(t *testing.T) {
	plain := bytes.Repeat([]byte{0x5A}, 64)
	container := Build(NormalChunk([]byte("abc")), mustEncrypt(t, 1, NormalChunk(plain)))

	t.Run("zero fill", func(t *testing.T) {
		decoded, err := (&Decoder{}).Decode(container, "")
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		want := append([]byte("abc"), make([]byte, len(plain))...)
		if !bytes.Equal(decoded, want) {
			t.Errorf("decoded %x, want %x", decoded, want)
		}
	})

	t.Run("strict", func(t *testing.T) {
		_, err := (&Decoder{Strict: true}).Decode(container, "")
		if !errors.Is(err, cascerr.ErrMissingDecryptionKey) {
			t.Fatalf("error = %v, want ErrMissingDecryptionKey", err)
		}
		name, ok := cascerr.MissingKey(err)
		if !ok || name != testKeyName {
			t.Errorf("MissingKey = %016X, %v; want %016X", name, ok, testKeyName)
		}
	})
}

func TestDecodeMissingKeyClearPayload(t *testing.T) {
	// An 'E' chunk whose body is a plain chunk decodes without a key.
	inner := NormalChunk([]byte("not really encrypted"))
	encoded := []byte{'E', 8, 0x3E, 0xCB, 0x6A, 0x12, 0x78, 0x50, 0x50, 0xFA, 4, 0, 0, 0, 0, 'S'}
	encoded = append(encoded, inner.Encoded...)
	container := Build(Chunk{Encoded: encoded, Size: inner.Size})

	decoded, err := (&Decoder{Strict: true}).Decode(container, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != "not really encrypted" {
		t.Errorf("decoded %q", decoded)
	}
}

func TestDecodeARC4Rejected(t *testing.T) {
	chunk := mustEncrypt(t, 0, NormalChunk([]byte("x")))
	// Cipher selector follows: type, name size, name, iv size, iv.
	chunk.Encoded[1+1+8+1+4] = 'A'
	decoder := Decoder{Keys: keyMap{testKeyName: testKey}}
	if _, err := decoder.Decode(Build(chunk), ""); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("error = %v, want ErrInvalidBLTE", err)
	}
}

func TestDecodeNestingBound(t *testing.T) {
	chunk := NormalChunk([]byte("deep"))
	for i := 0; i < MaxNesting+1; i++ {
		chunk = mustEncrypt(t, 0, chunk)
	}
	decoder := Decoder{Keys: keyMap{testKeyName: testKey}}
	if _, err := decoder.Decode(Build(chunk), ""); !errors.Is(err, cascerr.ErrInvalidBLTE) {
		t.Errorf("error = %v, want ErrInvalidBLTE", err)
	}

	allowed := NormalChunk([]byte("deep"))
	for i := 0; i < MaxNesting; i++ {
		allowed = mustEncrypt(t, 0, allowed)
	}
	decoded, err := decoder.Decode(Build(allowed), "")
	if err != nil {
		t.Fatalf("Decode at maximum nesting: %v", err)
	}
	if string(decoded) != "deep" {
		t.Errorf("decoded %q", decoded)
	}
}

func TestDecodeDumpsFailedChunk(t *testing.T) {
	dir := t.TempDir()
	container := Build(NormalChunk([]byte("ok")), Chunk{Encoded: []byte("Qbad"), Size: 3})

	decoder := Decoder{DumpDir: dir}
	if _, err := decoder.Decode(container, "00ff"); err == nil {
		t.Fatal("expected decode failure")
	}

	data, err := os.ReadFile(filepath.Join(dir, "00ff_chunk0001_raw.bin"))
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if string(data) != "Qbad" {
		t.Errorf("dump contains %q", data)
	}
}

func TestEncryptionKeyNames(t *testing.T) {
	espec := "b:{256K*=e:{3ECB6A12785050FA,01020304,z},*=e:{ZZZZ,00,n}}"
	names := EncryptionKeyNames(espec)
	if len(names) != 1 {
		t.Fatalf("got %d names, want 1: %x", len(names), names)
	}
	if names[0] != testKeyName {
		t.Errorf("name = %016X, want %016X", names[0], testKeyName)
	}

	if names := EncryptionKeyNames("b:{*=z}"); len(names) != 0 {
		t.Errorf("unencrypted espec yielded %x", names)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/salsa20"
)

// "expand 16-byte k", the Salsa20 constants for 128-bit keys.
var tau = [4]uint32{0x61707865, 0x3120646e, 0x79622d36, 0x6b206574}

// "expand 32-byte k".
var sigma = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574}

// XORKeyStream XORs src with the Salsa20/20 keystream for key and
// nonce, starting at block counter zero, into dst. Keys are 16 bytes
// (the size TACT keys use) or 32 bytes. dst and src may overlap
// exactly.
func XORKeyStream(dst, src []byte, nonce [8]byte, key []byte) error {
	if len(dst) < len(src) {
		return fmt.Errorf("salsa20: output shorter than input")
	}
	switch len(key) {
	case 32:
		var full [32]byte
		copy(full[:], key)
		salsa20.XORKeyStream(dst[:len(src)], src, nonce[:], &full)
		return nil
	case 16:
		xorKeyStream(dst, src, newState(key, nonce))
		return nil
	default:
		return fmt.Errorf("salsa20: key is %d bytes, want 16 or 32", len(key))
	}
}

// newState lays out the initial Salsa20 matrix. A 16-byte key fills
// both key rows and selects tau; a 32-byte key selects sigma.
func newState(key []byte, nonce [8]byte) [16]uint32 {
	constants := sigma
	high := key[16:]
	if len(key) == 16 {
		constants = tau
		high = key
	}

	var state [16]uint32
	state[0] = constants[0]
	state[5] = constants[1]
	state[10] = constants[2]
	state[15] = constants[3]
	for i := 0; i < 4; i++ {
		state[1+i] = binary.LittleEndian.Uint32(key[4*i:])
		state[11+i] = binary.LittleEndian.Uint32(high[4*i:])
	}
	state[6] = binary.LittleEndian.Uint32(nonce[0:4])
	state[7] = binary.LittleEndian.Uint32(nonce[4:8])
	return state
}

func xorKeyStream(dst, src []byte, state [16]uint32) {
	var block [64]byte
	for len(src) > 0 {
		salsaBlock(&block, &state)
		n := min(len(src), len(block))
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ block[i]
		}
		dst, src = dst[n:], src[n:]

		state[8]++
		if state[8] == 0 {
			state[9]++
		}
	}
}

// salsaBlock runs the twenty Salsa20 rounds over state and writes the
// keystream block.
func salsaBlock(out *[64]byte, state *[16]uint32) {
	x := *state
	for round := 0; round < 20; round += 2 {
		// Columns.
		x[4] ^= bits.RotateLeft32(x[0]+x[12], 7)
		x[8] ^= bits.RotateLeft32(x[4]+x[0], 9)
		x[12] ^= bits.RotateLeft32(x[8]+x[4], 13)
		x[0] ^= bits.RotateLeft32(x[12]+x[8], 18)

		x[9] ^= bits.RotateLeft32(x[5]+x[1], 7)
		x[13] ^= bits.RotateLeft32(x[9]+x[5], 9)
		x[1] ^= bits.RotateLeft32(x[13]+x[9], 13)
		x[5] ^= bits.RotateLeft32(x[1]+x[13], 18)

		x[14] ^= bits.RotateLeft32(x[10]+x[6], 7)
		x[2] ^= bits.RotateLeft32(x[14]+x[10], 9)
		x[6] ^= bits.RotateLeft32(x[2]+x[14], 13)
		x[10] ^= bits.RotateLeft32(x[6]+x[2], 18)

		x[3] ^= bits.RotateLeft32(x[15]+x[11], 7)
		x[7] ^= bits.RotateLeft32(x[3]+x[15], 9)
		x[11] ^= bits.RotateLeft32(x[7]+x[3], 13)
		x[15] ^= bits.RotateLeft32(x[11]+x[7], 18)

		// Rows.
		x[1] ^= bits.RotateLeft32(x[0]+x[3], 7)
		x[2] ^= bits.RotateLeft32(x[1]+x[0], 9)
		x[3] ^= bits.RotateLeft32(x[2]+x[1], 13)
		x[0] ^= bits.RotateLeft32(x[3]+x[2], 18)

		x[6] ^= bits.RotateLeft32(x[5]+x[4], 7)
		x[7] ^= bits.RotateLeft32(x[6]+x[5], 9)
		x[4] ^= bits.RotateLeft32(x[7]+x[6], 13)
		x[5] ^= bits.RotateLeft32(x[4]+x[7], 18)

		x[11] ^= bits.RotateLeft32(x[10]+x[9], 7)
		x[8] ^= bits.RotateLeft32(x[11]+x[10], 9)
		x[9] ^= bits.RotateLeft32(x[8]+x[11], 13)
		x[10] ^= bits.RotateLeft32(x[9]+x[8], 18)

		x[12] ^= bits.RotateLeft32(x[15]+x[14], 7)
		x[13] ^= bits.RotateLeft32(x[12]+x[15], 9)
		x[14] ^= bits.RotateLeft32(x[13]+x[12], 13)
		x[15] ^= bits.RotateLeft32(x[14]+x[13], 18)
	}
	for i := range x {
		binary.LittleEndian.PutUint32(out[4*i:], x[i]+state[i])
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later

// Package bitbuf packs and unpacks values at bit granularity into a
// caller-owned byte buffer. The layout is little-endian 32-bit words with
// multi-bit fields packed least-significant-bit first, so a stream written
// here can be consumed by any reader that honors the same word order.
//
// Neither Writer nor Reader allocates; both borrow the buffer they are bound
// to. Running past the declared bit length sets a sticky overflow flag and
// turns every further operation into a failure-returning no-op until Reset.
package bitbuf

import (
	"encoding/binary"
)

// ErrorType classifies the diagnostics passed to an ErrorHandler.
type ErrorType int

const (
	ErrValueOutOfRange ErrorType = iota
	ErrBufferOverrun
)

func (e ErrorType) String() string {
	switch e {
	case ErrValueOutOfRange:
		return "value out of range"
	case ErrBufferOverrun:
		return "buffer overrun"
	}
	return "unknown"
}

// ErrorHandler is called synchronously, on the goroutine that hit the
// condition, with the debug name of the offending buffer. Install it before
// sharing the instance; there is no internal locking.
type ErrorHandler func(kind ErrorType, debugName string)

// Precalculated masks for word-straddling writes.
// bitWriteMasks[startBit][bitsLeft] keeps every bit outside the window
// [startBit, startBit+bitsLeft) of a word; extraMasks[n] keeps the low n bits.
var (
	bitWriteMasks [32][33]uint32
	extraMasks    [33]uint32
)

func init() {
	for startBit := uint(0); startBit < 32; startBit++ {
		for bitsLeft := uint(0); bitsLeft < 33; bitsLeft++ {
			endBit := startBit + bitsLeft
			bitWriteMasks[startBit][bitsLeft] = 1<<startBit - 1
			if endBit < 32 {
				bitWriteMasks[startBit][bitsLeft] |= ^uint32(1<<endBit - 1)
			}
		}
	}
	for maskBit := uint(0); maskBit < 32; maskBit++ {
		extraMasks[maskBit] = 1<<maskBit - 1
	}
	extraMasks[32] = ^uint32(0)
}

// loadWord and storeWord go through a scratch array so that a buffer whose
// byte length is not a multiple of four still honors the word contract: the
// missing tail bytes read as zero and are never written. Bits up there are
// beyond the declared bit length anyway.
func loadWord(data []byte, n int) uint32 {
	off := n * 4
	if off+4 <= len(data) {
		return binary.LittleEndian.Uint32(data[off:])
	}
	var tmp [4]byte
	copy(tmp[:], data[off:])
	return binary.LittleEndian.Uint32(tmp[:])
}

func storeWord(data []byte, n int, v uint32) {
	off := n * 4
	if off+4 <= len(data) {
		binary.LittleEndian.PutUint32(data[off:], v)
		return
	}
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	copy(data[off:], tmp[:])
}

// ZigZagEncode32 maps signed to unsigned so that small magnitudes of either
// sign stay small under varint encoding.
func ZigZagEncode32(n int32) uint32 {
	return uint32(n<<1) ^ uint32(n>>31)
}

func ZigZagDecode32(n uint32) int32 {
	return int32(n>>1) ^ -int32(n&1)
}

func ZigZagEncode64(n int64) uint64 {
	return uint64(n<<1) ^ uint64(n>>63)
}

func ZigZagDecode64(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

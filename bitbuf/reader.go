// SPDX-License-Identifier: GPL-2.0-or-later

package bitbuf

import (
	gmath "math"
	"strings"

	"github.com/chewxy/math32"

	"github.com/DeWolfRobin/TF2CodeRefactor/math/vec"
	"github.com/DeWolfRobin/TF2CodeRefactor/protocol"
)

// Reader consumes a bitstream produced by a compatible Writer. Malformed or
// truncated input degrades to the sticky overflow flag, never to an
// out-of-bounds access.
type Reader struct {
	data     []byte
	dataBits int
	curBit   int
	overflow bool
	name     string
	onError  ErrorHandler
}

// NewReader binds a reader to buf; every bit of buf is considered valid.
func NewReader(buf []byte) *Reader {
	r := &Reader{}
	r.StartReading(buf, -1)
	return r
}

// NewReaderBits binds a reader to buf with an explicit valid bit length,
// which may be less than len(buf)*8.
func NewReaderBits(buf []byte, nBits int) *Reader {
	r := &Reader{}
	r.StartReading(buf, nBits)
	return r
}

// NewReaderNamed is NewReader with a debug name for diagnostics.
func NewReaderNamed(name string, buf []byte) *Reader {
	r := NewReader(buf)
	r.name = name
	return r
}

// StartReading rebinds the reader. nBits == -1 means the full byte length.
func (r *Reader) StartReading(buf []byte, nBits int) {
	r.data = buf
	if nBits < 0 || nBits > len(buf)*8 {
		nBits = len(buf) * 8
	}
	r.dataBits = nBits
	r.curBit = 0
	r.overflow = false
}

func (r *Reader) Reset() {
	r.curBit = 0
	r.overflow = false
}

// Seek moves the cursor to an absolute bit offset. An out-of-range target
// latches the overflow flag.
func (r *Reader) Seek(bitPos int) bool {
	if bitPos < 0 || bitPos > r.dataBits {
		r.setOverflow(ErrBufferOverrun)
		return false
	}
	r.curBit = bitPos
	return true
}

func (r *Reader) SeekRelative(bitDelta int) bool {
	return r.Seek(r.curBit + bitDelta)
}

func (r *Reader) SetDebugName(name string) {
	r.name = name
}

func (r *Reader) DebugName() string {
	return r.name
}

// SetErrorHandler installs the diagnostic callback invoked on overflow.
// Install before use; the slot is not synchronized.
func (r *Reader) SetErrorHandler(fn ErrorHandler) {
	r.onError = fn
}

func (r *Reader) setOverflow(kind ErrorType) {
	if r.onError != nil {
		r.onError(kind, r.name)
	}
	r.overflow = true
}

func (r *Reader) IsOverflowed() bool {
	return r.overflow
}

func (r *Reader) BitsRead() int {
	return r.curBit
}

func (r *Reader) BitsLeft() int {
	return r.dataBits - r.curBit
}

func (r *Reader) BytesLeft() int {
	return r.BitsLeft() >> 3
}

func (r *Reader) TotalBytesAvailable() int {
	return len(r.data)
}

// ReadOneBit returns the next bit, or 0 once overflowed.
func (r *Reader) ReadOneBit() int {
	if r.overflow {
		return 0
	}
	if r.curBit >= r.dataBits {
		r.setOverflow(ErrBufferOverrun)
		return 0
	}
	b := int(r.data[r.curBit>>3]>>uint(r.curBit&7)) & 1
	r.curBit++
	return b
}

// ReadUBitLong returns the next numBits bits, 1 <= numBits <= 32, assembled
// least significant bit first. Returns 0 and latches overflow when the
// stream runs out.
func (r *Reader) ReadUBitLong(numBits int) uint32 {
	if r.overflow {
		return 0
	}
	if r.curBit+numBits > r.dataBits {
		r.setOverflow(ErrBufferOverrun)
		return 0
	}
	startBit := uint(r.curBit & 31)
	iWord := r.curBit >> 5
	ret := loadWord(r.data, iWord) >> startBit
	if fromFirst := 32 - int(startBit); fromFirst < numBits {
		ret |= loadWord(r.data, iWord+1) << uint(fromFirst)
	}
	r.curBit += numBits
	return ret & extraMasks[numBits]
}

// ReadSBitLong reads numBits bits and sign-extends.
func (r *Reader) ReadSBitLong(numBits int) int32 {
	v := r.ReadUBitLong(numBits)
	half := uint32(1) << uint(numBits-1)
	if v >= half {
		v -= half + half
	}
	return int32(v)
}

// ReadBitLong dispatches on signedness; companion to WriteBitLong.
func (r *Reader) ReadBitLong(numBits int, signed bool) uint32 {
	if signed {
		return uint32(r.ReadSBitLong(numBits))
	}
	return r.ReadUBitLong(numBits)
}

// PeekUBitLong reads numBits without advancing the cursor. A peek past the
// end leaves no trace: cursor, overflow flag, and the diagnostic handler all
// stay quiet.
func (r *Reader) PeekUBitLong(numBits int) uint32 {
	saveBit := r.curBit
	saveOverflow := r.overflow
	saveHandler := r.onError
	r.onError = nil
	v := r.ReadUBitLong(numBits)
	r.curBit = saveBit
	r.overflow = saveOverflow
	r.onError = saveHandler
	return v
}

// ReadUBitVar is the inverse of WriteUBitVar.
func (r *Reader) ReadUBitVar() uint32 {
	switch r.ReadUBitLong(2) {
	case 0:
		return r.ReadUBitLong(4)
	case 1:
		return r.ReadUBitLong(8)
	case 2:
		return r.ReadUBitLong(12)
	}
	return r.ReadUBitLong(32)
}

// ReadVarInt32 reads a base-128 varint. The group count is capped at
// MaxVarint32Bytes so a corrupt stream with the continuation bit stuck on
// terminates with a partial result instead of spinning.
func (r *Reader) ReadVarInt32() uint32 {
	var result uint32
	for count := 0; count < protocol.MaxVarint32Bytes; count++ {
		b := r.ReadUBitLong(8)
		result |= (b & 0x7F) << uint(7*count)
		if b&0x80 == 0 {
			break
		}
	}
	return result
}

func (r *Reader) ReadVarInt64() uint64 {
	var result uint64
	for count := 0; count < protocol.MaxVarintBytes; count++ {
		b := uint64(r.ReadUBitLong(8))
		result |= (b & 0x7F) << uint(7*count)
		if b&0x80 == 0 {
			break
		}
	}
	return result
}

func (r *Reader) ReadSignedVarInt32() int32 {
	return ZigZagDecode32(r.ReadVarInt32())
}

func (r *Reader) ReadSignedVarInt64() int64 {
	return ZigZagDecode64(r.ReadVarInt64())
}

// ReadBitAngle is the inverse fixed-point-to-degrees mapping.
func (r *Reader) ReadBitAngle(numBits int) float32 {
	i := r.ReadUBitLong(numBits)
	shift := float32(uint32(1) << uint(numBits))
	return float32(i) * (360.0 / shift)
}

// ReadBitCoord is the inverse of WriteBitCoord.
func (r *Reader) ReadBitCoord() float32 {
	value := float32(0)
	intFlag := r.ReadOneBit()
	fractFlag := r.ReadOneBit()
	if intFlag == 0 && fractFlag == 0 {
		return 0
	}
	signBit := r.ReadOneBit()
	var intVal, fractVal uint32
	if intFlag != 0 {
		intVal = r.ReadUBitLong(protocol.CoordIntegerBits) + 1
	}
	if fractFlag != 0 {
		fractVal = r.ReadUBitLong(protocol.CoordFractionalBits)
	}
	value = float32(intVal) + float32(fractVal)*protocol.CoordResolution
	if signBit != 0 {
		value = -value
	}
	return value
}

// ReadBitCoordMP is the inverse of WriteBitCoordMP; integral and
// lowPrecision must match what the writer used.
func (r *Reader) ReadBitCoordMP(integral, lowPrecision bool) float32 {
	inBounds := r.ReadOneBit() != 0
	hasInt := r.ReadOneBit() != 0

	intBits := protocol.CoordIntegerBits
	if inBounds {
		intBits = protocol.CoordIntegerBitsMP
	}

	if integral {
		if !hasInt {
			return 0
		}
		signBit := r.ReadOneBit()
		value := float32(r.ReadUBitLong(intBits) + 1)
		if signBit != 0 {
			value = -value
		}
		return value
	}

	signBit := r.ReadOneBit()
	var intVal uint32
	if hasInt {
		intVal = r.ReadUBitLong(intBits) + 1
	}
	var value float32
	if lowPrecision {
		fract := r.ReadUBitLong(protocol.CoordFractionalBitsMPLowPrecision)
		value = float32(intVal) + float32(fract)*protocol.CoordResolutionLowPrecision
	} else {
		fract := r.ReadUBitLong(protocol.CoordFractionalBits)
		value = float32(intVal) + float32(fract)*protocol.CoordResolution
	}
	if signBit != 0 {
		value = -value
	}
	return value
}

// ReadBitNormal is the inverse of WriteBitNormal.
func (r *Reader) ReadBitNormal() float32 {
	signBit := r.ReadOneBit()
	fractVal := r.ReadUBitLong(protocol.NormalFractionalBits)
	value := float32(fractVal) * protocol.NormalResolution
	if signBit != 0 {
		value = -value
	}
	return value
}

// ReadBitVec3Coord is the inverse of WriteBitVec3Coord; axes without a
// presence flag decode to zero.
func (r *Reader) ReadBitVec3Coord() vec.Vec3 {
	var fa vec.Vec3
	xflag := r.ReadOneBit()
	yflag := r.ReadOneBit()
	zflag := r.ReadOneBit()
	if xflag != 0 {
		fa.X = r.ReadBitCoord()
	}
	if yflag != 0 {
		fa.Y = r.ReadBitCoord()
	}
	if zflag != 0 {
		fa.Z = r.ReadBitCoord()
	}
	return fa
}

// ReadBitVec3Normal decodes X and Y, then rebuilds Z from the unit-length
// constraint with the transmitted sign. When x²+y² already reaches 1 the
// root is clamped to zero.
func (r *Reader) ReadBitVec3Normal() vec.Vec3 {
	var fa vec.Vec3
	xflag := r.ReadOneBit()
	yflag := r.ReadOneBit()
	if xflag != 0 {
		fa.X = r.ReadBitNormal()
	}
	if yflag != 0 {
		fa.Y = r.ReadBitNormal()
	}
	zNegative := r.ReadOneBit()
	sumSq := fa.X*fa.X + fa.Y*fa.Y
	if sumSq < 1 {
		fa.Z = math32.Sqrt(1 - sumSq)
	}
	if zNegative != 0 {
		fa.Z = -fa.Z
	}
	return fa
}

// ReadBitAngles reads euler angles written by WriteBitAngles.
func (r *Reader) ReadBitAngles() vec.Vec3 {
	return r.ReadBitVec3Coord()
}

// ReadBits bulk-copies nBits into p.
func (r *Reader) ReadBits(p []byte, nBits int) {
	bitsLeft := nBits
	i := 0
	if r.curBit&7 == 0 && !r.overflow && r.curBit+nBits <= r.dataBits {
		// byte aligned, memcpy the whole byte run
		n := bitsLeft >> 3
		copy(p[:n], r.data[r.curBit>>3:])
		r.curBit += n << 3
		bitsLeft &= 7
		i = n
	} else {
		for bitsLeft >= 8 {
			p[i] = byte(r.ReadUBitLong(8))
			i++
			bitsLeft -= 8
		}
	}
	if bitsLeft > 0 {
		p[i] = byte(r.ReadUBitLong(bitsLeft))
	}
}

// ReadBitsClamped reads at most len(p)*8 of the nBits long field, skipping
// whatever does not fit. Returns the number of bits actually copied.
func (r *Reader) ReadBitsClamped(p []byte, nBits int) int {
	outBits := len(p) * 8
	readBits := nBits
	skipped := 0
	if readBits > outBits {
		readBits = outBits
		skipped = nBits - outBits
	}
	r.ReadBits(p, readBits)
	r.SeekRelative(skipped)
	return readBits
}

func (r *Reader) ReadBytes(p []byte) bool {
	r.ReadBits(p, len(p)*8)
	return !r.overflow
}

func (r *Reader) ReadChar() int {
	return int(r.ReadSBitLong(8))
}

func (r *Reader) ReadByte() int {
	return int(r.ReadUBitLong(8))
}

func (r *Reader) ReadShort() int {
	return int(r.ReadSBitLong(16))
}

func (r *Reader) ReadWord() int {
	return int(r.ReadUBitLong(16))
}

func (r *Reader) ReadLong() int32 {
	return r.ReadSBitLong(32)
}

func (r *Reader) ReadLongLong() int64 {
	low := uint64(r.ReadUBitLong(32))
	high := uint64(r.ReadUBitLong(32))
	return int64(low | high<<32)
}

func (r *Reader) ReadFloat() float32 {
	return gmath.Float32frombits(r.ReadUBitLong(32))
}

// ReadString reads bytes up to a zero terminator, or a newline when line is
// set. At most maxLen-1 bytes are kept, but the stream is always consumed
// through the terminator so the cursor stays in sync. The bool result is
// false when the string was truncated or the stream overflowed; truncation
// alone still yields the partial string.
func (r *Reader) ReadString(maxLen int, line bool) (string, bool) {
	var sb strings.Builder
	tooSmall := false
	for {
		val := r.ReadChar()
		if val == 0 || r.overflow {
			break
		}
		if line && val == '\n' {
			break
		}
		if sb.Len() < maxLen-1 {
			sb.WriteByte(byte(val))
		} else {
			tooSmall = true
		}
	}
	return sb.String(), !r.overflow && !tooSmall
}

// CompareBitsAt reports whether numBits at offset in this buffer equal
// numBits at otherOffset in other, without materializing either range.
// A range that overflows either buffer compares unequal.
func (r *Reader) CompareBitsAt(offset int, other *Reader, otherOffset, numBits int) bool {
	if numBits == 0 {
		return true
	}
	if offset+numBits > r.dataBits || otherOffset+numBits > other.dataBits {
		return false
	}

	startBit1 := uint(offset & 31)
	startBit2 := uint(otherOffset & 31)
	p1 := offset >> 5
	p2 := otherOffset >> 5
	remaining := numBits

	// Shifts of 32 vanish, so a word-aligned range contributes nothing
	// from its neighbor.
	for remaining > 32 {
		x := loadWord(r.data, p1) >> startBit1
		x ^= loadWord(r.data, p1+1) << uint(32-startBit1)
		x ^= loadWord(other.data, p2) >> startBit2
		x ^= loadWord(other.data, p2+1) << uint(32-startBit2)
		if x != 0 {
			return false
		}
		p1++
		p2++
		remaining -= 32
	}

	end1 := (offset + numBits - 1) >> 5
	end2 := (otherOffset + numBits - 1) >> 5
	x := loadWord(r.data, p1) >> startBit1
	if end1 != p1 {
		x |= loadWord(r.data, end1) << uint(32-startBit1)
	}
	y := loadWord(other.data, p2) >> startBit2
	if end2 != p2 {
		y |= loadWord(other.data, end2) << uint(32-startBit2)
	}
	return (x^y)&extraMasks[remaining] == 0
}

// ExciseBits deletes bitsToRemove bits starting at startBit by shifting
// every later bit down, then shrinks the declared length. O(remaining
// bits); meant for infrequent edits, not hot paths.
func (r *Reader) ExciseBits(startBit, bitsToRemove int) {
	endBit := startBit + bitsToRemove
	remaining := r.dataBits - endBit

	temp := NewWriterBits(r.data, r.dataBits)
	temp.SeekToBit(startBit)

	r.Seek(endBit)
	for i := 0; i < remaining; i++ {
		temp.WriteOneBit(r.ReadOneBit())
	}

	r.Seek(startBit)
	r.dataBits -= bitsToRemove
}

// SPDX-License-Identifier: GPL-2.0-or-later

package bitbuf

import (
	gmath "math"

	"github.com/chewxy/math32"

	"github.com/DeWolfRobin/TF2CodeRefactor/math/vec"
	"github.com/DeWolfRobin/TF2CodeRefactor/protocol"
)

// Writer appends bit-level encodings to a caller-owned buffer. It never
// allocates and never writes past the declared bit length; an attempt to do
// so sets the sticky overflow flag instead.
type Writer struct {
	data     []byte
	dataBits int
	curBit   int
	overflow bool
	name     string
	onError  ErrorHandler
}

// NewWriter binds a writer to buf with the full byte capacity available.
func NewWriter(buf []byte) *Writer {
	w := &Writer{}
	w.StartWriting(buf, -1)
	return w
}

// NewWriterBits binds a writer to buf with an explicit bit capacity, which
// must not exceed len(buf)*8.
func NewWriterBits(buf []byte, nBits int) *Writer {
	w := &Writer{}
	w.StartWriting(buf, nBits)
	return w
}

// NewWriterNamed is NewWriter with a debug name for diagnostics.
func NewWriterNamed(name string, buf []byte) *Writer {
	w := NewWriter(buf)
	w.name = name
	return w
}

// StartWriting rebinds the writer to buf, resets the cursor and clears the
// overflow flag. nBits == -1 means the full byte capacity. A nBits beyond
// the capacity is a caller error and is clamped.
func (w *Writer) StartWriting(buf []byte, nBits int) {
	w.data = buf
	if nBits < 0 || nBits > len(buf)*8 {
		nBits = len(buf) * 8
	}
	w.dataBits = nBits
	w.curBit = 0
	w.overflow = false
}

// Reset rewinds the cursor and clears the overflow flag. The buffer content
// is left alone.
func (w *Writer) Reset() {
	w.curBit = 0
	w.overflow = false
}

// SeekToBit moves the cursor for patching previously written fields, e.g.
// backfilling a length. The caller is responsible for not tearing a
// multi-bit field.
func (w *Writer) SeekToBit(bitPos int) {
	w.curBit = bitPos
}

func (w *Writer) SetDebugName(name string) {
	w.name = name
}

func (w *Writer) DebugName() string {
	return w.name
}

// SetErrorHandler installs the diagnostic callback invoked on overflow.
// Install before use; the slot is not synchronized.
func (w *Writer) SetErrorHandler(fn ErrorHandler) {
	w.onError = fn
}

func (w *Writer) setOverflow(kind ErrorType) {
	if w.onError != nil {
		w.onError(kind, w.name)
	}
	w.overflow = true
}

func (w *Writer) IsOverflowed() bool {
	return w.overflow
}

// CheckForOverflow reports whether writing nBits more would overflow, and
// latches the flag if so.
func (w *Writer) CheckForOverflow(nBits int) bool {
	if w.curBit+nBits > w.dataBits {
		w.setOverflow(ErrBufferOverrun)
	}
	return w.overflow
}

// Bytes returns the backing buffer.
func (w *Writer) Bytes() []byte {
	return w.data
}

func (w *Writer) BitsWritten() int {
	return w.curBit
}

func (w *Writer) BytesWritten() int {
	return (w.curBit + 7) >> 3
}

func (w *Writer) MaxBits() int {
	return w.dataBits
}

func (w *Writer) BitsLeft() int {
	return w.dataBits - w.curBit
}

// WriteOneBit writes a single bit; any nonzero value writes 1.
func (w *Writer) WriteOneBit(value int) {
	if w.overflow {
		return
	}
	if w.curBit >= w.dataBits {
		w.curBit++
		w.setOverflow(ErrBufferOverrun)
		return
	}
	if value != 0 {
		w.data[w.curBit>>3] |= 1 << uint(w.curBit&7)
	} else {
		w.data[w.curBit>>3] &^= 1 << uint(w.curBit&7)
	}
	w.curBit++
}

// WriteUBitLong writes the low numBits bits of data, 1 <= numBits <= 32,
// least significant bit first, straddling word boundaries as needed.
func (w *Writer) WriteUBitLong(data uint32, numBits int) {
	if w.overflow {
		return
	}
	if w.curBit+numBits > w.dataBits {
		w.curBit += numBits
		w.setOverflow(ErrBufferOverrun)
		return
	}
	data &= extraMasks[numBits]
	startBit := uint(w.curBit & 31)
	iWord := w.curBit >> 5
	w.curBit += numBits

	word := loadWord(w.data, iWord)
	word = (word & bitWriteMasks[startBit][numBits]) | (data << startBit)
	storeWord(w.data, iWord, word)

	written := 32 - int(startBit)
	if written < numBits {
		numBits -= written
		data >>= uint(written)
		word = loadWord(w.data, iWord+1)
		word = (word & bitWriteMasks[0][numBits]) | data
		storeWord(w.data, iWord+1, word)
	}
}

// WriteSBitLong writes numBits bits of a two's-complement value. A value
// that does not fit is truncated; passing one is a caller contract
// violation, not a runtime error.
func (w *Writer) WriteSBitLong(data int32, numBits int) {
	preserve := int32(0x7FFFFFFF) >> uint(32-numBits)
	signExt := (data >> 31) &^ preserve
	v := (data & preserve) | signExt
	if v != data && w.onError != nil {
		w.onError(ErrValueOutOfRange, w.name)
	}
	w.WriteUBitLong(uint32(v), numBits)
}

// WriteBitLong dispatches on signedness; companion to ReadBitLong.
func (w *Writer) WriteBitLong(data uint32, numBits int, signed bool) {
	if signed {
		w.WriteSBitLong(int32(data), numBits)
	} else {
		w.WriteUBitLong(data, numBits)
	}
}

// WriteUBitVar writes a 2-bit width selector followed by 4, 8, 12 or 32
// payload bits, whichever is the smallest that holds data.
func (w *Writer) WriteUBitVar(data uint32) {
	switch {
	case data&0xf == data:
		w.WriteUBitLong(0, 2)
		w.WriteUBitLong(data, 4)
	case data&0xff == data:
		w.WriteUBitLong(1, 2)
		w.WriteUBitLong(data, 8)
	case data&0xfff == data:
		w.WriteUBitLong(2, 2)
		w.WriteUBitLong(data, 12)
	default:
		w.WriteUBitLong(3, 2)
		w.WriteUBitLong(data, 32)
	}
}

// WriteVarInt32 writes a base-128 varint, at most MaxVarint32Bytes bytes.
// When the cursor is byte aligned and room for a worst-case encoding
// remains, the bytes go straight into the buffer.
func (w *Writer) WriteVarInt32(data uint32) {
	if w.overflow {
		return
	}
	if w.curBit&7 == 0 && w.curBit+protocol.MaxVarint32Bytes*8 <= w.dataBits {
		i := w.curBit >> 3
		for data > 0x7F {
			w.data[i] = byte(data) | 0x80
			data >>= 7
			i++
		}
		w.data[i] = byte(data)
		w.curBit = (i + 1) << 3
		return
	}
	for data > 0x7F {
		w.WriteUBitLong((data&0x7F)|0x80, 8)
		data >>= 7
	}
	w.WriteUBitLong(data&0x7F, 8)
}

// WriteVarInt64 writes a base-128 varint, at most MaxVarintBytes bytes.
func (w *Writer) WriteVarInt64(data uint64) {
	if w.overflow {
		return
	}
	if w.curBit&7 == 0 && w.curBit+protocol.MaxVarintBytes*8 <= w.dataBits {
		i := w.curBit >> 3
		for data > 0x7F {
			w.data[i] = byte(data) | 0x80
			data >>= 7
			i++
		}
		w.data[i] = byte(data)
		w.curBit = (i + 1) << 3
		return
	}
	for data > 0x7F {
		w.WriteUBitLong(uint32(data&0x7F)|0x80, 8)
		data >>= 7
	}
	w.WriteUBitLong(uint32(data&0x7F), 8)
}

// WriteSignedVarInt32 zig-zag maps data first so small negative values stay
// short on the wire.
func (w *Writer) WriteSignedVarInt32(data int32) {
	w.WriteVarInt32(ZigZagEncode32(data))
}

func (w *Writer) WriteSignedVarInt64(data int64) {
	w.WriteVarInt64(ZigZagEncode64(data))
}

// VarInt32Size returns the encoded byte length of data.
func VarInt32Size(data uint32) int {
	size := 1
	for data > 0x7F {
		size++
		data >>= 7
	}
	return size
}

func VarInt64Size(data uint64) int {
	size := 1
	for data > 0x7F {
		size++
		data >>= 7
	}
	return size
}

// WriteBitAngle writes a [0,360) degree value as a numBits-wide fraction of
// a full turn.
func (w *Writer) WriteBitAngle(angle float32, numBits int) {
	shift := uint32(1) << uint(numBits)
	mask := shift - 1
	d := uint32(int32(angle/360.0*float32(shift))) & mask
	w.WriteUBitLong(d, numBits)
}

// WriteBitCoord writes a quantized world coordinate: presence flags for the
// integer and fractional parts, a sign bit if either is present, then the
// parts themselves.
func (w *Writer) WriteBitCoord(f float32) {
	signBit := 0
	if f <= -protocol.CoordResolution {
		signBit = 1
	}
	intVal := int(math32.Abs(f))
	fractVal := int(math32.Abs(f*protocol.CoordDenominator)) & (protocol.CoordDenominator - 1)
	w.WriteOneBit(intVal)
	w.WriteOneBit(fractVal)
	if intVal != 0 || fractVal != 0 {
		w.WriteOneBit(signBit)
		if intVal != 0 {
			// 1 is subtracted so the full integer range is usable;
			// zero is covered by the presence flag.
			w.WriteUBitLong(uint32(intVal-1), protocol.CoordIntegerBits)
		}
		if fractVal != 0 {
			w.WriteUBitLong(uint32(fractVal), protocol.CoordFractionalBits)
		}
	}
}

// WriteBitCoordMP is the multiplayer coordinate encoding: an in-bounds flag
// selects the short integer field, integral mode drops the fraction, and
// low-precision mode shrinks it.
func (w *Writer) WriteBitCoordMP(f float32, integral, lowPrecision bool) {
	res := float32(protocol.CoordResolution)
	denom := protocol.CoordDenominator
	if lowPrecision {
		res = protocol.CoordResolutionLowPrecision
		denom = protocol.CoordDenominatorLowPrecision
	}
	signBit := 0
	if f <= -res {
		signBit = 1
	}
	intVal := int(math32.Abs(f))
	fractVal := int(math32.Abs(f*float32(denom))) & (denom - 1)
	inBounds := intVal < 1<<protocol.CoordIntegerBitsMP

	intBits := protocol.CoordIntegerBits
	if inBounds {
		intBits = protocol.CoordIntegerBitsMP
	}
	fracBits := protocol.CoordFractionalBits
	if lowPrecision {
		fracBits = protocol.CoordFractionalBitsMPLowPrecision
	}

	w.WriteOneBit(b2i(inBounds))
	w.WriteOneBit(intVal)
	if integral {
		if intVal != 0 {
			w.WriteOneBit(signBit)
			w.WriteUBitLong(uint32(intVal-1), intBits)
		}
		return
	}
	w.WriteOneBit(signBit)
	if intVal != 0 {
		w.WriteUBitLong(uint32(intVal-1), intBits)
	}
	w.WriteUBitLong(uint32(fractVal), fracBits)
}

// WriteBitNormal writes a unit-vector component as sign plus fixed-width
// fraction; |f| is clamped to [0,1].
func (w *Writer) WriteBitNormal(f float32) {
	signBit := 0
	if f <= -protocol.NormalResolution {
		signBit = 1
	}
	fractVal := uint32(math32.Abs(f * protocol.NormalDenominator))
	if fractVal > protocol.NormalDenominator {
		fractVal = protocol.NormalDenominator
	}
	w.WriteOneBit(signBit)
	w.WriteUBitLong(fractVal, protocol.NormalFractionalBits)
}

// WriteBitVec3Coord writes three coordinates, each behind a presence flag so
// near-zero axes cost one bit.
func (w *Writer) WriteBitVec3Coord(fa vec.Vec3) {
	xflag := fa.X >= protocol.CoordResolution || fa.X <= -protocol.CoordResolution
	yflag := fa.Y >= protocol.CoordResolution || fa.Y <= -protocol.CoordResolution
	zflag := fa.Z >= protocol.CoordResolution || fa.Z <= -protocol.CoordResolution
	w.WriteOneBit(b2i(xflag))
	w.WriteOneBit(b2i(yflag))
	w.WriteOneBit(b2i(zflag))
	if xflag {
		w.WriteBitCoord(fa.X)
	}
	if yflag {
		w.WriteBitCoord(fa.Y)
	}
	if zflag {
		w.WriteBitCoord(fa.Z)
	}
}

// WriteBitVec3Normal writes X and Y behind presence flags plus the sign of
// Z; the reader rebuilds Z from the unit-length constraint.
func (w *Writer) WriteBitVec3Normal(fa vec.Vec3) {
	xflag := fa.X >= protocol.NormalResolution || fa.X <= -protocol.NormalResolution
	yflag := fa.Y >= protocol.NormalResolution || fa.Y <= -protocol.NormalResolution
	w.WriteOneBit(b2i(xflag))
	w.WriteOneBit(b2i(yflag))
	if xflag {
		w.WriteBitNormal(fa.X)
	}
	if yflag {
		w.WriteBitNormal(fa.Y)
	}
	w.WriteOneBit(b2i(fa.Z < 0))
}

// WriteBitAngles writes euler angles as a coordinate triple.
func (w *Writer) WriteBitAngles(fa vec.Vec3) {
	w.WriteBitVec3Coord(fa)
}

// WriteBits bulk-copies nBits from p. Nothing is written if the block does
// not fit; partial writes never reach past the declared capacity.
func (w *Writer) WriteBits(p []byte, nBits int) bool {
	if w.overflow {
		return false
	}
	if w.curBit+nBits > w.dataBits {
		w.setOverflow(ErrBufferOverrun)
		return false
	}
	bitsLeft := nBits
	i := 0
	if w.curBit&7 == 0 {
		// byte aligned, memcpy the whole byte run
		n := bitsLeft >> 3
		copy(w.data[w.curBit>>3:], p[:n])
		w.curBit += n << 3
		bitsLeft &= 7
		i = n
	} else {
		for bitsLeft >= 8 {
			w.WriteUBitLong(uint32(p[i]), 8)
			i++
			bitsLeft -= 8
		}
	}
	if bitsLeft > 0 {
		w.WriteUBitLong(uint32(p[i]), bitsLeft)
	}
	return !w.overflow
}

// WriteBitsFromBuffer streams nBits from a reader, 32 at a time.
func (w *Writer) WriteBitsFromBuffer(r *Reader, nBits int) bool {
	for nBits > 32 {
		w.WriteUBitLong(r.ReadUBitLong(32), 32)
		nBits -= 32
	}
	w.WriteUBitLong(r.ReadUBitLong(nBits), nBits)
	return !w.overflow && !r.IsOverflowed()
}

func (w *Writer) WriteBytes(p []byte) bool {
	return w.WriteBits(p, len(p)*8)
}

func (w *Writer) WriteChar(val int) {
	w.WriteSBitLong(int32(val), 8)
}

func (w *Writer) WriteByte(val int) {
	w.WriteUBitLong(uint32(val), 8)
}

func (w *Writer) WriteShort(val int) {
	w.WriteSBitLong(int32(val), 16)
}

func (w *Writer) WriteWord(val int) {
	w.WriteUBitLong(uint32(val), 16)
}

func (w *Writer) WriteLong(val int32) {
	w.WriteSBitLong(val, 32)
}

func (w *Writer) WriteLongLong(val int64) {
	w.WriteUBitLong(uint32(uint64(val)), 32)
	w.WriteUBitLong(uint32(uint64(val)>>32), 32)
}

func (w *Writer) WriteFloat(val float32) {
	w.WriteUBitLong(gmath.Float32bits(val), 32)
}

// WriteString writes the bytes of s followed by a zero terminator. An empty
// string writes only the terminator.
func (w *Writer) WriteString(s string) bool {
	for i := 0; i < len(s); i++ {
		w.WriteUBitLong(uint32(s[i]), 8)
	}
	w.WriteUBitLong(0, 8)
	return !w.overflow
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

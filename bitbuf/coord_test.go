// SPDX-License-Identifier: GPL-2.0-or-later

package bitbuf

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/zeebo/pcg"

	"github.com/DeWolfRobin/TF2CodeRefactor/math/vec"
	"github.com/DeWolfRobin/TF2CodeRefactor/protocol"
)

func coordRoundTrip(t *testing.T, f float32) float32 {
	t.Helper()
	buf := make([]byte, 8)
	w := NewWriter(buf)
	w.WriteBitCoord(f)
	if w.IsOverflowed() {
		t.Fatalf("overflow writing coord %v", f)
	}
	r := NewReaderBits(buf, w.BitsWritten())
	got := r.ReadBitCoord()
	if r.IsOverflowed() {
		t.Fatalf("overflow reading coord %v", f)
	}
	if got2 := r.BitsLeft(); got2 != 0 {
		t.Fatalf("coord %v: %v unread bits", f, got2)
	}
	return got
}

func TestBitCoordRoundTrip(t *testing.T) {
	// Zero costs two bits and decodes to exactly zero, -0 included.
	for _, f := range []float32{0, float32(math32.Copysign(0, -1))} {
		if got := coordRoundTrip(t, f); got != 0 {
			t.Errorf("coord %v = %v, want 0", f, got)
		}
	}

	// One quantization step, and values around the integer range limit.
	cases := []float32{
		protocol.CoordResolution,
		-protocol.CoordResolution,
		12.5, -12.5,
		0.96875,
		300.03125,
		16384, -16384, 16384.5,
	}
	for _, f := range cases {
		got := coordRoundTrip(t, f)
		if diff := math32.Abs(got - f); diff > protocol.CoordResolution {
			t.Errorf("coord %v = %v, off by %v", f, got, diff)
		}
		if f != 0 && (got < 0) != (f < 0) {
			t.Errorf("coord %v = %v, sign flipped", f, got)
		}
	}

	// Exact multiples of the resolution survive bit for bit.
	for i := 0; i < 200; i++ {
		steps := int32(pcg.Uint32n(16384*protocol.CoordDenominator)) - 8192*protocol.CoordDenominator
		f := float32(steps) * protocol.CoordResolution
		if got := coordRoundTrip(t, f); got != f {
			t.Errorf("coord %v = %v, want exact", f, got)
		}
	}
}

func mpRoundTrip(t *testing.T, f float32, integral, lowPrecision bool) float32 {
	t.Helper()
	buf := make([]byte, 8)
	w := NewWriter(buf)
	w.WriteBitCoordMP(f, integral, lowPrecision)
	r := NewReaderBits(buf, w.BitsWritten())
	got := r.ReadBitCoordMP(integral, lowPrecision)
	if r.IsOverflowed() {
		t.Fatalf("overflow on mp coord %v", f)
	}
	if left := r.BitsLeft(); left != 0 {
		t.Fatalf("mp coord %v (integral=%v lp=%v): %v unread bits", f, integral, lowPrecision, left)
	}
	return got
}

func TestBitCoordMPIntegral(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 2, 500, -500, 2047, 2048, -2048, 5000, -5000, 16000} {
		if got := mpRoundTrip(t, f, true, false); got != f {
			t.Errorf("mp integral %v = %v", f, got)
		}
	}
}

func TestBitCoordMPFractional(t *testing.T) {
	for _, f := range []float32{0, 12.5, -12.5, 0.25, -0.25, 2047.5, 2048.5, -3000.25} {
		got := mpRoundTrip(t, f, false, false)
		if diff := math32.Abs(got - f); diff > protocol.CoordResolution {
			t.Errorf("mp coord %v = %v, off by %v", f, got, diff)
		}
	}
}

func TestBitCoordMPLowPrecision(t *testing.T) {
	for _, f := range []float32{0, 12.125, -12.125, 0.875, -1000.5} {
		got := mpRoundTrip(t, f, false, true)
		if diff := math32.Abs(got - f); diff > protocol.CoordResolutionLowPrecision {
			t.Errorf("mp low precision %v = %v, off by %v", f, got, diff)
		}
	}
}

// The short integer field must kick in exactly at the in-bounds limit.
func TestBitCoordMPWidths(t *testing.T) {
	inBounds := float32(2047)
	outOfBounds := float32(2048)

	buf := make([]byte, 8)
	w := NewWriter(buf)
	w.WriteBitCoordMP(inBounds, true, false)
	if got, want := w.BitsWritten(), 3+protocol.CoordIntegerBitsMP; got != want {
		t.Errorf("in-bounds integral used %v bits, want %v", got, want)
	}

	w = NewWriter(buf)
	w.WriteBitCoordMP(outOfBounds, true, false)
	if got, want := w.BitsWritten(), 3+protocol.CoordIntegerBits; got != want {
		t.Errorf("out-of-bounds integral used %v bits, want %v", got, want)
	}

	w = NewWriter(buf)
	w.WriteBitCoordMP(0, true, false)
	if got := w.BitsWritten(); got != 2 {
		t.Errorf("integral zero used %v bits, want 2", got)
	}
}

func TestBitAngleRoundTrip(t *testing.T) {
	for _, numBits := range []int{8, 16} {
		step := 360.0 / float32(uint32(1)<<uint(numBits))
		for _, f := range []float32{0, 45, 90, 180, 270, 359.9} {
			buf := make([]byte, 8)
			w := NewWriter(buf)
			w.WriteBitAngle(f, numBits)
			r := NewReader(buf)
			got := r.ReadBitAngle(numBits)
			if diff := math32.Abs(got - f); diff > step {
				t.Errorf("angle %v in %v bits = %v, off by %v", f, numBits, got, diff)
			}
		}
	}
}

func TestBitNormalRoundTrip(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, -0.5, protocol.NormalResolution, -protocol.NormalResolution, 0.999}
	for _, f := range cases {
		buf := make([]byte, 8)
		w := NewWriter(buf)
		w.WriteBitNormal(f)
		if got, want := w.BitsWritten(), 1+protocol.NormalFractionalBits; got != want {
			t.Fatalf("normal used %v bits, want %v", got, want)
		}
		r := NewReader(buf)
		got := r.ReadBitNormal()
		if diff := math32.Abs(got - f); diff > protocol.NormalResolution {
			t.Errorf("normal %v = %v, off by %v", f, got, diff)
		}
		if f != 0 && (got < 0) != (f < 0) && got != 0 {
			t.Errorf("normal %v = %v, sign flipped", f, got)
		}
	}

	// Out of range magnitudes clamp to one.
	buf := make([]byte, 8)
	w := NewWriter(buf)
	w.WriteBitNormal(1.5)
	r := NewReader(buf)
	if got := r.ReadBitNormal(); got != 1 {
		t.Errorf("clamped normal = %v, want 1", got)
	}
}

func TestBitVec3CoordRoundTrip(t *testing.T) {
	cases := []vec.Vec3{
		{},
		{X: 1, Y: 2, Z: 3},
		{X: -12.5, Y: 0, Z: 100.25},
		{X: 0.001, Y: -0.001, Z: 0}, // below resolution, all axes dropped
	}
	for _, v := range cases {
		buf := make([]byte, 16)
		w := NewWriter(buf)
		w.WriteBitVec3Coord(v)
		r := NewReaderBits(buf, w.BitsWritten())
		got := r.ReadBitVec3Coord()
		if left := r.BitsLeft(); left != 0 {
			t.Fatalf("vec %v: %v unread bits", v, left)
		}
		for i, pair := range [][2]float32{{got.X, v.X}, {got.Y, v.Y}, {got.Z, v.Z}} {
			want := pair[1]
			if math32.Abs(want) < protocol.CoordResolution {
				want = 0
			}
			if diff := math32.Abs(pair[0] - want); diff > protocol.CoordResolution {
				t.Errorf("vec %v axis %v = %v, off by %v", v, i, pair[0], diff)
			}
		}
	}
}

func TestBitVec3NormalZDerivation(t *testing.T) {
	cases := []vec.Vec3{
		{X: 0.6, Y: 0, Z: 0.8},
		{X: 0.6, Y: 0, Z: -0.8},
		{X: 0, Y: 0.28, Z: 0.96},
		{X: 0.267261, Y: 0.534522, Z: 0.801784},
		{X: -0.267261, Y: 0.534522, Z: -0.801784},
	}
	for _, v := range cases {
		buf := make([]byte, 8)
		w := NewWriter(buf)
		w.WriteBitVec3Normal(v)
		r := NewReaderBits(buf, w.BitsWritten())
		got := r.ReadBitVec3Normal()
		if left := r.BitsLeft(); left != 0 {
			t.Fatalf("normal %v: %v unread bits", v, left)
		}
		if diff := math32.Abs(got.X - v.X); diff > protocol.NormalResolution {
			t.Errorf("normal %v x = %v", v, got.X)
		}
		if diff := math32.Abs(got.Y - v.Y); diff > protocol.NormalResolution {
			t.Errorf("normal %v y = %v", v, got.Y)
		}
		// Z carries only its sign; magnitude comes from the unit
		// constraint on the quantized X and Y.
		wantZ := float32(0)
		if sumSq := got.X*got.X + got.Y*got.Y; sumSq < 1 {
			wantZ = math32.Sqrt(1 - sumSq)
		}
		if v.Z < 0 {
			wantZ = -wantZ
		}
		if got.Z != wantZ {
			t.Errorf("normal %v z = %v, want %v", v, got.Z, wantZ)
		}
		if diff := math32.Abs(got.Z - v.Z); diff > 0.01 {
			t.Errorf("normal %v z = %v, off by %v", v, got.Z, diff)
		}
	}

	// Components whose squares already reach one clamp Z to zero.
	over := vec.Vec3{X: 1, Y: 1, Z: 0}
	buf := make([]byte, 8)
	w := NewWriter(buf)
	w.WriteBitVec3Normal(over)
	r := NewReader(buf)
	if got := r.ReadBitVec3Normal(); got.Z != 0 {
		t.Errorf("overlong normal z = %v, want 0", got.Z)
	}
}

func TestBitAnglesRoundTrip(t *testing.T) {
	v := vec.Vec3{X: 30, Y: -60.5, Z: 180}
	buf := make([]byte, 16)
	w := NewWriter(buf)
	w.WriteBitAngles(v)
	r := NewReaderBits(buf, w.BitsWritten())
	got := r.ReadBitAngles()
	for i, pair := range [][2]float32{{got.X, v.X}, {got.Y, v.Y}, {got.Z, v.Z}} {
		if diff := math32.Abs(pair[0] - pair[1]); diff > protocol.CoordResolution {
			t.Errorf("angles axis %v = %v, off by %v", i, pair[0], diff)
		}
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later

// Package protocol holds the wire constants shared by the bit-stream writer
// and reader. Both ends must agree on these bit-for-bit.
package protocol

const (
	// Quantized world coordinates:
	// [hasInt:1][hasFrac:1][sign:1 if any][int:CoordIntegerBits if hasInt]
	// [frac:CoordFractionalBits if hasFrac]
	CoordIntegerBits    = 14
	CoordFractionalBits = 5
	CoordDenominator    = 1 << CoordFractionalBits
	CoordResolution     = 1.0 / CoordDenominator

	// The multiplayer variant trades range for bits. An extra in-bounds
	// flag selects the smaller integer field and a low-precision mode
	// shrinks the fraction.
	CoordIntegerBitsMP                = 11
	CoordFractionalBitsMPLowPrecision = 3
	CoordDenominatorLowPrecision      = 1 << CoordFractionalBitsMPLowPrecision
	CoordResolutionLowPrecision       = 1.0 / CoordDenominatorLowPrecision

	// Quantized unit-vector components: [sign:1][frac:NormalFractionalBits]
	NormalFractionalBits = 11
	NormalDenominator    = (1 << NormalFractionalBits) - 1
	NormalResolution     = 1.0 / NormalDenominator
)

const (
	// Base-128 varints, continuation bit 0x80, least significant group
	// first. The byte caps double as the reader termination guard on
	// corrupt streams.
	MaxVarint32Bytes = 5
	MaxVarintBytes   = 10
)

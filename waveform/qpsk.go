package waveform

import "math"

// Gray-coded QPSK mapping shared with the burst generator:
// b0 controls the Q sign, b1 controls the I sign.
//   00 -> +1 + j
//   01 -> -1 + j
//   11 -> -1 - j
//   10 -> +1 - j
// All points scaled to unit energy.
var qpskPoints = [4]complex64{
	complex(float32(1/math.Sqrt2), float32(1/math.Sqrt2)),   // 00
	complex(float32(-1/math.Sqrt2), float32(1/math.Sqrt2)),  // 01
	complex(float32(-1/math.Sqrt2), float32(-1/math.Sqrt2)), // 11
	complex(float32(1/math.Sqrt2), float32(-1/math.Sqrt2)),  // 10
}

// MapBits maps pairs of bits (b0, b1) to QPSK symbols. An odd trailing bit is
// dropped.
func MapBits(bits []byte) []complex64 {
	syms := make([]complex64, len(bits)/2)
	for i := range syms {
		b0 := bits[2*i] & 1
		b1 := bits[2*i+1] & 1
		var re, im float32 = 1 / math.Sqrt2, 1 / math.Sqrt2
		if b1 == 1 {
			re = -re
		}
		if b0 == 1 {
			im = -im
		}
		syms[i] = complex(re, im)
	}
	return syms
}

// DemapSymbols performs a hard quadrant decision, inverse of MapBits.
func DemapSymbols(syms []complex64) []byte {
	bits := make([]byte, 2*len(syms))
	for i, s := range syms {
		if imag(s) < 0 {
			bits[2*i] = 1
		}
		if real(s) < 0 {
			bits[2*i+1] = 1
		}
	}
	return bits
}

// NearestPoint returns the ideal constellation point closest to s. For the
// quadrant constellation this is a sign decision, no distance search needed.
func NearestPoint(s complex64) complex64 {
	var re, im float32 = 1 / math.Sqrt2, 1 / math.Sqrt2
	if real(s) < 0 {
		re = -re
	}
	if imag(s) < 0 {
		im = -im
	}
	return complex(re, im)
}

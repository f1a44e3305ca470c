package rx

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// Coarse estimator modes.
const (
	CoarseModeRepeat = "repeat"
	CoarseModeQPSK4  = "qpsk4"
	CoarseModeNone   = "none"
)

// CoarseRepeatCFO estimates carrier offset from the phase progression between
// the identical preamble sub-sequences: the signal D samples apart differs
// only by exp(j*2*pi*cfo*D/fs). The estimate is unambiguous within
// +-fs/(2*D); aliased reports true when the value sits within 10% of that
// boundary, where a wrapped estimate is indistinguishable from a true one.
func CoarseRepeatCFO(seg []complex64, lag int, fs float64) (hz float64, aliased, ok bool) {
	if lag <= 0 || len(seg) < 2*lag {
		return 0, false, false
	}

	var acc complex128
	for n := 0; n < lag; n++ {
		acc += complex128(seg[n+lag]) * cmplx.Conj(complex128(seg[n]))
	}
	if acc == 0 {
		return 0, false, false
	}

	hz = cmplx.Phase(acc) * fs / (2 * math.Pi * float64(lag))
	limit := fs / (2 * float64(lag))
	return hz, math.Abs(hz) > 0.9*limit, true
}

// CoarseQPSK4CFO estimates carrier offset from the 4th-power phase increment.
// Raising QPSK to the 4th power strips the modulation, leaving a tone at
// 4*cfo; the mean sample-to-sample phase step of that tone gives the offset.
// Range is +-fs/8, wide enough for the tens-of-kHz LO offsets cheap dongles
// show, at the cost of accuracy.
func CoarseQPSK4CFO(samples []complex64, fs float64) float64 {
	if len(samples) < 1000 {
		return 0
	}

	var acc complex128
	prev := pow4(complex128(samples[0]))
	for _, s := range samples[1:] {
		cur := pow4(complex128(s))
		acc += cur * cmplx.Conj(prev)
		prev = cur
	}
	if acc == 0 || cmplx.IsNaN(acc) || cmplx.IsInf(acc) {
		return 0
	}
	return fs * cmplx.Phase(acc/complex(float64(len(samples)-1), 0)) / (2 * math.Pi) / 4
}

func pow4(z complex128) complex128 {
	z2 := z * z
	return z2 * z2
}

// Derotate applies the de-rotation exp(-j*2*pi*hz*n/fs) where n counts from
// start, returning a new slice. Absolute indices keep the phase consistent
// across stages that look at different windows of the same stream.
func Derotate(samples []complex64, hz, fs float64, start int) []complex64 {
	if hz == 0 {
		out := make([]complex64, len(samples))
		copy(out, samples)
		return out
	}

	out := make([]complex64, len(samples))
	w := -2 * math.Pi * hz / fs
	for i, s := range samples {
		ph := w * float64(start+i)
		rot := complex(math.Cos(ph), math.Sin(ph))
		v := complex128(s) * rot
		out[i] = complex64(v)
	}
	return out
}

// FineCFO measures the residual offset left after coarse correction by a
// linear fit to the unwrapped phase of seg*conj(ref), restricted to samples
// where the reference carries energy (|ref| > maskFrac * max|ref|). The slope
// in radians/sample converts to Hz through the sample rate. ok is false when
// too few samples survive the mask for a meaningful fit.
func FineCFO(seg, ref []complex64, fs, maskFrac float64) (hz float64, ok bool) {
	n := len(seg)
	if len(ref) < n {
		n = len(ref)
	}

	var maxMag float64
	for _, s := range ref[:n] {
		if m := cmplx.Abs(complex128(s)); m > maxMag {
			maxMag = m
		}
	}
	gate := maskFrac * maxMag

	var idx, phase []float64
	for i := 0; i < n; i++ {
		if cmplx.Abs(complex128(ref[i])) <= gate {
			continue
		}
		z := complex128(seg[i]) * cmplx.Conj(complex128(ref[i]))
		idx = append(idx, float64(i))
		phase = append(phase, cmplx.Phase(z))
	}
	if len(idx) < 10 {
		return 0, false
	}

	unwrap(phase)
	_, slope := stat.LinearRegression(idx, phase, nil, false)
	return slope * fs / (2 * math.Pi), true
}

// unwrap removes 2*pi jumps in place.
func unwrap(phase []float64) {
	var offset float64
	for i := 1; i < len(phase); i++ {
		d := phase[i] + offset - phase[i-1]
		for d > math.Pi {
			offset -= 2 * math.Pi
			d -= 2 * math.Pi
		}
		for d < -math.Pi {
			offset += 2 * math.Pi
			d += 2 * math.Pi
		}
		phase[i] += offset
	}
}

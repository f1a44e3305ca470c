package rx

import (
	"math"

	"github.com/kf7aae/burstprobe/waveform"
)

// Blind QPSK synchronization leaves an 8-fold ambiguity: the constellation
// may be rotated by any multiple of 90 degrees and may be conjugated (I/Q
// swapped). The eight candidate corrections are enumerated in a fixed
// canonical order — rotations 0/90/180/270 without conjugation, then the same
// four with conjugation — and scored; ties resolve to the lowest index. The
// ordering is explicit so results are deterministic.

type transform int

const numTransforms = 8

// derotation factors for 0, 90, 180, 270 degrees
var rotFactors = [4]complex64{1, complex(0, -1), -1, complex(0, 1)}

func (t transform) apply(syms []complex64) []complex64 {
	rot := rotFactors[t%4]
	conj := t >= 4
	out := make([]complex64, len(syms))
	for i, s := range syms {
		if conj {
			s = complex(real(s), -imag(s))
		}
		out[i] = s * rot
	}
	return out
}

func (t transform) ambiguity() Ambiguity {
	return Ambiguity{RotationDeg: int(t%4) * 90, Conjugated: t >= 4}
}

// ResolveWithReference picks the transform minimizing bit errors against the
// known bit sequence. This is the authoritative resolver; use it whenever
// ground truth exists.
func ResolveWithReference(syms []complex64, refBits []byte) (Ambiguity, []complex64) {
	bestT := transform(0)
	bestErrs := math.MaxInt
	var bestSyms []complex64

	for t := transform(0); t < numTransforms; t++ {
		candidate := t.apply(syms)
		bits := waveform.DemapSymbols(candidate)
		errs, _ := CountBitErrors(bits, refBits)
		if errs < bestErrs {
			bestErrs = errs
			bestT = t
			bestSyms = candidate
		}
	}
	return bestT.ambiguity(), bestSyms
}

// ResolveBlind picks the transform minimizing mean-square distance to the
// nearest ideal constellation point. For a symmetric QPSK constellation every
// rotation and the conjugation score identically on clean data, so this is a
// best-effort heuristic with no correctness guarantee; the deterministic
// tie-break selects the identity transform unless noise breaks the symmetry.
func ResolveBlind(syms []complex64) (Ambiguity, []complex64) {
	bestT := transform(0)
	bestScore := math.Inf(1)
	var bestSyms []complex64

	for t := transform(0); t < numTransforms; t++ {
		candidate := t.apply(syms)
		var score float64
		for _, s := range candidate {
			d := complex128(s - waveform.NearestPoint(s))
			score += real(d)*real(d) + imag(d)*imag(d)
		}
		if score < bestScore {
			bestScore = score
			bestT = t
			bestSyms = candidate
		}
	}
	return bestT.ambiguity(), bestSyms
}

// CountBitErrors compares bit sequences up to the shorter length.
func CountBitErrors(got, want []byte) (errs, compared int) {
	n := len(got)
	if len(want) < n {
		n = len(want)
	}
	for i := 0; i < n; i++ {
		if got[i] != want[i] {
			errs++
		}
	}
	return errs, n
}

// EVMPercent is the normalized RMS error against the nearest ideal
// constellation point, as a percentage. The ideal points have unit energy so
// the denominator is exactly 1, but it is computed anyway to keep the formula
// honest about the definition.
func EVMPercent(syms []complex64) float64 {
	if len(syms) == 0 {
		return 0
	}
	var errPow, idealPow float64
	for _, s := range syms {
		p := waveform.NearestPoint(s)
		d := complex128(s - p)
		errPow += real(d)*real(d) + imag(d)*imag(d)
		idealPow += float64(real(p))*float64(real(p)) + float64(imag(p))*float64(imag(p))
	}
	if idealPow == 0 {
		return 0
	}
	return 100 * math.Sqrt(errPow/idealPow)
}

// RefEVMPercent is the normalized RMS error against the known transmitted
// symbols, compared index by index.
func RefEVMPercent(syms, known []complex64) float64 {
	n := len(syms)
	if len(known) < n {
		n = len(known)
	}
	if n == 0 {
		return 0
	}

	var errPow, refPow float64
	for i := 0; i < n; i++ {
		d := complex128(syms[i] - known[i])
		errPow += real(d)*real(d) + imag(d)*imag(d)
		k := complex128(known[i])
		refPow += real(k)*real(k) + imag(k)*imag(k)
	}
	if refPow == 0 {
		return 0
	}
	return 100 * math.Sqrt(errPow/refPow)
}

package rx

import (
	"math"
	"math/cmplx"
)

// RefineTiming searches integer offsets within +-sps/2 of the detector's
// estimate for the one maximizing the normalized preamble correlation after
// coarse CFO correction. Offsets are tried nearest-first so a tie resolves to
// the offset closest to the original estimate. ok is false when even the best
// offset falls below the detection threshold, which marks the original
// detection as spurious.
func RefineTiming(samples, ref []complex64, k0, sps int, threshold float64) (best Peak, ok bool) {
	half := sps / 2
	refE := energy(ref)
	if refE == 0 {
		return Peak{}, false
	}

	norms := make(map[int]float64, 2*half+1)
	score := func(k int) float64 {
		if v, seen := norms[k]; seen {
			return v
		}
		v := normCorrAt(samples, ref, k, refE)
		norms[k] = v
		return v
	}

	bestK := -1
	bestNorm := math.Inf(-1)
	for d := 0; d <= half; d++ {
		for _, k := range []int{k0 + d, k0 - d} {
			if k < 0 || k+len(ref)/2 > len(samples) {
				continue
			}
			if v := score(k); v > bestNorm {
				bestNorm = v
				bestK = k
			}
			if d == 0 {
				break
			}
		}
	}
	if bestK < 0 || bestNorm < threshold {
		return Peak{}, false
	}

	// Sub-sample offset from the neighbors of the winner.
	mag := []float64{score(bestK - 1), score(bestK), score(bestK + 1)}
	return Peak{Index: bestK, Norm: bestNorm, Frac: parabolicOffset(mag, 1)}, true
}

// normCorrAt computes the normalized correlation magnitude for a single
// offset by direct dot product. The reference may overlap the end of the
// stream by up to half its length; the missing tail contributes nothing.
func normCorrAt(samples, ref []complex64, k int, refEnergy float64) float64 {
	if k < 0 || k+len(ref)/2 > len(samples) {
		return 0
	}

	var acc complex128
	var winEnergy float64
	for i, r := range ref {
		if k+i >= len(samples) {
			break
		}
		s := complex128(samples[k+i])
		acc += s * cmplx.Conj(complex128(r))
		winEnergy += real(s)*real(s) + imag(s)*imag(s)
	}
	if winEnergy <= 0 {
		return 0
	}
	return cmplx.Abs(acc) / math.Sqrt(winEnergy*refEnergy)
}

// sampleSymbols picks one sample per symbol from the matched-filter output:
// index tau + base + n*sps. base is twice the RRC group delay (transmit plus
// matched filter).
func sampleSymbols(y []complex64, tau, base, sps, count int) []complex64 {
	syms := make([]complex64, 0, count)
	for n := 0; n < count; n++ {
		idx := tau + base + n*sps
		if idx >= len(y) {
			break
		}
		syms = append(syms, y[idx])
	}
	return syms
}

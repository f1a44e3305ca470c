package rx

import (
	"math"
	"math/cmplx"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Detector locates bursts by sliding cross-correlation against the known
// preamble waveform. Correlation magnitudes are normalized by the energy of
// the reference and of each signal window, so the threshold is a geometry
// (0..1) and not an amplitude.
type Detector struct {
	ref       []complex64
	refEnergy float64
	threshold float64
}

// Peak is one burst-start candidate.
type Peak struct {
	Index int
	// Norm is the normalized correlation magnitude at Index.
	Norm float64
	// Frac is the sub-sample peak position from parabolic interpolation of
	// the correlation magnitude, in samples, in (-0.5, 0.5).
	Frac float64
}

func NewDetector(ref []complex64, threshold float64) *Detector {
	return &Detector{
		ref:       ref,
		refEnergy: energy(ref),
		threshold: threshold,
	}
}

func (d *Detector) Threshold() float64 { return d.threshold }

// Detect scans the stream and returns the strongest candidate whose
// normalized correlation clears the threshold. ok is false when nothing does.
func (d *Detector) Detect(samples []complex64) (Peak, bool) {
	norm, mag := d.correlate(samples)
	if len(norm) == 0 {
		return Peak{}, false
	}

	best := 0
	for k := range norm {
		if norm[k] > norm[best] {
			best = k
		}
	}
	if norm[best] < d.threshold {
		log.Debugf("[detector] Best normalized correlation %.3f below threshold %.3f", norm[best], d.threshold)
		return Peak{}, false
	}
	return Peak{Index: best, Norm: norm[best], Frac: parabolicOffset(mag, best)}, true
}

// Peaks returns every candidate above threshold, reduced to the single
// strongest peak per cluster. Candidates closer than minSep samples are
// considered one cluster.
func (d *Detector) Peaks(samples []complex64, minSep int) []Peak {
	norm, mag := d.correlate(samples)
	if len(norm) == 0 {
		return nil
	}

	var peaks []Peak
	k := 0
	for k < len(norm) {
		if norm[k] < d.threshold {
			k++
			continue
		}
		// Cluster: track the maximum until the signal stays below threshold
		// for minSep samples.
		best := k
		end := k
		for j := k; j < len(norm) && j-end < minSep; j++ {
			if norm[j] >= d.threshold {
				end = j
				if norm[j] > norm[best] {
					best = j
				}
			}
		}
		peaks = append(peaks, Peak{Index: best, Norm: norm[best], Frac: parabolicOffset(mag, best)})
		k = end + minSep
	}
	return peaks
}

// correlate computes |corr(k)| for every candidate offset via FFT, plus the
// window-energy-normalized magnitude. Same trick as scipy's fftconvolve with
// a reversed conjugate reference. Offsets where the reference hangs at most
// halfway past the end of the stream are still scored, so a burst truncated
// by the end of the capture remains detectable.
func (d *Detector) correlate(samples []complex64) (norm, mag []float64) {
	L := len(d.ref)
	if len(samples) < L/2 || d.refEnergy == 0 {
		return nil, nil
	}
	valid := len(samples) - L/2 + 1

	n := nextPow2(len(samples) + L)
	fft := fourier.NewCmplxFFT(n)

	x := make([]complex128, n)
	for i, s := range samples {
		x[i] = complex128(s)
	}
	r := make([]complex128, n)
	for i, s := range d.ref {
		r[i] = complex128(s)
	}

	xf := fft.Coefficients(nil, x)
	rf := fft.Coefficients(nil, r)
	for i := range xf {
		xf[i] *= cmplx.Conj(rf[i])
	}
	corr := fft.Sequence(nil, xf)

	// Sequence(Coefficients(x)) multiplies by n.
	scale := 1 / float64(n)

	// Prefix sums of |x|^2 for per-window energy.
	prefix := make([]float64, len(samples)+1)
	for i, s := range samples {
		v := float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
		prefix[i+1] = prefix[i] + v
	}

	norm = make([]float64, valid)
	mag = make([]float64, valid)
	for k := 0; k < valid; k++ {
		m := cmplx.Abs(corr[k]) * scale
		mag[k] = m
		hi := k + L
		if hi > len(samples) {
			hi = len(samples)
		}
		winEnergy := prefix[hi] - prefix[k]
		if winEnergy <= 0 {
			continue
		}
		norm[k] = m / math.Sqrt(winEnergy*d.refEnergy)
	}
	return norm, mag
}

// parabolicOffset fits a parabola through the magnitude at k-1, k, k+1 and
// returns the vertex offset, clamped to (-0.5, 0.5).
func parabolicOffset(mag []float64, k int) float64 {
	if k <= 0 || k >= len(mag)-1 {
		return 0
	}
	a, b, c := mag[k-1], mag[k], mag[k+1]
	den := a - 2*b + c
	if den == 0 {
		return 0
	}
	off := 0.5 * (a - c) / den
	if off <= -0.5 || off >= 0.5 {
		return 0
	}
	return off
}

func energy(x []complex64) float64 {
	var e float64
	for _, s := range x {
		e += float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
	}
	return e
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

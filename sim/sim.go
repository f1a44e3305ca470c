// Package sim provides synthetic signal generation: AWGN symbol channels for
// BER sweeps and full sample-rate burst streams with injected CFO, channel
// tap and noise for exercising the receiver chain.
package sim

import (
	"math"
	"math/rand"

	"github.com/kf7aae/burstprobe/waveform"
)

// TheoreticalQPSKBER is the closed-form Gray-coded QPSK bit error rate over
// AWGN at the given Es/N0: Q(sqrt(Es/N0)).
func TheoreticalQPSKBER(esN0dB float64) float64 {
	esn0 := math.Pow(10, esN0dB/10)
	return 0.5 * math.Erfc(math.Sqrt(esn0/2))
}

// SymbolChannelBER measures demapper BER over a symbol-rate AWGN channel at
// the given Es/N0, using nBits random bits. No pulse shaping or sync
// involved; this isolates the demapper against the closed form.
func SymbolChannelBER(rng *rand.Rand, esN0dB float64, nBits int) float64 {
	bits := make([]byte, nBits)
	for i := range bits {
		bits[i] = byte(rng.Intn(2))
	}
	syms := waveform.MapBits(bits)

	n0 := 1 / math.Pow(10, esN0dB/10)
	sigma := math.Sqrt(n0 / 2)
	for i, s := range syms {
		syms[i] = s + complex(float32(sigma*rng.NormFloat64()), float32(sigma*rng.NormFloat64()))
	}

	got := waveform.DemapSymbols(syms)
	var errs int
	for i := range got {
		if got[i] != bits[i] {
			errs++
		}
	}
	return float64(errs) / float64(len(got))
}

// SweepPoint is one row of a BER-vs-SNR sweep.
type SweepPoint struct {
	SNRdB       float64 `json:"snr_db"`
	BER         float64 `json:"ber"`
	Theoretical float64 `json:"theoretical_ber"`
}

// Sweep runs SymbolChannelBER across a range of Es/N0 points.
func Sweep(rng *rand.Rand, snrsDB []float64, nBits int) []SweepPoint {
	points := make([]SweepPoint, len(snrsDB))
	for i, snr := range snrsDB {
		points[i] = SweepPoint{
			SNRdB:       snr,
			BER:         SymbolChannelBER(rng, snr, nBits),
			Theoretical: TheoreticalQPSKBER(snr),
		}
	}
	return points
}

// BurstOpts control the synthetic stream builder.
type BurstOpts struct {
	// Offset is where the burst starts within the stream.
	Offset int
	// TotalLen is the stream length; zero means the burst plus Offset
	// padding on both sides.
	TotalLen int
	// CFOHz rotates the burst by exp(+j*2*pi*f*n/fs).
	CFOHz float64
	// Tap multiplies the burst by a complex channel gain; zero means unity.
	Tap complex128
	// Noisy adds AWGN over the whole stream at SNRdB relative to the mean
	// burst-region sample power.
	Noisy bool
	SNRdB float64
	// Seed drives the noise generator.
	Seed int64
}

// BuildStream embeds the reference burst into a longer sample stream with
// the requested impairments. The receiver should report back CFOHz and Tap
// within tolerance.
func BuildStream(ref *waveform.Reference, opts BurstOpts) []complex64 {
	fs := ref.Conf.SampleRate
	tap := opts.Tap
	if tap == 0 {
		tap = 1
	}

	total := opts.TotalLen
	if total == 0 {
		total = 2*opts.Offset + len(ref.Shaped)
	}
	stream := make([]complex64, total)

	var sigPow float64
	var sigCount int
	for i, s := range ref.Shaped {
		n := opts.Offset + i
		if n >= total {
			break
		}
		v := complex128(s) * tap
		if opts.CFOHz != 0 {
			ph := 2 * math.Pi * opts.CFOHz * float64(n) / fs
			v *= complex(math.Cos(ph), math.Sin(ph))
		}
		stream[n] = complex64(v)
		sigPow += real(v)*real(v) + imag(v)*imag(v)
		sigCount++
	}

	if opts.Noisy && sigCount > 0 {
		rng := rand.New(rand.NewSource(opts.Seed))
		meanPow := sigPow / float64(sigCount)
		sigma := math.Sqrt(meanPow / math.Pow(10, opts.SNRdB/10) / 2)
		for n := range stream {
			stream[n] += complex(float32(sigma*rng.NormFloat64()), float32(sigma*rng.NormFloat64()))
		}
	}
	return stream
}

// NoiseStream is a pure-AWGN stream with no burst in it, for exercising the
// no-lock path.
func NoiseStream(n int, sigma float64, seed int64) []complex64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(sigma*rng.NormFloat64()), float32(sigma*rng.NormFloat64()))
	}
	return out
}

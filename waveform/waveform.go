package waveform

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kf7aae/burstprobe/config"
	"github.com/racerxdl/segdsp/dsp"
)

// RRCTaps computes root-raised-cosine filter taps with the same contract as
// the burst generator: odd length span*sps+1, centered, normalized to unit
// energy. Tap normalization cancels out of every metric through the channel
// estimate, but the odd length fixes the group delay at (len-1)/2 samples,
// which the symbol indexing relies on.
func RRCTaps(beta float64, sps, spanSyms int) []float32 {
	n := spanSyms * sps
	taps := make([]float32, n+1)

	var energy float64
	ft := make([]float64, n+1)
	for i := range ft {
		t := (float64(i) - float64(n)/2) / float64(sps)
		var v float64
		switch {
		case math.Abs(t) < 1e-12:
			v = 1.0 - beta + 4*beta/math.Pi
		case beta > 0 && math.Abs(math.Abs(t)-1/(4*beta)) < 1e-12:
			// singularity at t = +-T/(4*beta)
			v = (beta / math.Sqrt2) * ((1+2/math.Pi)*math.Sin(math.Pi/(4*beta)) +
				(1-2/math.Pi)*math.Cos(math.Pi/(4*beta)))
		default:
			num := math.Sin(math.Pi*t*(1-beta)) + 4*beta*t*math.Cos(math.Pi*t*(1+beta))
			den := math.Pi * t * (1 - (4*beta*t)*(4*beta*t))
			v = num / den
		}
		ft[i] = v
		energy += v * v
	}

	norm := math.Sqrt(energy)
	for i, v := range ft {
		taps[i] = float32(v / norm)
	}
	return taps
}

// PulseShape upsamples the symbol stream by sps and runs it through an RRC
// FIR. A fresh filter is used per call so the zero history makes the output
// deterministic and identical between the generator and the receiver
// reference path.
func PulseShape(taps []float32, syms []complex64, sps int) []complex64 {
	up := make([]complex64, len(syms)*sps)
	for i, s := range syms {
		up[i*sps] = s
	}
	return dsp.MakeFirFilter(taps).Work(up)
}

// Reference holds everything the receiver regenerates from the shared
// waveform configuration: the known bits, the symbol stream and the shaped,
// int8-quantized sample waveform the transmitter actually radiates.
type Reference struct {
	Conf config.WaveformConf

	Taps         []float32
	PreambleBits []byte
	PayloadBits  []byte
	PreambleSyms []complex64
	PayloadSyms  []complex64

	// Symbols is guard + preamble + payload + guard at symbol rate.
	Symbols []complex64

	// Shaped is the full pulse-shaped, amplitude-scaled, int8-quantized
	// reference waveform at sample rate.
	Shaped []complex64
}

// NewReference regenerates the transmit reference from configuration. The
// preamble is conf.PreambleRepeats copies of a seeded pseudo-random
// sub-sequence; the payload is a second seeded pseudo-random bit stream.
func NewReference(conf config.WaveformConf) (*Reference, error) {
	sps := conf.SamplesPerSymbol()
	if sps < 1 || float64(sps)*conf.SymbolRate != conf.SampleRate {
		return nil, fmt.Errorf("sample_rate %v must be an integer multiple of symbol_rate %v", conf.SampleRate, conf.SymbolRate)
	}
	if conf.PreambleRepeats < 1 || conf.PreambleSyms%conf.PreambleRepeats != 0 {
		return nil, fmt.Errorf("preamble_syms %d must divide evenly into %d repeats", conf.PreambleSyms, conf.PreambleRepeats)
	}

	rng := rand.New(rand.NewSource(conf.Seed))

	subSyms := conf.PreambleSyms / conf.PreambleRepeats
	subBits := randomBits(rng, 2*subSyms)
	preBits := make([]byte, 0, 2*conf.PreambleSyms)
	for i := 0; i < conf.PreambleRepeats; i++ {
		preBits = append(preBits, subBits...)
	}
	payloadBits := randomBits(rng, 2*conf.PayloadSyms)

	r := &Reference{
		Conf:         conf,
		Taps:         RRCTaps(conf.RRCBeta, sps, conf.RRCSpanSyms),
		PreambleBits: preBits,
		PayloadBits:  payloadBits,
		PreambleSyms: MapBits(preBits),
		PayloadSyms:  MapBits(payloadBits),
	}

	guards := make([]complex64, conf.GuardSyms)
	r.Symbols = make([]complex64, 0, 2*conf.GuardSyms+conf.PreambleSyms+conf.PayloadSyms)
	r.Symbols = append(r.Symbols, guards...)
	r.Symbols = append(r.Symbols, r.PreambleSyms...)
	r.Symbols = append(r.Symbols, r.PayloadSyms...)
	r.Symbols = append(r.Symbols, guards...)

	shaped := PulseShape(r.Taps, r.Symbols, sps)
	r.Shaped = quantize(shaped, conf.Amplitude)
	return r, nil
}

// GroupDelay is the one-way RRC filter delay in samples.
func (r *Reference) GroupDelay() int {
	return (len(r.Taps) - 1) / 2
}

// PreambleStart is the sample index of the preamble region inside Shaped.
func (r *Reference) PreambleStart() int {
	return r.Conf.GuardSyms * r.Conf.SamplesPerSymbol()
}

// PreambleWaveform is the slice of the shaped reference covering the preamble
// symbol region. It is the detector's correlation reference: a peak at rx
// offset k aligns rx[k] with Shaped[PreambleStart()].
func (r *Reference) PreambleWaveform() []complex64 {
	start := r.PreambleStart()
	return r.Shaped[start : start+r.Conf.PreambleSyms*r.Conf.SamplesPerSymbol()]
}

// RepeatLag is the sample spacing between the identical preamble
// sub-sequences, the delay used by the coarse CFO estimator.
func (r *Reference) RepeatLag() int {
	return (r.Conf.PreambleSyms / r.Conf.PreambleRepeats) * r.Conf.SamplesPerSymbol()
}

// KnownBits is the concatenated preamble+payload bit sequence.
func (r *Reference) KnownBits() []byte {
	bits := make([]byte, 0, len(r.PreambleBits)+len(r.PayloadBits))
	bits = append(bits, r.PreambleBits...)
	return append(bits, r.PayloadBits...)
}

// KnownSymbols is the concatenated preamble+payload symbol sequence.
func (r *Reference) KnownSymbols() []complex64 {
	syms := make([]complex64, 0, len(r.PreambleSyms)+len(r.PayloadSyms))
	syms = append(syms, r.PreambleSyms...)
	return append(syms, r.PayloadSyms...)
}

func randomBits(rng *rand.Rand, n int) []byte {
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(rng.Intn(2))
	}
	return bits
}

// quantize scales the waveform to amp full-scale and rounds it through the
// int8 DAC grid, exactly what the transmit path does. The receiver correlates
// against what was radiated, quantization error included.
func quantize(x []complex64, amp float64) []complex64 {
	var peak float64
	for _, s := range x {
		m := math.Hypot(float64(real(s)), float64(imag(s)))
		if m > peak {
			peak = m
		}
	}
	scale := amp / (peak + 1e-12)

	out := make([]complex64, len(x))
	for i, s := range x {
		ii := clampInt8(float64(real(s)) * scale * 127)
		qq := clampInt8(float64(imag(s)) * scale * 127)
		out[i] = complex(float32(ii)/127, float32(qq)/127)
	}
	return out
}

func clampInt8(v float64) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}

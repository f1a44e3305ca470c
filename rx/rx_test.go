package rx

import (
	"math"
	"testing"

	"github.com/kf7aae/burstprobe/config"
	"github.com/kf7aae/burstprobe/waveform"
)

// Shared fixtures. The waveform is shrunk from the shipping defaults so the
// FFTs stay small, but keeps the same structure: RRC shaping, a two-repeat
// preamble and a payload long enough for meaningful BER counts.

func testConf() config.WaveformConf {
	c := config.DefaultWaveform()
	c.GuardSyms = 50
	c.PayloadSyms = 600
	c.PreambleSyms = 64
	c.PreambleRepeats = 2
	return c
}

func mustRef(t *testing.T, conf config.WaveformConf) *waveform.Reference {
	t.Helper()
	ref, err := waveform.NewReference(conf)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

// rotate applies exp(+j*2*pi*hz*n/fs), the channel-side rotation that
// Derotate undoes.
func rotate(samples []complex64, hz, fs float64) []complex64 {
	out := make([]complex64, len(samples))
	w := 2 * math.Pi * hz / fs
	for n, s := range samples {
		ph := w * float64(n)
		out[n] = complex64(complex128(s) * complex(math.Cos(ph), math.Sin(ph)))
	}
	return out
}

func absDiff(a, b float64) float64 { return math.Abs(a - b) }

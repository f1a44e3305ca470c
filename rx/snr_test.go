package rx

import (
	"math"
	"math/rand"
	"testing"

	"github.com/kf7aae/burstprobe/waveform"
)

func TestEstimateSNR(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	bits := make([]byte, 8000)
	for i := range bits {
		bits[i] = byte(rng.Intn(2))
	}
	syms := waveform.MapBits(bits)

	for _, want := range []float64{5, 10} {
		noisy := make([]complex64, len(syms))
		sigma := math.Sqrt(math.Pow(10, -want/10) / 2)
		for i, s := range syms {
			noisy[i] = s + complex(float32(sigma*rng.NormFloat64()), float32(sigma*rng.NormFloat64()))
		}

		got := EstimateSNR(noisy)
		if math.Abs(got-want) > 1.0 {
			t.Errorf("SNR estimate = %.2f dB, want %.0f +-1", got, want)
		}
	}
}

func TestEstimateSNREmpty(t *testing.T) {
	if got := EstimateSNR(nil); got != 0 {
		t.Errorf("SNR of empty block = %v, want 0", got)
	}
}

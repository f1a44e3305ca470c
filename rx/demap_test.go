package rx

import (
	"math"
	"math/rand"
	"testing"

	"github.com/kf7aae/burstprobe/waveform"
)

func randomSyms(t *testing.T, n int, seed int64) ([]complex64, []byte) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	bits := make([]byte, 2*n)
	for i := range bits {
		bits[i] = byte(rng.Intn(2))
	}
	return waveform.MapBits(bits), bits
}

func conjugate(syms []complex64) []complex64 {
	out := make([]complex64, len(syms))
	for i, s := range syms {
		out[i] = complex(real(s), -imag(s))
	}
	return out
}

func scale(syms []complex64, f complex64) []complex64 {
	out := make([]complex64, len(syms))
	for i, s := range syms {
		out[i] = s * f
	}
	return out
}

func TestResolveWithReferenceRotations(t *testing.T) {
	syms, bits := randomSyms(t, 200, 11)

	cases := []struct {
		name    string
		corrupt []complex64
		rotDeg  int
		conj    bool
	}{
		{"identity", syms, 0, false},
		{"rot90", scale(syms, complex(0, 1)), 90, false},
		{"rot180", scale(syms, -1), 180, false},
		{"rot270", scale(syms, complex(0, -1)), 270, false},
		{"conjugated", conjugate(syms), 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amb, resolved := ResolveWithReference(tc.corrupt, bits)
			if amb.RotationDeg != tc.rotDeg || amb.Conjugated != tc.conj {
				t.Errorf("ambiguity = %v, want %d°/conj=%v", amb, tc.rotDeg, tc.conj)
			}
			errs, compared := CountBitErrors(waveform.DemapSymbols(resolved), bits)
			if compared != len(bits) {
				t.Fatalf("compared %d bits, want %d", compared, len(bits))
			}
			if errs != 0 {
				t.Errorf("%d bit errors after resolution, want 0", errs)
			}
		})
	}
}

func TestResolveWithReferenceRotatedAndConjugated(t *testing.T) {
	syms, bits := randomSyms(t, 200, 12)
	corrupt := scale(conjugate(syms), complex(0, 1))

	_, resolved := ResolveWithReference(corrupt, bits)
	if errs, _ := CountBitErrors(waveform.DemapSymbols(resolved), bits); errs != 0 {
		t.Errorf("%d bit errors after resolution, want 0", errs)
	}
}

func TestResolveBlindDeterministic(t *testing.T) {
	// On a symmetric constellation every transform scores identically, so the
	// canonical tie-break must land on the identity every time.
	syms, _ := randomSyms(t, 200, 13)
	amb, resolved := ResolveBlind(syms)
	if amb.RotationDeg != 0 || amb.Conjugated {
		t.Errorf("blind resolver picked %v on clean symbols, want identity", amb)
	}
	for i := range resolved {
		if resolved[i] != syms[i] {
			t.Fatalf("symbol %d changed by the identity transform", i)
		}
	}
}

func TestCountBitErrors(t *testing.T) {
	errs, compared := CountBitErrors([]byte{0, 1, 1, 0}, []byte{0, 1, 0, 0, 1})
	if errs != 1 || compared != 4 {
		t.Errorf("got errs=%d compared=%d, want 1, 4", errs, compared)
	}
	if errs, compared = CountBitErrors(nil, []byte{1}); errs != 0 || compared != 0 {
		t.Errorf("empty comparison: errs=%d compared=%d", errs, compared)
	}
}

func TestEVMPercent(t *testing.T) {
	syms, _ := randomSyms(t, 50, 14)
	if evm := EVMPercent(syms); evm > 1e-4 {
		t.Errorf("EVM of ideal symbols = %v, want 0", evm)
	}

	// Scale every symbol to 80% amplitude: the error vector is 20% of the
	// ideal magnitude, so EVM is exactly 20%.
	if evm := EVMPercent(scale(syms, 0.8)); math.Abs(evm-20) > 0.01 {
		t.Errorf("EVM = %v, want 20", evm)
	}
}

func TestRefEVMPercent(t *testing.T) {
	syms, _ := randomSyms(t, 50, 15)
	if evm := RefEVMPercent(syms, syms); evm != 0 {
		t.Errorf("reference EVM against self = %v, want 0", evm)
	}

	// A 90° rotation is maximally wrong against the reference even though the
	// constellation looks perfect: each error vector is sqrt(2) times the
	// symbol magnitude.
	if evm := RefEVMPercent(scale(syms, complex(0, 1)), syms); math.Abs(evm-100*math.Sqrt2) > 0.1 {
		t.Errorf("rotated reference EVM = %v, want %v", evm, 100*math.Sqrt2)
	}
}

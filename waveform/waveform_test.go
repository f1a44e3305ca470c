package waveform

import (
	"math"
	"testing"

	"github.com/kf7aae/burstprobe/config"
)

func testConf() config.WaveformConf {
	c := config.DefaultWaveform()
	c.GuardSyms = 50
	c.PayloadSyms = 400
	c.PreambleSyms = 64
	c.PreambleRepeats = 2
	return c
}

func TestRRCTaps(t *testing.T) {
	taps := RRCTaps(0.35, 8, 10)

	if len(taps) != 81 {
		t.Fatalf("expected 81 taps for span 10 at 8 sps, got %d", len(taps))
	}
	if len(taps)%2 != 1 {
		t.Fatalf("tap count must be odd, got %d", len(taps))
	}

	for i := range taps {
		j := len(taps) - 1 - i
		if math.Abs(float64(taps[i]-taps[j])) > 1e-9 {
			t.Errorf("taps not symmetric: taps[%d]=%v taps[%d]=%v", i, taps[i], j, taps[j])
		}
	}

	var energy float64
	for _, v := range taps {
		energy += float64(v) * float64(v)
	}
	if math.Abs(energy-1) > 1e-6 {
		t.Errorf("tap energy = %v, want 1", energy)
	}

	center := taps[len(taps)/2]
	for i, v := range taps {
		if v > center {
			t.Errorf("tap %d (%v) exceeds center tap (%v)", i, v, center)
		}
	}
}

func TestMapDemapRoundTrip(t *testing.T) {
	bits := []byte{0, 0, 0, 1, 1, 0, 1, 1}
	syms := MapBits(bits)
	if len(syms) != 4 {
		t.Fatalf("expected 4 symbols, got %d", len(syms))
	}

	got := DemapSymbols(syms)
	for i := range bits {
		if got[i] != bits[i] {
			t.Errorf("bit %d: got %d, want %d", i, got[i], bits[i])
		}
	}

	// Unit energy on every point.
	for i, s := range syms {
		p := float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
		if math.Abs(p-1) > 1e-6 {
			t.Errorf("symbol %d power = %v, want 1", i, p)
		}
	}
}

func TestMapBitsDropsOddTrailingBit(t *testing.T) {
	if got := len(MapBits([]byte{1, 0, 1})); got != 1 {
		t.Fatalf("expected 1 symbol from 3 bits, got %d", got)
	}
}

func TestNearestPoint(t *testing.T) {
	s := complex(float32(0.9), float32(-0.1))
	p := NearestPoint(s)
	if real(p) < 0 || imag(p) > 0 {
		t.Errorf("nearest point of %v landed in the wrong quadrant: %v", s, p)
	}
	if math.Abs(float64(real(p))-1/math.Sqrt2) > 1e-6 {
		t.Errorf("nearest point not on the unit constellation: %v", p)
	}
}

func TestReferenceDeterminism(t *testing.T) {
	conf := testConf()
	a, err := NewReference(conf)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewReference(conf)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Shaped) != len(b.Shaped) {
		t.Fatalf("shaped lengths differ: %d vs %d", len(a.Shaped), len(b.Shaped))
	}
	for i := range a.Shaped {
		if a.Shaped[i] != b.Shaped[i] {
			t.Fatalf("shaped sample %d differs between regenerations", i)
		}
	}
	for i := range a.PayloadBits {
		if a.PayloadBits[i] != b.PayloadBits[i] {
			t.Fatalf("payload bit %d differs between regenerations", i)
		}
	}
}

func TestReferencePreambleRepeats(t *testing.T) {
	conf := testConf()
	ref, err := NewReference(conf)
	if err != nil {
		t.Fatal(err)
	}

	half := conf.PreambleSyms / 2
	for i := 0; i < half; i++ {
		if ref.PreambleSyms[i] != ref.PreambleSyms[i+half] {
			t.Fatalf("preamble symbol %d differs from its repeat", i)
		}
	}

	if got, want := ref.RepeatLag(), half*conf.SamplesPerSymbol(); got != want {
		t.Errorf("RepeatLag = %d, want %d", got, want)
	}
	if got, want := len(ref.PreambleWaveform()), conf.PreambleSyms*conf.SamplesPerSymbol(); got != want {
		t.Errorf("preamble waveform length = %d, want %d", got, want)
	}
	if got, want := len(ref.Shaped), (2*conf.GuardSyms+conf.PreambleSyms+conf.PayloadSyms)*conf.SamplesPerSymbol(); got != want {
		t.Errorf("shaped length = %d, want %d", got, want)
	}
	if got, want := len(ref.KnownBits()), 2*(conf.PreambleSyms+conf.PayloadSyms); got != want {
		t.Errorf("known bits = %d, want %d", got, want)
	}
}

func TestReferenceValidation(t *testing.T) {
	conf := testConf()
	conf.SymbolRate = 300_000 // not an integer divisor of 2 Msps
	if _, err := NewReference(conf); err == nil {
		t.Error("expected error for non-integer samples per symbol")
	}

	conf = testConf()
	conf.PreambleRepeats = 3 // 64 does not divide into 3
	if _, err := NewReference(conf); err == nil {
		t.Error("expected error for preamble not divisible into repeats")
	}
}

func TestQuantizedAmplitude(t *testing.T) {
	conf := testConf()
	ref, err := NewReference(conf)
	if err != nil {
		t.Fatal(err)
	}

	limit := conf.Amplitude + 1.0/127
	var peak float64
	for i, s := range ref.Shaped {
		m := math.Hypot(float64(real(s)), float64(imag(s)))
		if m > peak {
			peak = m
		}
		// Every sample must sit on the int8 DAC grid.
		for _, v := range []float64{float64(real(s)), float64(imag(s))} {
			steps := v * 127
			if math.Abs(steps-math.Round(steps)) > 1e-4 {
				t.Fatalf("sample %d not on the /127 grid: %v", i, s)
			}
		}
	}
	if peak > limit {
		t.Errorf("peak amplitude %v exceeds %v", peak, limit)
	}
	if peak < conf.Amplitude/2 {
		t.Errorf("peak amplitude %v suspiciously low for amp %v", peak, conf.Amplitude)
	}
}

func TestGroupDelay(t *testing.T) {
	conf := testConf()
	ref, err := NewReference(conf)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ref.GroupDelay(), conf.RRCSpanSyms*conf.SamplesPerSymbol()/2; got != want {
		t.Errorf("GroupDelay = %d, want %d", got, want)
	}
}

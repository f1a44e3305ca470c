package rx

import (
	"math"
	"testing"
)

func TestCoarseRepeatCFO(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	fs := conf.SampleRate
	lag := ref.RepeatLag()

	seg := rotate(ref.PreambleWaveform(), 1200, fs)
	hz, aliased, ok := CoarseRepeatCFO(seg, lag, fs)
	if !ok {
		t.Fatal("estimator rejected a full two-repeat preamble")
	}
	if aliased {
		t.Errorf("1200 Hz flagged aliased inside a +-%.0f Hz range", fs/(2*float64(lag)))
	}
	if absDiff(hz, 1200) > 50 {
		t.Errorf("coarse CFO = %.1f Hz, want 1200 +-50", hz)
	}
}

func TestCoarseRepeatCFOAliasedNearEdge(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	fs := conf.SampleRate
	lag := ref.RepeatLag()
	limit := fs / (2 * float64(lag))

	edge := 0.95 * limit
	seg := rotate(ref.PreambleWaveform(), edge, fs)
	hz, aliased, ok := CoarseRepeatCFO(seg, lag, fs)
	if !ok {
		t.Fatal("estimator rejected a full two-repeat preamble")
	}
	if !aliased {
		t.Errorf("%.1f Hz at 95%% of the %.1f Hz range not flagged aliased (est %.1f)", edge, limit, hz)
	}
}

func TestCoarseRepeatCFOTooShort(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	lag := ref.RepeatLag()

	if _, _, ok := CoarseRepeatCFO(ref.PreambleWaveform()[:2*lag-1], lag, conf.SampleRate); ok {
		t.Error("estimator accepted a segment shorter than two repeats")
	}
}

func TestCoarseQPSK4CFO(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	fs := conf.SampleRate

	seg := rotate(ref.Shaped, 30_000, fs)
	hz := CoarseQPSK4CFO(seg, fs)
	if absDiff(hz, 30_000) > 500 {
		t.Errorf("qpsk4 coarse CFO = %.1f Hz, want 30000 +-500", hz)
	}
}

func TestDerotateInvertsRotation(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	fs := conf.SampleRate

	got := Derotate(rotate(ref.Shaped, 5000, fs), 5000, fs, 0)
	for i := range got {
		if absDiff(float64(real(got[i])), float64(real(ref.Shaped[i]))) > 1e-3 ||
			absDiff(float64(imag(got[i])), float64(imag(ref.Shaped[i]))) > 1e-3 {
			t.Fatalf("sample %d not recovered: got %v, want %v", i, got[i], ref.Shaped[i])
		}
	}
}

func TestDerotateAbsoluteIndexing(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	fs := conf.SampleRate

	whole := Derotate(ref.Shaped, 777, fs, 0)
	tail := Derotate(ref.Shaped[100:], 777, fs, 100)
	for i := range tail {
		if whole[100+i] != tail[i] {
			t.Fatalf("sample %d: windowed de-rotation diverged from whole-stream de-rotation", i)
		}
	}
}

func TestFineCFO(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	fs := conf.SampleRate
	pre := ref.PreambleWaveform()

	seg := rotate(pre, 150, fs)
	hz, ok := FineCFO(seg, pre, fs, 0.05)
	if !ok {
		t.Fatal("fine estimator rejected a full preamble")
	}
	if absDiff(hz, 150) > 5 {
		t.Errorf("fine CFO = %.2f Hz, want 150 +-5", hz)
	}
}

func TestFineCFOTooFewSamples(t *testing.T) {
	conf := testConf()
	ref := mustRef(t, conf)
	pre := ref.PreambleWaveform()

	if _, ok := FineCFO(pre[:5], pre[:5], conf.SampleRate, 0.05); ok {
		t.Error("fine estimator accepted a 5-sample segment")
	}
}

func TestUnwrap(t *testing.T) {
	// Linearly increasing phase wrapped into (-pi, pi].
	n := 200
	slope := 0.3
	phase := make([]float64, n)
	for i := range phase {
		p := slope * float64(i)
		for p > math.Pi {
			p -= 2 * math.Pi
		}
		phase[i] = p
	}

	unwrap(phase)
	for i := range phase {
		if absDiff(phase[i], slope*float64(i)) > 1e-9 {
			t.Fatalf("sample %d: unwrapped phase %.4f, want %.4f", i, phase[i], slope*float64(i))
		}
	}
}

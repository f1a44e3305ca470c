package rx

import (
	"testing"

	"github.com/kf7aae/burstprobe/config"
	"github.com/kf7aae/burstprobe/sim"
)

func TestScanTwoBursts(t *testing.T) {
	p := testPipeline(t, config.DefaultDetector())
	ref := p.ref

	o1 := 600
	o2 := o1 + len(ref.Shaped) + 12_000
	total := o2 + len(ref.Shaped) + 600
	a := sim.BuildStream(ref, sim.BurstOpts{Offset: o1, TotalLen: total})
	b := sim.BuildStream(ref, sim.BurstOpts{Offset: o2, TotalLen: total, CFOHz: 400})
	for i := range a {
		a[i] += b[i]
	}

	results, stats := p.Scan(a, true)
	if len(results) != 2 {
		t.Fatalf("scan returned %d results, want 2", len(results))
	}
	for i, res := range results {
		if !res.Record.Locked {
			t.Errorf("burst %d did not lock", i)
		}
		if res.Metrics == nil || res.Metrics.BER != 0 {
			t.Errorf("burst %d has bit errors on a clean stream", i)
		}
	}

	if stats.BurstCount != 2 || stats.LockedCount != 2 {
		t.Errorf("stats counts = %d/%d, want 2/2", stats.BurstCount, stats.LockedCount)
	}
	// One burst at 0 Hz and one at 400 Hz.
	if absDiff(stats.CFOMeanHz, 200) > 50 {
		t.Errorf("CFO mean = %.1f Hz, want 200 +-50", stats.CFOMeanHz)
	}
	if stats.CFOStdHz < 100 {
		t.Errorf("CFO spread = %.1f Hz, expected the 400 Hz split to show", stats.CFOStdHz)
	}
}

func TestScanEmptyStream(t *testing.T) {
	p := testPipeline(t, config.DefaultDetector())

	results, stats := p.Scan(sim.NoiseStream(15_000, 0.05, 77), true)
	if len(results) != 0 {
		t.Fatalf("scan of pure noise returned %d results", len(results))
	}
	if stats.BurstCount != 0 || stats.LockedCount != 0 {
		t.Errorf("stats counts = %d/%d, want 0/0", stats.BurstCount, stats.LockedCount)
	}
}

func TestScanSkipsTruncatedTail(t *testing.T) {
	p := testPipeline(t, config.DefaultDetector())
	ref := p.ref

	o1 := 600
	o2 := o1 + len(ref.Shaped) + 12_000
	// Second burst cut off mid-preamble: the scan must still deliver the
	// first burst in full and record the tail as a degraded result.
	total := o2 + ref.PreambleStart() + 3*ref.RepeatLag()/2
	a := sim.BuildStream(ref, sim.BurstOpts{Offset: o1, TotalLen: total})
	b := sim.BuildStream(ref, sim.BurstOpts{Offset: o2, TotalLen: total})
	for i := range a {
		a[i] += b[i]
	}

	results, stats := p.Scan(a, true)
	if len(results) != 2 {
		t.Fatalf("scan returned %d results, want 2", len(results))
	}
	if !results[0].Record.Locked {
		t.Error("intact first burst did not lock")
	}
	if results[1].Record.Locked {
		t.Error("truncated second burst reported a lock")
	}
	if !results[1].Record.Flags.Has(FlagTruncatedBurst) {
		t.Error("truncated second burst not flagged")
	}
	if stats.LockedCount != 1 {
		t.Errorf("locked count = %d, want 1", stats.LockedCount)
	}
}

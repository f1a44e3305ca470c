package rx

import (
	"errors"
	"math/cmplx"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat"
)

// ScanStats summarizes a multi-burst scan: channel phase and magnitude
// stability across bursts (motion shows up as phase variance) and the CFO
// spread.
type ScanStats struct {
	BurstCount  int     `json:"burst_count"`
	LockedCount int     `json:"locked_count"`
	PhaseVar    float64 `json:"tap_phase_var"`
	MagVar      float64 `json:"tap_mag_var"`
	CFOMeanHz   float64 `json:"cfo_mean_hz"`
	CFOStdHz    float64 `json:"cfo_std_hz"`
}

// Scan finds every burst in the stream and runs the pipeline on each.
// Per-burst failures are logged and skipped; one bad burst never aborts the
// rest (partial-failure semantics).
func (p *Pipeline) Scan(samples []complex64, useReference bool) ([]*Result, ScanStats) {
	work, preCoarse := p.precorrect(samples)

	minSep := int(p.det.MinSepMs / 1000 * p.fs)
	if minSep < 1 {
		minSep = 1
	}
	peaks := p.detector.Peaks(work[:p.searchLen(len(work))], minSep)
	log.Infof("[rx] Scan found %d burst candidates", len(peaks))

	var results []*Result
	var phases, mags, cfos []float64
	var perr *PipelineError
	for _, peak := range peaks {
		res, err := p.processBurst(work, preCoarse, peak, useReference)
		if err != nil {
			if errors.As(err, &perr) {
				log.Warnf("[rx] Burst at sample %d skipped: %v", peak.Index, err)
				results = append(results, res)
				continue
			}
			log.Errorf("[rx] Burst at sample %d: %v", peak.Index, err)
			continue
		}
		results = append(results, res)
		if !res.Record.Locked {
			continue
		}
		phases = append(phases, cmplx.Phase(res.Record.Tap()))
		mags = append(mags, res.Record.TapMag)
		cfos = append(cfos, res.Record.TotalCFOHz())
	}

	stats := ScanStats{BurstCount: len(results), LockedCount: len(phases)}
	if len(phases) > 0 {
		stats.CFOMeanHz = stat.Mean(cfos, nil)
	}
	// Sample variance needs at least two locked bursts.
	if len(phases) > 1 {
		unwrap(phases)
		stats.PhaseVar = stat.Variance(phases, nil)
		stats.MagVar = stat.Variance(mags, nil)
		stats.CFOStdHz = stat.StdDev(cfos, nil)
	}
	return results, stats
}

package rx

import (
	"github.com/charmbracelet/log"
	"github.com/kf7aae/burstprobe/config"
	"github.com/kf7aae/burstprobe/waveform"
	"github.com/racerxdl/segdsp/dsp"
)

// Pipeline runs the full receiver chain for one burst at a time. It holds
// only read-only configuration and the regenerated reference, so independent
// bursts or capture files may be processed from separate goroutines with
// separate Pipeline values; a single Pipeline is not safe for concurrent use
// because the detector's FFT scratch is per-call anyway but the semantics are
// strictly one burst end-to-end.
type Pipeline struct {
	ref      *waveform.Reference
	det      config.DetectorConf
	detector *Detector
	fs       float64
	sps      int
}

func NewPipeline(ref *waveform.Reference, det config.DetectorConf) *Pipeline {
	return &Pipeline{
		ref:      ref,
		det:      det,
		detector: NewDetector(ref.PreambleWaveform(), det.Threshold),
		fs:       ref.Conf.SampleRate,
		sps:      ref.Conf.SamplesPerSymbol(),
	}
}

// Process scans the stream for a single burst and runs it end to end. The
// returned Result always carries the Burst Record; Record.Locked reports
// whether the rest of it means anything. useReference selects reference-based
// ambiguity resolution and BER against the known payload bits; without it the
// blind resolver runs and BER is not applicable.
func (p *Pipeline) Process(samples []complex64, useReference bool) (*Result, error) {
	if len(samples) < len(p.ref.PreambleWaveform())/2 {
		return &Result{}, pipelineErrorf(CodeInsufficientSignal,
			"stream of %d samples is shorter than half a preamble", len(samples))
	}
	work, preCoarse := p.precorrect(samples)

	peak, ok := p.detector.Detect(work[:p.searchLen(len(work))])
	if !ok {
		return &Result{}, pipelineErrorf(CodeDetectionFailure,
			"no correlation peak above threshold %.2f in %d samples", p.det.Threshold, p.searchLen(len(work)))
	}
	return p.processBurst(work, preCoarse, peak, useReference)
}

// precorrect optionally runs the wide-range qpsk^4 estimator over the search
// window and de-rotates the whole stream by it, so a large LO offset does not
// wash out the correlation peak.
func (p *Pipeline) precorrect(samples []complex64) ([]complex64, float64) {
	if p.det.CoarseMode != CoarseModeQPSK4 {
		return samples, 0
	}
	hz := CoarseQPSK4CFO(samples[:p.searchLen(len(samples))], p.fs)
	log.Debugf("[rx] qpsk4 pre-correction: %.1f Hz", hz)
	return Derotate(samples, hz, p.fs, 0), hz
}

func (p *Pipeline) searchLen(total int) int {
	if p.det.SearchSeconds <= 0 {
		return total
	}
	n := int(p.det.SearchSeconds * p.fs)
	if n > total {
		return total
	}
	return n
}

// processBurst takes a detected candidate through CFO correction, timing
// recovery, matched filtering, equalization and metrics. work has already
// been de-rotated by preCoarse.
func (p *Pipeline) processBurst(work []complex64, preCoarse float64, peak Peak, useReference bool) (*Result, error) {
	res := &Result{}
	rec := &res.Record
	defer func() { rec.FlagNames = rec.Flags.Strings() }()
	rec.StartSample = peak.Index
	rec.PeakMagnitude = peak.Norm

	preRef := p.ref.PreambleWaveform()
	preLen := len(preRef)

	// Coarse CFO from the preamble repeat structure.
	var repeatCoarse float64
	if p.det.CoarseMode != CoarseModeNone {
		segEnd := peak.Index + preLen
		if segEnd > len(work) {
			segEnd = len(work)
		}
		hz, aliased, ok := CoarseRepeatCFO(work[peak.Index:segEnd], p.ref.RepeatLag(), p.fs)
		if !ok {
			rec.Flags |= FlagTruncatedBurst
			log.Warnf("[rx] Burst at %d truncated: fewer than two preamble repeats visible, coarse CFO limited to pre-correction", peak.Index)
		} else {
			repeatCoarse = hz
			if aliased {
				rec.Flags |= FlagAliasedCFO
				log.Warnf("[rx] Coarse CFO %.1f Hz is at the edge of the +-%.1f Hz unambiguous range, estimate unreliable",
					hz, p.fs/(2*float64(p.ref.RepeatLag())))
			}
		}
	}
	rec.CoarseCFOHz = preCoarse + repeatCoarse

	derot := Derotate(work, repeatCoarse, p.fs, 0)

	// Timing recovery. A refined peak below the detection threshold means the
	// original detection was spurious; do not let it reach the metrics.
	tpeak, ok := RefineTiming(derot, preRef, peak.Index, p.sps, p.det.Threshold)
	if !ok {
		return res, pipelineErrorf(CodeDetectionFailure,
			"timing search around sample %d fell below threshold %.2f", peak.Index, p.det.Threshold)
	}
	k := tpeak.Index
	rec.StartSample = k
	rec.PeakMagnitude = tpeak.Norm
	rec.FractionalOffset = tpeak.Frac / float64(p.sps)

	// Fine CFO from the preamble phase slope, skipped on truncation.
	if !rec.Flags.Has(FlagTruncatedBurst) {
		segEnd := k + preLen
		if segEnd > len(derot) {
			segEnd = len(derot)
		}
		if hz, fineOK := FineCFO(derot[k:segEnd], preRef, p.fs, p.det.MaskFrac); fineOK {
			rec.FineCFOHz = hz
		} else {
			rec.Flags |= FlagTruncatedBurst
			log.Warnf("[rx] Fine CFO skipped: too few preamble samples above the energy mask")
		}
	}

	// Extract the burst with the total CFO removed and matched-filter it.
	conf := p.ref.Conf
	nKnown := conf.PreambleSyms + conf.PayloadSyms
	need := nKnown*p.sps + 2*p.ref.GroupDelay() + p.sps
	end := k + need
	if end > len(derot) {
		end = len(derot)
	}
	seg := Derotate(derot[k:end], rec.FineCFOHz, p.fs, 0)
	y := dsp.MakeFirFilter(p.ref.Taps).Work(seg)

	// Symbol timing phase: try every sampling phase, judge by preamble EVM
	// after a per-phase tap estimate, keep the best. Strict less-than keeps
	// the lowest tau on ties.
	pre := p.ref.PreambleSyms
	base := 2 * p.ref.GroupDelay()
	bestTau := -1
	bestEVM := 0.0
	var bestTap complex128
	var bestSyms []complex64
	for tau := 0; tau < p.sps; tau++ {
		syms := sampleSymbols(y, tau, base, p.sps, nKnown)
		if len(syms) < len(pre)+10 {
			continue
		}
		tap, err := EstimateTap(pre, syms[:len(pre)])
		if err != nil {
			return res, err
		}
		evm := RefEVMPercent(EqualizeSymbols(tap, syms[:len(pre)]), pre)
		if bestTau < 0 || evm < bestEVM {
			bestTau = tau
			bestEVM = evm
			bestTap = tap
			bestSyms = syms
		}
	}
	if bestTau < 0 {
		// Not enough symbols past the burst start to lock. Keep the detection
		// and coarse CFO rather than failing outright.
		rec.Flags |= FlagTruncatedBurst
		log.Warnf("[rx] Burst at %d: only %d filtered samples, not enough for symbol timing; coarse-only result", k, len(y))
		return res, nil
	}

	rec.SymbolTau = bestTau
	rec.setTap(bestTap)
	rec.Locked = true
	log.Debugf("[rx] Lock at sample %d: peak %.3f, cfo %.1f+%.1f Hz, tau %d, preamble EVM %.2f%%",
		k, tpeak.Norm, rec.CoarseCFOHz, rec.FineCFOHz, bestTau, bestEVM)

	res.Metrics = p.computeMetrics(rec, EqualizeSymbols(bestTap, bestSyms), useReference)
	res.Payload = res.Metrics.payload
	return res, nil
}

func (p *Pipeline) computeMetrics(rec *BurstRecord, eq []complex64, useReference bool) *MetricResult {
	met := &MetricResult{Flags: rec.Flags}
	preSyms := len(p.ref.PreambleSyms)

	var resolved []complex64
	if useReference {
		met.Ambiguity, resolved = ResolveWithReference(eq, p.ref.KnownBits())
		met.RefEVMPercent = RefEVMPercent(resolved, p.ref.KnownSymbols())

		payload := resolved[preSyms:]
		errs, compared := CountBitErrors(waveform.DemapSymbols(payload), p.ref.PayloadBits)
		if compared > 0 {
			met.BER = float64(errs) / float64(compared)
			met.BitsCompared = compared
		}
		met.payload = payload
	} else {
		met.Flags |= FlagNoReferenceBits | FlagBlindAmbiguity
		met.Ambiguity, resolved = ResolveBlind(eq)
		met.payload = resolved[preSyms:]
	}

	met.EVMPercent = EVMPercent(met.payload)
	met.SNRdB = EstimateSNR(met.payload)
	met.FlagNames = met.Flags.Strings()
	return met
}

// Package rx implements the burst QPSK receiver chain: correlation burst
// detection, coarse/fine carrier frequency offset estimation, timing
// recovery, single-tap equalization, matched filtering and metric
// computation (EVM, BER).
package rx

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Reason codes attached to per-burst failures and warnings.
const (
	CodeDetectionFailure   = "detection_failure"
	CodeAliasedCFO         = "aliased_frequency_estimate"
	CodeTruncatedBurst     = "truncated_burst"
	CodeDegenerateChannel  = "degenerate_channel_estimate"
	CodeNoReferenceBits    = "no_reference_bits"
	CodeInsufficientSignal = "insufficient_signal"
)

// PipelineError is a per-burst failure with a machine-readable reason code.
// Batch callers continue with the next burst or file after one of these.
type PipelineError struct {
	Code string
	Msg  string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func pipelineErrorf(code, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Flags are soft-status conditions that degrade a result without aborting it.
// They ride along the Burst Record into the Metric Result.
type Flags uint8

const (
	// FlagAliasedCFO marks a coarse CFO estimate at the edge of the
	// unambiguous range; the value may have wrapped.
	FlagAliasedCFO Flags = 1 << iota
	// FlagTruncatedBurst marks a burst cut off by the end of the stream;
	// fewer than two preamble repeats were visible, so only the wide-range
	// coarse estimator ran.
	FlagTruncatedBurst
	// FlagNoReferenceBits marks metrics computed without ground-truth bits;
	// BER is not applicable and ambiguity resolution was blind.
	FlagNoReferenceBits
	// FlagBlindAmbiguity marks that the rotation/conjugation ambiguity was
	// resolved by the decision-directed heuristic, which carries no
	// correctness guarantee.
	FlagBlindAmbiguity
)

func (f Flags) Has(other Flags) bool { return f&other != 0 }

func (f Flags) Strings() []string {
	var out []string
	if f.Has(FlagAliasedCFO) {
		out = append(out, CodeAliasedCFO)
	}
	if f.Has(FlagTruncatedBurst) {
		out = append(out, CodeTruncatedBurst)
	}
	if f.Has(FlagNoReferenceBits) {
		out = append(out, CodeNoReferenceBits)
	}
	if f.Has(FlagBlindAmbiguity) {
		out = append(out, "blind_ambiguity")
	}
	return out
}

// BurstRecord is assembled stage by stage as a burst moves down the chain and
// is frozen once the pipeline returns. Fields other than Locked and Flags are
// only meaningful when Locked is true.
type BurstRecord struct {
	StartSample int `json:"start_sample"`

	// FractionalOffset is the sub-sample timing offset in symbol periods,
	// in [-0.5, 0.5).
	FractionalOffset float64 `json:"fractional_timing_offset"`

	CoarseCFOHz float64 `json:"coarse_cfo_hz"`
	FineCFOHz   float64 `json:"fine_cfo_hz"`

	TapMag      float64 `json:"channel_tap_mag"`
	TapPhaseDeg float64 `json:"channel_tap_phase_deg"`

	// PeakMagnitude is the normalized correlation peak in [0, 1].
	PeakMagnitude float64 `json:"correlation_peak_magnitude"`

	// SymbolTau is the selected symbol sampling phase in 0..sps-1.
	SymbolTau int `json:"symbol_tau"`

	Locked bool  `json:"locked"`
	Flags  Flags `json:"-"`

	FlagNames []string `json:"flags,omitempty"`

	tap complex128
}

func (b *BurstRecord) TotalCFOHz() float64 { return b.CoarseCFOHz + b.FineCFOHz }

// Tap is the complex single-tap channel estimate.
func (b *BurstRecord) Tap() complex128 { return b.tap }

func (b *BurstRecord) setTap(h complex128) {
	b.tap = h
	b.TapMag = cmplx.Abs(h)
	b.TapPhaseDeg = cmplx.Phase(h) * 180 / math.Pi
}

// Ambiguity names the transform applied to resolve the blind QPSK phase
// ambiguity: a de-rotation by a multiple of 90 degrees, optionally preceded
// by conjugation (I/Q swap).
type Ambiguity struct {
	RotationDeg int  `json:"rotation_deg"`
	Conjugated  bool `json:"conjugated"`
}

func (a Ambiguity) String() string {
	c := "no-conjugate"
	if a.Conjugated {
		c = "conjugate"
	}
	return fmt.Sprintf("%d°/%s", a.RotationDeg, c)
}

// MetricResult is the terminal output of the pipeline for one burst.
type MetricResult struct {
	// EVMPercent is measured against the nearest ideal constellation point
	// over the payload symbols.
	EVMPercent float64 `json:"evm_percent"`

	// RefEVMPercent is measured against the known transmitted symbol
	// sequence. Zero when no reference is available.
	RefEVMPercent float64 `json:"ref_evm_percent"`

	// BER is only meaningful when BitsCompared > 0. BitsCompared == 0 means
	// BER was not applicable, never that it was zero.
	BER          float64 `json:"ber"`
	BitsCompared int     `json:"bits_compared"`

	// SNRdB is an M2M4 moments estimate over the payload symbols.
	SNRdB float64 `json:"snr_db"`

	Ambiguity Ambiguity `json:"ambiguity_resolved"`
	Flags     Flags     `json:"-"`

	FlagNames []string `json:"flags"`

	payload []complex64
}

// HasBER reports whether BER was computed against reference bits.
func (m *MetricResult) HasBER() bool { return m.BitsCompared > 0 }

// Result couples the Burst Record with its metrics and the equalized payload
// symbols for downstream rendering.
type Result struct {
	Record  BurstRecord   `json:"burst"`
	Metrics *MetricResult `json:"metrics,omitempty"`
	Payload []complex64   `json:"-"`
}

package config

// WaveformConf describes the burst format shared between the generator and the
// receiver. The receiver regenerates its correlation reference from these
// values, so both ends must agree on every field. The preamble is built from
// PreambleRepeats identical sub-sequences; the repeat spacing is what makes the
// coarse CFO estimate possible.
type WaveformConf struct {
	SampleRate      float64 `koanf:"sample_rate"`
	SymbolRate      float64 `koanf:"symbol_rate"`
	RRCBeta         float64 `koanf:"rrc_beta"`
	RRCSpanSyms     int     `koanf:"rrc_span_syms"`
	GuardSyms       int     `koanf:"guard_syms"`
	PayloadSyms     int     `koanf:"payload_syms"`
	PreambleSyms    int     `koanf:"preamble_syms"`
	PreambleRepeats int     `koanf:"preamble_repeats"`
	Seed            int64   `koanf:"seed"`
	Amplitude       float64 `koanf:"amplitude"`
}

// SamplesPerSymbol returns the integer oversampling factor. SampleRate must be
// an integer multiple of SymbolRate.
func (w WaveformConf) SamplesPerSymbol() int {
	return int(w.SampleRate / w.SymbolRate)
}

type DetectorConf struct {
	Threshold     float64 `koanf:"threshold"`
	SearchSeconds float64 `koanf:"search_seconds"`
	MinSepMs      float64 `koanf:"min_sep_ms"`
	MaskFrac      float64 `koanf:"mask_frac"`
	CoarseMode    string  `koanf:"coarse_mode"`
}

type StoreConf struct {
	Path string `koanf:"path"`
}

type TuiConf struct {
	RefreshMs       int     `koanf:"refresh_ms"`
	EvmWarnPct      float64 `koanf:"evm_threshold_warn_pct"`
	EvmCritPct      float64 `koanf:"evm_threshold_crit_pct"`
	BerWarnPct      float64 `koanf:"ber_threshold_warn_pct"`
	BerCritPct      float64 `koanf:"ber_threshold_crit_pct"`
	EnableLogOutput bool    `koanf:"enable_log_output"`
}

// DefaultWaveform matches the waveform the generate command ships with:
// 2 Msps, 250 ksym/s QPSK, RRC beta 0.35 span 10, 200 guard symbols, a
// 128-symbol preamble built from two identical 64-symbol halves, and a
// 4000-symbol payload.
func DefaultWaveform() WaveformConf {
	return WaveformConf{
		SampleRate:      2_000_000,
		SymbolRate:      250_000,
		RRCBeta:         0.35,
		RRCSpanSyms:     10,
		GuardSyms:       200,
		PayloadSyms:     4000,
		PreambleSyms:    128,
		PreambleRepeats: 2,
		Seed:            1234,
		Amplitude:       0.25,
	}
}

func DefaultDetector() DetectorConf {
	return DetectorConf{
		Threshold:     0.6,
		SearchSeconds: 1.0,
		MinSepMs:      5.0,
		MaskFrac:      0.05,
		CoarseMode:    "repeat",
	}
}

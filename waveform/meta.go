package waveform

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/kf7aae/burstprobe/config"
)

// The generator writes a key=value metadata file next to the waveform so a
// capture can be analyzed later without the original config. Unknown keys are
// ignored, missing keys keep their configured value.

// WriteMeta writes the waveform metadata file.
func WriteMeta(path string, conf config.WaveformConf) error {
	var b strings.Builder
	fmt.Fprintf(&b, "fs=%d\n", int(conf.SampleRate))
	fmt.Fprintf(&b, "sym_rate=%d\n", int(conf.SymbolRate))
	fmt.Fprintf(&b, "sps=%d\n", conf.SamplesPerSymbol())
	fmt.Fprintf(&b, "beta=%g\n", conf.RRCBeta)
	fmt.Fprintf(&b, "span_syms=%d\n", conf.RRCSpanSyms)
	fmt.Fprintf(&b, "guard_syms=%d\n", conf.GuardSyms)
	fmt.Fprintf(&b, "payload_syms=%d\n", conf.PayloadSyms)
	fmt.Fprintf(&b, "preamble_syms=%d\n", conf.PreambleSyms)
	fmt.Fprintf(&b, "preamble_repeats=%d\n", conf.PreambleRepeats)
	fmt.Fprintf(&b, "seed=%d\n", conf.Seed)
	fmt.Fprintf(&b, "amp=%g\n", conf.Amplitude)
	fmt.Fprintf(&b, "note=int8 interleaved IQ for HackRF-style TX\n")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// ParseMeta overlays values from a metadata file onto conf. A missing file is
// not an error, the configured values stand.
func ParseMeta(path string, conf config.WaveformConf) (config.WaveformConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Waveform metadata %s not found, using configured parameters", path)
			return conf, nil
		}
		return conf, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)

		switch k {
		case "fs":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				conf.SampleRate = f
			}
		case "sym_rate":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				conf.SymbolRate = f
			}
		case "beta":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				conf.RRCBeta = f
			}
		case "amp":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				conf.Amplitude = f
			}
		case "span_syms":
			if n, err := strconv.Atoi(v); err == nil {
				conf.RRCSpanSyms = n
			}
		case "guard_syms":
			if n, err := strconv.Atoi(v); err == nil {
				conf.GuardSyms = n
			}
		case "payload_syms":
			if n, err := strconv.Atoi(v); err == nil {
				conf.PayloadSyms = n
			}
		case "preamble_syms":
			if n, err := strconv.Atoi(v); err == nil {
				conf.PreambleSyms = n
			}
		case "preamble_repeats":
			if n, err := strconv.Atoi(v); err == nil {
				conf.PreambleRepeats = n
			}
		case "seed":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				conf.Seed = n
			}
		}
	}
	return conf, nil
}

// InterleavedInt8 serializes the shaped reference as interleaved int8 I/Q,
// the HackRF transmit format. Shaped samples sit exactly on the /127 grid so
// the conversion is lossless.
func (r *Reference) InterleavedInt8() []byte {
	out := make([]byte, 2*len(r.Shaped))
	for i, s := range r.Shaped {
		out[2*i] = byte(int8(math.Round(float64(real(s)) * 127)))
		out[2*i+1] = byte(int8(math.Round(float64(imag(s)) * 127)))
	}
	return out
}

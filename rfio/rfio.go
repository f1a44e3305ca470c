// Package rfio loads raw SDR capture files into complex baseband sample
// slices. The whole capture is read into memory up front; the receiver chain
// never touches the filesystem.
package rfio

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/kf7aae/burstprobe/sim"
	"github.com/kf7aae/burstprobe/waveform"
)

// Source is a finite, randomly-accessible complex sample sequence plus its
// sample rate. CenterFreq and Gain are capture metadata only, the receiver
// math never reads them.
type Source struct {
	Samples    []complex64
	SampleRate float64
	CenterFreq float64
	Gain       float64
	Label      string
}

// Format tags accepted by Open.
const (
	FormatU8IQ = "u8iq" // rtl_sdr: interleaved uint8, offset binary
	FormatI8IQ = "i8iq" // hackrf: interleaved int8, two's complement
)

// Open reads a capture file in the given format. DC offset is removed so the
// correlator does not see the receiver's LO leakage as signal energy.
func Open(path, format string, sampleRate float64) (*Source, error) {
	var samples []complex64
	var err error

	switch format {
	case FormatU8IQ:
		samples, err = ReadU8IQ(path)
	case FormatI8IQ:
		samples, err = ReadI8IQ(path)
	default:
		return nil, fmt.Errorf("unknown capture format %q (want %s or %s)", format, FormatU8IQ, FormatI8IQ)
	}
	if err != nil {
		return nil, err
	}

	log.Debugf("[rfio] Loaded %d samples from %s (%s)", len(samples), path, format)
	RemoveDC(samples)

	return &Source{
		Samples:    samples,
		SampleRate: sampleRate,
		Label:      path,
	}, nil
}

// Simulated wraps a synthetic impaired burst stream in the same Source shape
// the file readers produce, so the receiver can be exercised without a
// capture file.
func Simulated(ref *waveform.Reference, opts sim.BurstOpts) *Source {
	return &Source{
		Samples:    sim.BuildStream(ref, opts),
		SampleRate: ref.Conf.SampleRate,
		Label:      "simulated",
	}
}

// ReadU8IQ reads an rtl_sdr raw capture: interleaved uint8 I,Q in offset
// binary. The (byte - 127.5) / 128 conversion is a format contract with the
// capture utility; getting it wrong skews every amplitude metric downstream.
func ReadU8IQ(path string) ([]complex64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading u8 IQ capture: %w", err)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	samples := make([]complex64, len(raw)/2)
	for n := range samples {
		i := (float32(raw[2*n]) - 127.5) / 128.0
		q := (float32(raw[2*n+1]) - 127.5) / 128.0
		samples[n] = complex(i, q)
	}
	return samples, nil
}

// ReadI8IQ reads a HackRF raw capture: interleaved int8 I,Q.
func ReadI8IQ(path string) ([]complex64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading i8 IQ capture: %w", err)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	samples := make([]complex64, len(raw)/2)
	for n := range samples {
		i := float32(int8(raw[2*n])) / 128.0
		q := float32(int8(raw[2*n+1])) / 128.0
		samples[n] = complex(i, q)
	}
	return samples, nil
}

// RemoveDC subtracts the complex mean in place.
func RemoveDC(samples []complex64) {
	if len(samples) == 0 {
		return
	}
	var sumI, sumQ float64
	for _, s := range samples {
		sumI += float64(real(s))
		sumQ += float64(imag(s))
	}
	mean := complex(float32(sumI/float64(len(samples))), float32(sumQ/float64(len(samples))))
	for n := range samples {
		samples[n] -= mean
	}
}

package rx

import "math"

// EstimateSNR computes an M2M4 moments SNR estimate over a symbol block.
// Based upon SatDump's SNR calculation routine, which in turn follows:
//
// D. R. Pauluzzi and N. C. Beaulieu, "A comparison of SNR
// estimation techniques for the AWGN channel," IEEE
// Trans. Communications, Vol. 48, No. 10, pp. 1681-1691, 2000.
//
// Returns dB, clamped at 0 for signals too noisy to separate.
func EstimateSNR(syms []complex64) float64 {
	if len(syms) == 0 {
		return 0
	}

	var y1, y2 float64
	for _, s := range syms {
		p := float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
		y1 += p
		y2 += p * p
	}
	y1 /= float64(len(syms))
	y2 /= float64(len(syms))

	// Breaking out the radicand here to avoid any floating point errors,
	// since we use it twice.
	radicand := 2*y1*y1 - y2
	if radicand <= 0 {
		return 0
	}
	signal := math.Sqrt(radicand)
	noise := y1 - signal
	if noise <= 0 || signal <= 0 {
		return 0
	}
	return math.Max(0, 10*math.Log10(signal/noise))
}

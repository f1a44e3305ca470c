package rx

import "math/cmplx"

// EstimateTap computes the least-squares single-tap channel estimate
// h = <known, received> / <known, known> over corresponding symbol pairs.
// A zero-energy reference is a configuration error, not a signal condition.
func EstimateTap(known, received []complex64) (complex128, error) {
	n := len(known)
	if len(received) < n {
		n = len(received)
	}

	var num complex128
	var den float64
	for i := 0; i < n; i++ {
		k := complex128(known[i])
		num += complex128(received[i]) * cmplx.Conj(k)
		den += real(k)*real(k) + imag(k)*imag(k)
	}
	if den < 1e-20 {
		return 0, pipelineErrorf(CodeDegenerateChannel, "reference preamble has zero energy, cannot equalize")
	}
	return num / complex(den, 0), nil
}

// EqualizeSymbols divides every symbol by the channel tap, returning a new
// slice.
func EqualizeSymbols(tap complex128, syms []complex64) []complex64 {
	out := make([]complex64, len(syms))
	for i, s := range syms {
		out[i] = complex64(complex128(s) / tap)
	}
	return out
}

package dsp

import "math"

// Hamming returns a Hamming window of length n. A single-point window is 1.
func Hamming(n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{1}
	}
	win := make([]float64, n)
	for i := range win {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// ApplyWindow multiplies samples by window into dst, growing dst when it is
// too short. It returns nil when the lengths differ.
func ApplyWindow(dst []complex128, samples []complex64, window []float64) []complex128 {
	if len(samples) != len(window) {
		return nil
	}
	if cap(dst) < len(samples) {
		dst = make([]complex128, len(samples))
	}
	dst = dst[:len(samples)]
	for i, v := range samples {
		dst[i] = complex(float64(real(v))*window[i], float64(imag(v))*window[i])
	}
	return dst
}

package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFTShift rotates data in place so DC sits in the middle and returns it.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n < 2 {
		return data
	}
	half := n / 2
	tmp := make([]complex128, half)
	copy(tmp, data[:half])
	copy(data, data[half:])
	copy(data[n-half:], tmp)
	return data
}

// Spectrum computes Hamming-windowed power spectra of a fixed size. The
// window and FFT plan are built once; Power is safe for concurrent use.
type Spectrum struct {
	mu        sync.Mutex
	size      int
	window    []float64
	windowSum float64
	fft       *fourier.CmplxFFT
	scratch   []complex128
}

// NewSpectrum returns an analyzer for blocks of size samples.
func NewSpectrum(size int) *Spectrum {
	s := &Spectrum{
		size:    size,
		window:  Hamming(size),
		scratch: make([]complex128, size),
	}
	for _, v := range s.window {
		s.windowSum += v
	}
	if size > 0 {
		s.fft = fourier.NewCmplxFFT(size)
	}
	return s
}

// Power returns the DC-centred spectrum of samples in dB relative to
// fullScale. Bins with no energy are -Inf. A block of the wrong length
// yields nil.
func (s *Spectrum) Power(samples []complex64, fullScale float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(samples) == 0 || len(samples) != s.size {
		return nil
	}
	windowed := ApplyWindow(s.scratch, samples, s.window)
	coeffs := s.fft.Coefficients(nil, windowed)
	FFTShift(coeffs)

	db := make([]float64, len(coeffs))
	norm := s.windowSum * fullScale
	for i, v := range coeffs {
		mag := cmplx.Abs(v)
		if mag == 0 {
			db[i] = math.Inf(-1)
			continue
		}
		db[i] = 20 * math.Log10(mag/norm)
	}
	return db
}

// PeakBin returns the index of the strongest bin.
func PeakBin(db []float64) int {
	best := -1
	for i, v := range db {
		if best < 0 || v > db[best] {
			best = i
		}
	}
	return best
}

// BinFrequency maps a DC-centred bin index to an offset in Hz.
func BinFrequency(bin, size int, sampleRate float64) float64 {
	return float64(bin-size/2) * sampleRate / float64(size)
}

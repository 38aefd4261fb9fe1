// Package dsp holds the signal helpers around the transmit path: a test
// tone source, decoding of the interleaved int8 wire format, and a spectrum
// analyzer used for monitoring and verification.
package dsp

// WireFullScale is the int8 magnitude of a unit sample on the wire.
const WireFullScale = 127

// DecodeInt8 turns interleaved signed 8-bit I/Q bytes back into complex
// samples scaled to [-1, 1]. It decodes min(len(dst), len(src)/2) samples
// and returns that count.
func DecodeInt8(dst []complex64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		re := float32(int8(src[2*i])) / WireFullScale
		im := float32(int8(src[2*i+1])) / WireFullScale
		dst[i] = complex(re, im)
	}
	return n
}

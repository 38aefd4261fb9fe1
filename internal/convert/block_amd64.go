//go:build amd64 && !purego

package convert

import "golang.org/x/sys/cpu"

var hasSIMD = cpu.X86.HasSSE2

// Block converts the largest multiple of BlockSize samples with the SSE2
// kernel and hands the remainder to Scalar. Output is bit-identical to
// Scalar, out-of-range components included: both truncate to int32 and keep
// the low byte.
func Block(dst []byte, src []complex64) {
	dst = dst[:2*len(src)]
	n := len(src) &^ (BlockSize - 1)
	if n == 0 || !hasSIMD {
		Scalar(dst, src)
		return
	}
	convertSSE2(&dst[0], &src[0], n)
	Scalar(dst[2*n:], src[n:])
}

// convertSSE2 converts n samples; n is a positive multiple of BlockSize.
//
//go:noescape
func convertSSE2(dst *byte, src *complex64, n int)

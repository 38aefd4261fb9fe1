//go:build !amd64 || purego

package convert

// Without a vector kernel Select never picks the block strategy; Block stays
// available by name as an unrolled loop.
const hasSIMD = false

// Block converts the largest multiple of BlockSize samples with an unrolled
// loop and hands the remainder to Scalar. Output is bit-identical to Scalar.
func Block(dst []byte, src []complex64) {
	n := len(src) &^ (BlockSize - 1)
	blocks(dst[:2*n], src[:n])
	Scalar(dst[2*n:], src[n:])
}

func blocks(dst []byte, src []complex64) {
	for i := 0; i+BlockSize <= len(src); i += BlockSize {
		in := src[i : i+BlockSize : i+BlockSize]
		out := dst[2*i : 2*i+2*BlockSize : 2*i+2*BlockSize]

		out[0] = quantize(real(in[0]))
		out[1] = quantize(imag(in[0]))
		out[2] = quantize(real(in[1]))
		out[3] = quantize(imag(in[1]))
		out[4] = quantize(real(in[2]))
		out[5] = quantize(imag(in[2]))
		out[6] = quantize(real(in[3]))
		out[7] = quantize(imag(in[3]))
		out[8] = quantize(real(in[4]))
		out[9] = quantize(imag(in[4]))
		out[10] = quantize(real(in[5]))
		out[11] = quantize(imag(in[5]))
		out[12] = quantize(real(in[6]))
		out[13] = quantize(imag(in[6]))
		out[14] = quantize(real(in[7]))
		out[15] = quantize(imag(in[7]))
	}
}

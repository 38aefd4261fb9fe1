// Package convert turns complex64 baseband samples into the transmitter's
// interleaved signed 8-bit I/Q wire format.
package convert

import (
	"fmt"
	"strings"
)

// FullScale maps a nominal [-1, 1] component onto the int8 range.
const FullScale float32 = 127

// BlockSize is the number of complex samples handled per iteration of the
// block path: 16 float32 components in, one 16-byte vector out.
const BlockSize = 8

// Func writes 2*len(src) bytes into dst as I,Q,I,Q... Components are scaled
// by FullScale and truncated toward zero. Inputs outside [-1, 1] are not
// clamped.
type Func func(dst []byte, src []complex64)

// Strategy is a named conversion implementation.
type Strategy struct {
	Name    string
	Convert Func
}

var (
	scalarStrategy = Strategy{Name: "scalar", Convert: Scalar}
	blockStrategy  = Strategy{Name: "block", Convert: Block}
)

// Select returns the block strategy when the CPU runs its vector kernel and
// the scalar strategy otherwise.
func Select() Strategy {
	if hasSIMD {
		return blockStrategy
	}
	return scalarStrategy
}

// Lookup returns the strategy with the given name. An empty name selects
// automatically.
func Lookup(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Select(), nil
	case scalarStrategy.Name:
		return scalarStrategy, nil
	case blockStrategy.Name:
		return blockStrategy, nil
	default:
		return Strategy{}, fmt.Errorf("unknown converter %q", name)
	}
}

func quantize(v float32) byte {
	return byte(int8(int32(v * FullScale)))
}

// Scalar converts one component at a time.
func Scalar(dst []byte, src []complex64) {
	dst = dst[:2*len(src)]
	for i, s := range src {
		dst[2*i] = quantize(real(s))
		dst[2*i+1] = quantize(imag(s))
	}
}

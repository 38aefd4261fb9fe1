package convert

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
)

func randomSamples(r *rand.Rand, n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(r.Float32()*2-1, r.Float32()*2-1)
	}
	return out
}

func TestScalarKnownValues(t *testing.T) {
	in := []complex64{
		complex(1, -1),
		complex(0.5, -0.5),
		complex(0, 0),
		complex(0.999, -0.999),
		complex(0.0078, -0.0079), // |x*127| < 1 truncates to zero
	}
	want := []int8{127, -127, 63, -63, 0, 0, 126, -126, 0, -1}
	out := make([]byte, 2*len(in))
	Scalar(out, in)
	for i, w := range want {
		if int8(out[i]) != w {
			t.Fatalf("index %d: got %d want %d", i, int8(out[i]), w)
		}
	}
}

func TestStrategiesAreBitIdentical(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 7, 8, 9, 15, 16, 17, 63, 512, 1031} {
		in := randomSamples(r, n)
		scalar := make([]byte, 2*n)
		block := make([]byte, 2*n)
		Scalar(scalar, in)
		Block(block, in)
		if !bytes.Equal(scalar, block) {
			t.Fatalf("n=%d: block output differs from scalar", n)
		}
		if n > 1 {
			// Unaligned source and destination.
			Scalar(scalar[2:], in[1:])
			Block(block[2:], in[1:])
			if !bytes.Equal(scalar, block) {
				t.Fatalf("n=%d offset 1: block output differs from scalar", n)
			}
		}
	}
}

func TestBlockWrapsOutOfRangeLikeScalar(t *testing.T) {
	in := make([]complex64, 2*BlockSize+3)
	for i := range in {
		v := float32(i-len(in)/2) * 0.37
		in[i] = complex(v, -1.5*v)
	}
	in[0] = complex(2, -3)    // 254 and -381 wrap
	in[1] = complex(1.5, 300) // 190 wraps, 38100 keeps its low byte
	scalar := make([]byte, 2*len(in))
	block := make([]byte, 2*len(in))
	Scalar(scalar, in)
	Block(block, in)
	if !bytes.Equal(scalar, block) {
		t.Fatalf("out-of-range handling differs:\nscalar %v\nblock  %v", scalar, block)
	}
	if int8(scalar[0]) != -2 || int8(scalar[2]) != -66 {
		t.Fatalf("expected wrapped int8 values, got %d %d", int8(scalar[0]), int8(scalar[2]))
	}
}

func TestSelectFollowsVectorSupport(t *testing.T) {
	want := scalarStrategy.Name
	if hasSIMD {
		want = blockStrategy.Name
	}
	if got := Select().Name; got != want {
		t.Fatalf("Select picked %q, want %q", got, want)
	}
}

func TestBlockLeavesTrailingBytesAlone(t *testing.T) {
	in := randomSamples(rand.New(rand.NewSource(3)), 11)
	out := bytes.Repeat([]byte{0xaa}, 2*len(in)+4)
	Block(out, in)
	for _, b := range out[2*len(in):] {
		if b != 0xaa {
			t.Fatalf("converter wrote past 2*len(src)")
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"scalar", "block", "", "auto", " Block "} {
		s, err := Lookup(name)
		if err != nil {
			t.Fatalf("lookup %q: %v", name, err)
		}
		if s.Convert == nil {
			t.Fatalf("lookup %q returned no converter", name)
		}
	}
	if _, err := Lookup("avx512"); err == nil {
		t.Fatalf("expected error for unknown converter")
	}
}

func FuzzStrategiesAgree(f *testing.F) {
	f.Add([]byte{0, 0, 128, 63, 0, 0, 128, 191})
	f.Add(bytes.Repeat([]byte{0x3f, 0x00, 0x00, 0x3f}, 40))
	f.Fuzz(func(t *testing.T, raw []byte) {
		n := len(raw) / 8
		in := make([]complex64, n)
		for i := range in {
			re := math.Float32frombits(binary.LittleEndian.Uint32(raw[8*i:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(raw[8*i+4:]))
			if !finite(re) || !finite(im) {
				t.Skip()
			}
			in[i] = complex(re, im)
		}
		scalar := make([]byte, 2*n)
		block := make([]byte, 2*n)
		Scalar(scalar, in)
		Block(block, in)
		if !bytes.Equal(scalar, block) {
			t.Fatalf("strategies disagree for %v", in)
		}
	})
}

func finite(v float32) bool { return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) }

func BenchmarkScalar(b *testing.B) { benchConvert(b, Scalar) }
func BenchmarkBlock(b *testing.B)  { benchConvert(b, Block) }

func benchConvert(b *testing.B, fn Func) {
	in := randomSamples(rand.New(rand.NewSource(1)), 131072)
	out := make([]byte, 2*len(in))
	b.SetBytes(int64(len(out)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fn(out, in)
	}
}

package dsp

import (
	"math"

	"hz.tools/rf"
	"hz.tools/sdr"
)

// Tone is an endless complex exponential at a fixed offset from the carrier.
// It implements sdr.Reader so it can stand in for a capture file.
type Tone struct {
	rate      uint
	amplitude float32
	phase     float64
	step      float64
}

// NewTone builds a tone at offset from DC sampled at rate. Amplitude is
// relative to full scale and clamped to [0, 1].
func NewTone(offset rf.Hz, rate uint, amplitude float64) *Tone {
	amplitude = math.Max(0, math.Min(1, amplitude))
	var step float64
	if rate > 0 {
		step = 2 * math.Pi * float64(offset) / float64(rate)
	}
	return &Tone{rate: rate, amplitude: float32(amplitude), step: step}
}

// Read fills samples with the next stretch of the tone.
func (t *Tone) Read(samples sdr.Samples) (int, error) {
	buf, ok := samples.(sdr.SamplesC64)
	if !ok {
		return 0, sdr.ErrSampleFormatMismatch
	}
	for i := range buf {
		sin, cos := math.Sincos(t.phase)
		buf[i] = complex(t.amplitude*float32(cos), t.amplitude*float32(sin))
		t.phase = math.Mod(t.phase+t.step, 2*math.Pi)
	}
	return len(buf), nil
}

func (t *Tone) SampleFormat() sdr.SampleFormat { return sdr.SampleFormatC64 }

func (t *Tone) SampleRate() uint { return t.rate }

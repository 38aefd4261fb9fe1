// Package device defines the narrow control surface the transmit sink needs
// from a radio, together with a simulated transfer engine and, behind the
// hackrf build tag, a libhackrf-backed implementation.
package device

import (
	"errors"
	"io"
	"math"

	"hz.tools/rf"
)

var (
	// ErrTransferDone is returned by a TxCallback to ask the transfer engine
	// to stop calling back.
	ErrTransferDone = errors.New("device: transfer done")
	// ErrNotAttached reports an operation on a closed or absent device.
	ErrNotAttached = errors.New("device: not attached")
	// ErrBusy reports a StartTX while a transfer is already running.
	ErrBusy = errors.New("device: transmit already active")
	// ErrUnsupported reports a backend not compiled into this binary.
	ErrUnsupported = errors.New("device: backend not supported in this build")
)

// TxCallback fills buf with the next block of wire-format samples. It runs on
// the transfer engine's goroutine and must not block for long.
type TxCallback func(buf []byte) error

// Transmitter is what the streaming bridge depends on.
type Transmitter interface {
	Attached() bool
	StartTX(cb TxCallback) error
	StopTX() error
	IsStreaming() bool
	SetTXVGAGain(gain uint32) error
}

// Tuner carries the pass-through radio parameters.
type Tuner interface {
	SetCenterFreq(freq rf.Hz) (rf.Hz, error)
	CenterFreq() rf.Hz
	FreqRange() Range
	SetFreqCorr(ppm float64) (float64, error)
	FreqCorr() float64

	SetSampleRate(rate float64) (float64, error)
	SampleRate() float64
	SampleRates() Range

	SetBandwidth(bw float64) (float64, error)
	Bandwidth() float64
	BandwidthRange() []float64

	SetAmpGain(gain float64) (float64, error)
	AmpGain() float64
	AmpGainRange() Range
	SetGainMode(automatic bool) bool
	GainMode() bool

	SetBias(on bool) error
	Bias() bool

	Antennas() []string
	SetAntenna(name string) string
	Antenna() string
}

// Device is a transmitter with its tuning controls.
type Device interface {
	Transmitter
	Tuner
	io.Closer
}

// Range is a closed interval with an optional step.
type Range struct {
	Start float64
	Stop  float64
	Step  float64
}

// Clip clamps v into the range. With snap set, v is moved to the nearest
// step boundary.
func (r Range) Clip(v float64, snap bool) float64 {
	if v < r.Start {
		v = r.Start
	}
	if v > r.Stop {
		v = r.Stop
	}
	if snap && r.Step > 0 {
		v = r.Start + math.Round((v-r.Start)/r.Step)*r.Step
		if v > r.Stop {
			v = r.Stop
		}
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Start && v <= r.Stop }

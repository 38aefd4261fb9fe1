package sink

import (
	"fmt"

	"hz.tools/rf"

	"github.com/rjboer/txsink/internal/device"
)

// NumChannels returns the number of transmit channels.
func (s *Sink) NumChannels() int { return 1 }

func deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}

func (s *Sink) SetCenterFreq(freq rf.Hz) (rf.Hz, error) {
	f, err := s.dev.SetCenterFreq(freq)
	return f, deviceErr("set center frequency", err)
}

func (s *Sink) CenterFreq() rf.Hz { return s.dev.CenterFreq() }

func (s *Sink) FreqRange() device.Range { return s.dev.FreqRange() }

func (s *Sink) SetFreqCorr(ppm float64) (float64, error) {
	v, err := s.dev.SetFreqCorr(ppm)
	return v, deviceErr("set frequency correction", err)
}

func (s *Sink) FreqCorr() float64 { return s.dev.FreqCorr() }

func (s *Sink) SetSampleRate(rate float64) (float64, error) {
	v, err := s.dev.SetSampleRate(rate)
	return v, deviceErr("set sample rate", err)
}

func (s *Sink) SampleRates() device.Range { return s.dev.SampleRates() }

func (s *Sink) SetBandwidth(bw float64) (float64, error) {
	v, err := s.dev.SetBandwidth(bw)
	return v, deviceErr("set bandwidth", err)
}

func (s *Sink) Bandwidth() float64 { return s.dev.Bandwidth() }

func (s *Sink) BandwidthRange() []float64 { return s.dev.BandwidthRange() }

func (s *Sink) Antennas() []string { return s.dev.Antennas() }

func (s *Sink) SetAntenna(name string) string { return s.dev.SetAntenna(name) }

func (s *Sink) Antenna() string { return s.dev.Antenna() }

package sink

import "github.com/rjboer/txsink/internal/device"

// Gain stage names.
const (
	GainRF = "RF"
	GainIF = "IF"
)

// TX VGA range of the MAX2837, 1 dB steps.
var ifGainRange = device.Range{Start: 0, Stop: 47, Step: 1}

// GainNames lists the adjustable gain stages.
func (s *Sink) GainNames() []string { return []string{GainRF, GainIF} }

// GainRange returns the range of the named stage, or an empty range for an
// unknown name.
func (s *Sink) GainRange(name string) device.Range {
	switch name {
	case GainRF:
		return s.dev.AmpGainRange()
	case GainIF:
		return ifGainRange
	default:
		return device.Range{}
	}
}

// SetGain sets the RF amplifier gain (0 or 14 dB).
func (s *Sink) SetGain(gain float64) (float64, error) {
	g, err := s.dev.SetAmpGain(gain)
	if err != nil {
		return g, &GainError{Op: "set_amp_enable", Value: gain, Err: err}
	}
	return g, nil
}

// SetGainNamed sets the named stage; unknown names address the RF stage.
func (s *Sink) SetGainNamed(gain float64, name string) (float64, error) {
	if name == GainIF {
		return s.SetIFGain(gain)
	}
	return s.SetGain(gain)
}

// Gain returns the RF amplifier gain.
func (s *Sink) Gain() float64 { return s.dev.AmpGain() }

// GainNamed returns the gain of the named stage.
func (s *Sink) GainNamed(name string) float64 {
	if name == GainIF {
		s.gainMu.Lock()
		defer s.gainMu.Unlock()
		return s.vgaGain
	}
	return s.Gain()
}

// SetIFGain clips gain to the VGA range and applies it. The last applied
// value is returned; without an attached device nothing changes.
func (s *Sink) SetIFGain(gain float64) (float64, error) {
	s.gainMu.Lock()
	defer s.gainMu.Unlock()
	if !s.attached() {
		return s.vgaGain, nil
	}
	clipped := ifGainRange.Clip(gain, true)
	if err := s.dev.SetTXVGAGain(uint32(clipped)); err != nil {
		return s.vgaGain, &GainError{Op: "set_txvga_gain", Value: clipped, Err: err}
	}
	s.vgaGain = clipped
	return s.vgaGain, nil
}

// SetBBGain is accepted for interface parity; there is no baseband stage.
func (s *Sink) SetBBGain(float64) float64 { return 0 }

// SetGainMode requests automatic gain control and returns the effective mode.
func (s *Sink) SetGainMode(automatic bool) bool { return s.dev.SetGainMode(automatic) }

// GainMode reports whether automatic gain control is active.
func (s *Sink) GainMode() bool { return s.dev.GainMode() }

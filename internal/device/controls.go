package device

import (
	"fmt"
	"sync"

	"hz.tools/rf"
)

// Parameter limits of a HackRF One transmit path.
var (
	freqRange    = Range{Start: 1e6, Stop: 6e9}
	sampleRates  = Range{Start: 1e6, Stop: 20e6, Step: 1e6}
	ampGainRange = Range{Start: 0, Stop: 14, Step: 14}

	// MAX2837 baseband filter settings, ascending.
	basebandFilters = []float64{
		1.75e6, 2.5e6, 3.5e6, 5e6, 5.5e6, 6e6, 7e6, 8e6,
		9e6, 10e6, 12e6, 14e6, 15e6, 20e6, 24e6, 28e6,
	}
)

const txAntenna = "TX/RX"

// vendor is the raw register-level surface of a radio. Implementations only
// forward; validation and bookkeeping live in controls.
type vendor interface {
	setFreq(hz uint64) error
	setSampleRate(rate float64) error
	setBasebandFilterBandwidth(hz uint32) error
	setAmpEnable(on bool) error
	setAntennaEnable(on bool) error
}

// controls keeps the last applied tuning state and implements Tuner on top
// of a vendor. With no vendor attached, setters leave the state untouched.
type controls struct {
	mu          sync.Mutex
	hw          vendor
	centerFreq  rf.Hz
	freqCorr    float64
	sampleRate  float64
	bandwidth   float64
	requestedBW float64
	ampGain     float64
	bias        bool
}

func (c *controls) attach(hw vendor) {
	c.mu.Lock()
	c.hw = hw
	c.mu.Unlock()
}

func (c *controls) detach() { c.attach(nil) }

// BasebandFilter returns the widest filter setting not above bw, or the
// narrowest setting when bw is below all of them.
func BasebandFilter(bw float64) float64 {
	best := basebandFilters[0]
	for _, f := range basebandFilters {
		if f > bw {
			break
		}
		best = f
	}
	return best
}

func applyPPM(freq rf.Hz, ppm float64) uint64 {
	return uint64(float64(freq) * (1 + ppm*1e-6))
}

func (c *controls) SetCenterFreq(freq rf.Hz) (rf.Hz, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hw == nil {
		return c.centerFreq, nil
	}
	if err := c.hw.setFreq(applyPPM(freq, c.freqCorr)); err != nil {
		return c.centerFreq, fmt.Errorf("set frequency %v: %w", freq, err)
	}
	c.centerFreq = freq
	return c.centerFreq, nil
}

func (c *controls) CenterFreq() rf.Hz {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.centerFreq
}

func (c *controls) FreqRange() Range { return freqRange }

func (c *controls) SetFreqCorr(ppm float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hw == nil {
		return c.freqCorr, nil
	}
	if c.centerFreq != 0 {
		if err := c.hw.setFreq(applyPPM(c.centerFreq, ppm)); err != nil {
			return c.freqCorr, fmt.Errorf("apply frequency correction %g ppm: %w", ppm, err)
		}
	}
	c.freqCorr = ppm
	return c.freqCorr, nil
}

func (c *controls) FreqCorr() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freqCorr
}

func (c *controls) SetSampleRate(rate float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hw == nil {
		return c.sampleRate, nil
	}
	if err := c.hw.setSampleRate(rate); err != nil {
		return c.sampleRate, fmt.Errorf("set sample rate %.0f: %w", rate, err)
	}
	c.sampleRate = rate
	if c.requestedBW == 0 {
		if err := c.applyBandwidthLocked(0); err != nil {
			return c.sampleRate, err
		}
	}
	return c.sampleRate, nil
}

func (c *controls) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

func (c *controls) SampleRates() Range { return sampleRates }

// SetBandwidth programs the baseband filter. Zero selects 3/4 of the sample
// rate, which is also re-derived whenever the rate changes.
func (c *controls) SetBandwidth(bw float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hw == nil {
		return c.bandwidth, nil
	}
	if err := c.applyBandwidthLocked(bw); err != nil {
		return c.bandwidth, err
	}
	return c.bandwidth, nil
}

func (c *controls) applyBandwidthLocked(bw float64) error {
	target := bw
	if target == 0 {
		target = 0.75 * c.sampleRate
	}
	filter := BasebandFilter(target)
	if err := c.hw.setBasebandFilterBandwidth(uint32(filter)); err != nil {
		return fmt.Errorf("set baseband filter %.0f: %w", filter, err)
	}
	c.requestedBW = bw
	c.bandwidth = filter
	return nil
}

func (c *controls) Bandwidth() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bandwidth
}

func (c *controls) BandwidthRange() []float64 {
	return append([]float64(nil), basebandFilters...)
}

// SetAmpGain drives the 14 dB RF amplifier; the gain snaps to 0 or 14.
func (c *controls) SetAmpGain(gain float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hw == nil {
		return c.ampGain, nil
	}
	clipped := ampGainRange.Clip(gain, true)
	if err := c.hw.setAmpEnable(clipped == ampGainRange.Stop); err != nil {
		return c.ampGain, fmt.Errorf("set amp enable: %w", err)
	}
	c.ampGain = clipped
	return c.ampGain, nil
}

func (c *controls) AmpGain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ampGain
}

func (c *controls) AmpGainRange() Range { return ampGainRange }

// SetGainMode reports the effective mode; the transmit path has no AGC.
func (c *controls) SetGainMode(bool) bool { return false }

func (c *controls) GainMode() bool { return false }

func (c *controls) SetBias(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hw == nil {
		return ErrNotAttached
	}
	if err := c.hw.setAntennaEnable(on); err != nil {
		return fmt.Errorf("set antenna power: %w", err)
	}
	c.bias = on
	return nil
}

func (c *controls) Bias() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bias
}

func (c *controls) Antennas() []string { return []string{txAntenna} }

func (c *controls) SetAntenna(string) string { return txAntenna }

func (c *controls) Antenna() string { return txAntenna }

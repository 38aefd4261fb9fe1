package main

import (
	"sync/atomic"

	"github.com/rjboer/txsink/internal/dsp"
	"github.com/rjboer/txsink/internal/telemetry"
)

const (
	// spectrumSize is the block length of the monitoring FFT.
	spectrumSize = 1024
	// monitorEvery is the number of blocks between spectrum updates.
	monitorEvery = 16
)

// monitor publishes a spectrum to the hub every monitorEvery blocks. It is
// fed either the host samples before conversion or, on the simulated
// device, the int8 bytes the transfer engine actually pulled off the ring.
// A nil monitor ignores everything.
type monitor struct {
	hub     *telemetry.Hub
	spec    *dsp.Spectrum
	decoded []complex64
	center  float64
	rate    float64
	source  string
	blocks  atomic.Uint64
}

func newMonitor(hub *telemetry.Hub, center, rate float64, source string) *monitor {
	if hub == nil {
		return nil
	}
	return &monitor{
		hub:     hub,
		spec:    dsp.NewSpectrum(spectrumSize),
		decoded: make([]complex64, spectrumSize),
		center:  center,
		rate:    rate,
		source:  source,
	}
}

func (m *monitor) due() bool { return m.blocks.Add(1)%monitorEvery == 1 }

// samples is called from the producer with host samples.
func (m *monitor) samples(in []complex64) {
	if m == nil || len(in) < spectrumSize || !m.due() {
		return
	}
	m.publish(in[:spectrumSize])
}

// wire is called from the transfer engine with a transmitted buffer.
func (m *monitor) wire(buf []byte) {
	if m == nil || len(buf) < 2*spectrumSize || !m.due() {
		return
	}
	n := dsp.DecodeInt8(m.decoded, buf)
	m.publish(m.decoded[:n])
}

func (m *monitor) publish(block []complex64) {
	if bins := m.spec.Power(block, 1); bins != nil {
		m.hub.UpdateSpectrum(bins, m.center, m.rate, m.source)
	}
}

//go:build hackrf

package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"hz.tools/rf"
	"hz.tools/sdr"
	"hz.tools/sdr/hackrf"
)

// hackrfTransferSize is the fixed size of one libhackrf USB transfer.
const hackrfTransferSize = 16 * 32 * 512

// HackRF drives a HackRF One through libhackrf. libhackrf pulls samples
// from a pipe; a pump goroutine fills each transfer from the TxCallback, and
// the pipe handoff paces it at the device rate.
type HackRF struct {
	controls

	mu        sync.Mutex
	radio     *hackrf.Sdr
	vendor    *hackrfVendor
	tx        sdr.WriteCloser
	quit      chan struct{}
	done      chan struct{}
	streaming atomic.Bool
}

// OpenHackRF initializes libhackrf and opens the first device found.
func OpenHackRF() (Device, error) {
	if err := hackrf.Init(); err != nil {
		return nil, fmt.Errorf("init libhackrf: %w", err)
	}
	radio, err := hackrf.Open()
	if err != nil {
		_ = hackrf.Exit()
		return nil, fmt.Errorf("open hackrf: %w", err)
	}
	stages, err := radio.GetGainStages()
	if err != nil {
		_ = radio.Close()
		_ = hackrf.Exit()
		return nil, fmt.Errorf("read gain stages: %w", err)
	}
	byName := stages.Map()
	v := &hackrfVendor{radio: radio, amp: byName["Amp"], txvga: byName["TXVGA"]}
	if v.amp == nil || v.txvga == nil {
		_ = radio.Close()
		_ = hackrf.Exit()
		return nil, fmt.Errorf("hackrf: missing Amp or TXVGA gain stage")
	}

	h := &HackRF{radio: radio, vendor: v}
	h.controls.attach(v)
	return h, nil
}

func (h *HackRF) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.radio != nil
}

func (h *HackRF) IsStreaming() bool { return h.streaming.Load() }

func (h *HackRF) SetTXVGAGain(gain uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.radio == nil {
		return ErrNotAttached
	}
	return h.radio.SetGain(h.vendor.txvga, float32(gain))
}

// StartTX opens the transmit pipe and starts pumping buffers from cb into
// it. The pump stops once cb returns an error.
func (h *HackRF) StartTX(cb TxCallback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.radio == nil {
		return ErrNotAttached
	}
	if h.streaming.Load() {
		return ErrBusy
	}
	// A pump that ended on its own still holds the previous pipe.
	if err := h.stopLocked(); err != nil {
		return err
	}

	tx, err := h.radio.StartTx()
	if err != nil {
		return err
	}
	h.tx = tx
	h.quit = make(chan struct{})
	h.done = make(chan struct{})
	h.streaming.Store(true)
	go h.pump(cb, tx, h.quit, h.done)
	return nil
}

func (h *HackRF) pump(cb TxCallback, tx sdr.Writer, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer h.streaming.Store(false)

	samples := make(sdr.SamplesI8, hackrfTransferSize/2)
	buf := sdr.MustUnsafeSamplesAsBytes(samples)
	for {
		select {
		case <-quit:
			return
		default:
		}
		if err := cb(buf); err != nil {
			return
		}
		if _, err := tx.Write(samples); err != nil {
			return
		}
	}
}

func (h *HackRF) StopTX() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.radio == nil {
		return ErrNotAttached
	}
	return h.stopLocked()
}

// stopLocked closes the pipe, which unblocks a pending write and ends the
// libhackrf transfer, then waits for the pump to exit.
func (h *HackRF) stopLocked() error {
	var err error
	if h.tx != nil {
		err = h.tx.Close()
		h.tx = nil
	}
	if h.quit != nil {
		close(h.quit)
		<-h.done
		h.quit = nil
		h.done = nil
	}
	return err
}

// Close releases the device and libhackrf.
func (h *HackRF) Close() error {
	h.mu.Lock()
	radio := h.radio
	if radio == nil {
		h.mu.Unlock()
		return nil
	}
	_ = h.stopLocked()
	h.radio = nil
	h.mu.Unlock()
	h.controls.detach()

	err := radio.Close()
	if exitErr := hackrf.Exit(); err == nil {
		err = exitErr
	}
	return err
}

type hackrfVendor struct {
	radio *hackrf.Sdr
	amp   sdr.GainStage
	txvga sdr.GainStage
	rate  float64
}

func (v *hackrfVendor) setFreq(hz uint64) error { return v.radio.SetCenterFrequency(rf.Hz(hz)) }

func (v *hackrfVendor) setSampleRate(rate float64) error {
	if err := v.radio.SetSampleRate(uint(rate)); err != nil {
		return err
	}
	v.rate = rate
	return nil
}

// libhackrf programs the filter for 3/4 of the rate whenever the rate is
// set, and the binding has no separate filter call.
func (v *hackrfVendor) setBasebandFilterBandwidth(hz uint32) error {
	if float64(hz) == BasebandFilter(0.75*v.rate) {
		return nil
	}
	return fmt.Errorf("baseband filter %d Hz: %w", hz, ErrUnsupported)
}

func (v *hackrfVendor) setAmpEnable(on bool) error {
	var gain float32
	if on {
		gain = float32(ampGainRange.Stop)
	}
	return v.radio.SetGain(v.amp, gain)
}

// The binding has no antenna power call; only the power-on default (off)
// can be honored.
func (v *hackrfVendor) setAntennaEnable(on bool) error {
	if on {
		return fmt.Errorf("antenna power: %w", ErrUnsupported)
	}
	return nil
}

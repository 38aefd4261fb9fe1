package device

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTransferSize matches the libhackrf USB transfer length.
const DefaultTransferSize = 262144

// Op names a Mock operation that can be made to fail.
type Op string

const (
	OpStartTX     Op = "start_tx"
	OpStopTX      Op = "stop_tx"
	OpSetTXVGA    Op = "set_txvga_gain"
	OpSetFreq     Op = "set_freq"
	OpSetRate     Op = "set_sample_rate"
	OpSetFilter   Op = "set_baseband_filter_bandwidth"
	OpSetAmp      Op = "set_amp_enable"
	OpSetAntPower Op = "set_antenna_enable"
)

// MockConfig tunes the simulated transfer engine.
type MockConfig struct {
	// TransferSize is the number of bytes requested per callback.
	TransferSize int
	// Interval between callbacks. Zero derives it from the sample rate, so
	// one transfer lasts as long as its samples would on air.
	Interval time.Duration
	// Capture, when set, receives every buffer handed back by the callback
	// on the engine goroutine. The slice is reused after Capture returns.
	Capture func(buf []byte)
}

// Mock is an in-process radio. It keeps tuning state like a real device and
// runs a goroutine that requests transmit buffers at a steady pace.
type Mock struct {
	controls

	cfg MockConfig

	mu       sync.Mutex
	attached bool
	faults   map[Op]error
	txvga    uint32
	quit     chan struct{}
	done     chan struct{}

	streaming atomic.Bool
	transfers atomic.Uint64
}

// NewMock returns an attached mock device.
func NewMock(cfg MockConfig) *Mock {
	if cfg.TransferSize <= 0 {
		cfg.TransferSize = DefaultTransferSize
	}
	m := &Mock{
		cfg:      cfg,
		attached: true,
		faults:   make(map[Op]error),
	}
	m.controls.attach(mockVendor{m})
	return m
}

// Fail makes op return err until cleared with a nil error.
func (m *Mock) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

func (m *Mock) fault(op Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faults[op]
}

func (m *Mock) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

func (m *Mock) IsStreaming() bool { return m.streaming.Load() }

// Transfers returns the number of callbacks issued since creation.
func (m *Mock) Transfers() uint64 { return m.transfers.Load() }

// TXVGAGain returns the last gain accepted by SetTXVGAGain.
func (m *Mock) TXVGAGain() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txvga
}

func (m *Mock) SetTXVGAGain(gain uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return ErrNotAttached
	}
	if err := m.faults[OpSetTXVGA]; err != nil {
		return err
	}
	m.txvga = gain
	return nil
}

func (m *Mock) StartTX(cb TxCallback) error {
	interval := m.interval()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return ErrNotAttached
	}
	if err := m.faults[OpStartTX]; err != nil {
		return err
	}
	if m.streaming.Load() {
		return ErrBusy
	}
	m.joinLocked()

	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	m.streaming.Store(true)
	go m.run(cb, interval, m.quit, m.done)
	return nil
}

func (m *Mock) StopTX() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return ErrNotAttached
	}
	if err := m.faults[OpStopTX]; err != nil {
		return err
	}
	m.joinLocked()
	return nil
}

// Close stops any transfer and detaches the device.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.joinLocked()
	m.attached = false
	m.mu.Unlock()
	m.controls.detach()
	return nil
}

// joinLocked stops the engine goroutine, if any, and waits for it to exit.
func (m *Mock) joinLocked() {
	if m.quit == nil {
		return
	}
	close(m.quit)
	<-m.done
	m.quit = nil
	m.done = nil
}

func (m *Mock) interval() time.Duration {
	if m.cfg.Interval > 0 {
		return m.cfg.Interval
	}
	rate := m.controls.SampleRate()
	if rate <= 0 {
		return 10 * time.Millisecond
	}
	samples := float64(m.cfg.TransferSize / 2)
	return time.Duration(samples / rate * float64(time.Second))
}

func (m *Mock) run(cb TxCallback, interval time.Duration, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer m.streaming.Store(false)

	buf := make([]byte, m.cfg.TransferSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}
		err := cb(buf)
		m.transfers.Add(1)
		if err != nil {
			return
		}
		if m.cfg.Capture != nil {
			m.cfg.Capture(buf)
		}
	}
}

// mockVendor accepts every register write unless a fault is injected.
type mockVendor struct{ m *Mock }

func (v mockVendor) setFreq(uint64) error { return v.m.fault(OpSetFreq) }

func (v mockVendor) setSampleRate(float64) error { return v.m.fault(OpSetRate) }

func (v mockVendor) setBasebandFilterBandwidth(uint32) error { return v.m.fault(OpSetFilter) }

func (v mockVendor) setAmpEnable(bool) error { return v.m.fault(OpSetAmp) }

func (v mockVendor) setAntennaEnable(bool) error { return v.m.fault(OpSetAntPower) }

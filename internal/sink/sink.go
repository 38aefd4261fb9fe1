// Package sink bridges a pull-style sample producer to a transmitter whose
// transfer engine pulls fixed-size buffers from a callback.
//
// Work converts complex64 samples into a staging buffer and queues it on a
// bounded ring once full; the device callback pops queued buffers and sends
// silence when none is ready. A single mutex and condition variable guard
// the ring and the stopping flag.
package sink

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"hz.tools/rf"
	"hz.tools/sdr"

	"github.com/rjboer/txsink/internal/convert"
	"github.com/rjboer/txsink/internal/device"
	"github.com/rjboer/txsink/internal/logging"
	"github.com/rjboer/txsink/internal/ring"
)

const (
	// DefaultBufferLength is the size of one transfer buffer in bytes.
	DefaultBufferLength = 16 * 32 * 512
	// DefaultBufferCount is the ring capacity when no buffers arg is given.
	DefaultBufferCount = 15

	// silencePadding is the number of empty buffers queued behind the last
	// samples on Stop so the final transfer is not cut short.
	silencePadding = 5

	defaultIFGain = 16
)

// Stream signature: one complex input, no outputs.
const (
	InputStreams  = 1
	OutputStreams = 0
)

// Option customizes a Sink at construction.
type Option func(*options)

type options struct {
	bufferLength int
	converter    convert.Strategy
	logger       logging.Logger
}

// WithBufferLength overrides the per-buffer size in bytes. It must be a
// positive even number.
func WithBufferLength(n int) Option {
	return func(o *options) { o.bufferLength = n }
}

// WithConverter forces a conversion strategy instead of probing the CPU.
func WithConverter(s convert.Strategy) Option {
	return func(o *options) { o.converter = s }
}

// WithLogger sets the logger; defaults to logging.Default().
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Sink is a transmit sink for one device.
//
// Work must be called from a single goroutine and never concurrently with
// Start or Stop. The device callback may run at any time in between.
type Sink struct {
	dev      device.Device
	log      logging.Logger
	convert  convert.Func
	strategy string
	bufLen   int

	mu       sync.Mutex
	cond     *sync.Cond
	ring     *ring.Buffer
	state    State
	stopping bool
	drained  bool
	closed   bool
	events   EventLogger

	// Owned by the producer side.
	staging []byte
	used    int

	gainMu  sync.Mutex
	vgaGain float64

	queued    atomic.Uint64
	sent      atomic.Uint64
	underruns atomic.Uint64
	overruns  atomic.Uint64
}

// New builds a sink around dev. args is a device argument string; the
// recognized keys are buffers (ring capacity) and bias_tx ("1" powers the
// antenna port). The device is tuned to the middle of its frequency range,
// the lowest sample rate, automatic bandwidth, amplifier off and IF gain 16.
func New(dev device.Device, args string, opts ...Option) (*Sink, error) {
	if dev == nil {
		return nil, ErrDeviceNotReady
	}
	o := options{bufferLength: DefaultBufferLength}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if o.converter.Convert == nil {
		o.converter = convert.Select()
	}
	if o.bufferLength <= 0 || o.bufferLength%2 != 0 {
		return nil, fmt.Errorf("buffer length %d must be a positive even number", o.bufferLength)
	}

	params := ParseArgs(args)
	count := 0
	if v, ok := params["buffers"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse buffers %q: %w", v, err)
		}
		count = n
	}
	if count <= 0 {
		count = DefaultBufferCount
	}

	s := &Sink{
		dev:      dev,
		log:      o.logger.With(logging.F("subsystem", "sink")),
		convert:  o.converter.Convert,
		strategy: o.converter.Name,
		bufLen:   o.bufferLength,
	}
	s.cond = sync.NewCond(&s.mu)

	if count != DefaultBufferCount {
		s.log.Info("using non-default ring size",
			logging.F("buffers", count), logging.F("buffer_bytes", o.bufferLength))
	}

	if err := s.applyDefaults(params); err != nil {
		return nil, err
	}

	rb, err := ring.New(count, o.bufferLength)
	if err != nil {
		return nil, fmt.Errorf("allocate transfer ring: %w", err)
	}
	s.ring = rb
	s.staging = make([]byte, o.bufferLength)

	s.log.Debug("sink ready", logging.F("converter", s.strategy))
	return s, nil
}

func (s *Sink) applyDefaults(params map[string]string) error {
	fr := s.dev.FreqRange()
	if _, err := s.SetCenterFreq(rf.Hz((fr.Start + fr.Stop) / 2)); err != nil {
		return err
	}
	if _, err := s.SetSampleRate(s.dev.SampleRates().Start); err != nil {
		return err
	}
	if _, err := s.SetBandwidth(0); err != nil {
		return err
	}
	// Amplifier off by default; it can damage a connected front end.
	if _, err := s.SetGain(0); err != nil {
		return err
	}
	if _, err := s.SetIFGain(defaultIFGain); err != nil {
		return err
	}
	if v, ok := params["bias_tx"]; ok {
		if err := s.dev.SetBias(v == "1"); err != nil {
			return fmt.Errorf("%w: set bias: %w", ErrDevice, err)
		}
	}
	return nil
}

// Converter names the conversion strategy in use.
func (s *Sink) Converter() string { return s.strategy }

// BufferLength returns the size of one transfer buffer in bytes.
func (s *Sink) BufferLength() int { return s.bufLen }

// SetEventLogger routes underrun and overrun diagnostics to l.
func (s *Sink) SetEventLogger(l EventLogger) {
	s.mu.Lock()
	s.events = l
	s.mu.Unlock()
}

func (s *Sink) attached() bool { return s.dev.Attached() }

// Start puts the device into transmit mode with the sink's callback. A
// second Start while streaming fails with device.ErrBusy and leaves the
// staged samples and state untouched.
func (s *Sink) Start() error {
	if !s.attached() {
		return ErrDeviceNotReady
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == Streaming || s.dev.IsStreaming() {
		s.mu.Unlock()
		return fmt.Errorf("%w: start TX streaming: %w", ErrDevice, device.ErrBusy)
	}
	prev := s.state
	s.stopping = false
	s.drained = false
	s.used = 0
	s.state = Streaming
	s.mu.Unlock()

	if err := s.dev.StartTX(s.transmit); err != nil {
		s.setState(prev)
		s.log.Error("failed to start TX streaming", logging.F("err", err))
		return fmt.Errorf("%w: start TX streaming: %w", ErrDevice, err)
	}
	s.log.Info("TX streaming started", logging.F("buffers", s.ring.Cap()), logging.F("buffer_bytes", s.bufLen))
	return nil
}

// Stop flushes the partially filled staging buffer, queues trailing
// silence, waits for the device to drain the ring, and leaves transmit
// mode. It blocks for as long as the device keeps streaming.
func (s *Sink) Stop() error {
	if !s.attached() {
		return ErrDeviceNotReady
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = Stopping

	s.waitForRoomLocked()
	clear(s.staging[s.used:])
	s.pushLocked(s.staging)
	s.used = 0

	clear(s.staging)
	for i := 0; i < silencePadding; i++ {
		s.waitForRoomLocked()
		s.pushLocked(s.staging)
	}

	s.stopping = true

	// The device can only drop its streaming flag after the callback has
	// returned, so the terminal handoff also ends the wait.
	for s.dev.IsStreaming() && !s.drained {
		s.cond.Wait()
	}
	s.mu.Unlock()

	err := s.dev.StopTX()
	s.setState(Idle)
	if err != nil {
		s.log.Error("failed to stop TX streaming", logging.F("err", err))
		return fmt.Errorf("%w: stop TX streaming: %w", ErrDevice, err)
	}
	s.log.Info("TX streaming stopped",
		logging.F("buffers_sent", s.sent.Load()), logging.F("underruns", s.underruns.Load()))
	return nil
}

// Work consumes up to one buffer's worth of samples and returns how many
// were taken. It blocks while the ring is full. A return of 0 for a
// non-empty batch means nothing was consumed and the call must be repeated.
func (s *Sink) Work(in []complex64) int {
	n, _ := s.work(in)
	return n
}

func (s *Sink) work(in []complex64) (int, error) {
	if len(in) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	s.waitForRoomLocked()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	remaining := (s.bufLen - s.used) / 2
	count := min(len(in), remaining)
	prev := s.used
	s.convert(s.staging[s.used:s.used+2*count], in[:count])
	s.used += 2 * count
	if count < remaining {
		return count, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.used = prev
		return 0, ErrClosed
	}
	if !s.pushLocked(s.staging) {
		// Unreachable while the room wait above holds; kept as a guard.
		events := s.events
		s.mu.Unlock()
		s.used = prev
		s.overruns.Add(1)
		s.log.Debug("overrun, batch not consumed", logging.F("samples", len(in)))
		emit(events, "warn", "TX: ring full, batch dropped")
		return 0, ErrOverrun
	}
	s.mu.Unlock()
	s.used = 0
	return count, nil
}

// Write queues every sample in samples, blocking as needed. Only complex64
// samples are accepted.
func (s *Sink) Write(samples sdr.Samples) (int, error) {
	in, ok := samples.(sdr.SamplesC64)
	if !ok {
		return 0, sdr.ErrSampleFormatMismatch
	}
	written := 0
	for written < len(in) {
		n, err := s.work(in[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// SampleFormat reports the accepted input format.
func (s *Sink) SampleFormat() sdr.SampleFormat { return sdr.SampleFormatC64 }

// SampleRate returns the device sample rate in samples per second.
func (s *Sink) SampleRate() uint { return uint(s.dev.SampleRate()) }

// transmit is the device callback. It never blocks on the producer, and
// diagnostics are emitted only after the lock is released.
func (s *Sink) transmit(buf []byte) error {
	s.mu.Lock()
	if s.ring.PopFront(buf) {
		s.sent.Add(1)
		s.cond.Broadcast()
		s.mu.Unlock()
		return nil
	}

	clear(buf)
	if s.stopping {
		s.drained = true
		s.cond.Broadcast()
		s.mu.Unlock()
		return device.ErrTransferDone
	}
	events := s.events
	s.mu.Unlock()

	s.underruns.Add(1)
	s.log.Debug("underrun, sending silence")
	emit(events, "warn", "TX: underrun, sending silence")
	return nil
}

func (s *Sink) waitForRoomLocked() {
	for !s.closed && !s.ring.HasRoom() {
		s.cond.Wait()
	}
}

func (s *Sink) pushLocked(buf []byte) bool {
	if !s.ring.PushBack(buf) {
		return false
	}
	s.queued.Add(1)
	return true
}

func emit(l EventLogger, level, msg string) {
	if l != nil {
		l.LogEvent(level, msg)
	}
}

func (s *Sink) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the pipeline counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		State:        s.state,
		Buffers:      s.ring.Cap(),
		BufferLength: s.bufLen,
		Queued:       s.ring.Len(),
	}
	s.mu.Unlock()
	st.BuffersQueued = s.queued.Load()
	st.BuffersSent = s.sent.Load()
	st.Underruns = s.underruns.Load()
	st.Overruns = s.overruns.Load()
	return st
}

// Close releases the ring. Blocked producers return ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ring.Release()
	s.cond.Broadcast()
	return nil
}

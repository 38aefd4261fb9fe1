package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hz.tools/rf"
)

func TestRangeClip(t *testing.T) {
	r := Range{Start: 0, Stop: 14, Step: 14}
	cases := []struct {
		in   float64
		snap bool
		want float64
	}{
		{-3, true, 0},
		{6.9, true, 0},
		{7, true, 14},
		{20, true, 14},
		{6.9, false, 6.9},
	}
	for _, tc := range cases {
		if got := r.Clip(tc.in, tc.snap); got != tc.want {
			t.Fatalf("Clip(%v, %v) = %v, want %v", tc.in, tc.snap, got, tc.want)
		}
	}
}

func TestBasebandFilter(t *testing.T) {
	cases := map[float64]float64{
		0:      1.75e6,
		1.75e6: 1.75e6,
		2.4e6:  1.75e6,
		7.5e6:  7e6,
		15e6:   15e6,
		100e6:  28e6,
	}
	for in, want := range cases {
		if got := BasebandFilter(in); got != want {
			t.Fatalf("BasebandFilter(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSampleRateDrivesAutoBandwidth(t *testing.T) {
	m := NewMock(MockConfig{})
	if _, err := m.SetSampleRate(10e6); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if bw := m.Bandwidth(); bw != 7e6 {
		t.Fatalf("expected auto bandwidth 7 MHz, got %v", bw)
	}

	if bw, err := m.SetBandwidth(2.5e6); err != nil || bw != 2.5e6 {
		t.Fatalf("explicit bandwidth: got %v, %v", bw, err)
	}
	if _, err := m.SetSampleRate(20e6); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if bw := m.Bandwidth(); bw != 2.5e6 {
		t.Fatalf("explicit bandwidth must survive rate change, got %v", bw)
	}
}

func TestAmpGainSnaps(t *testing.T) {
	m := NewMock(MockConfig{})
	if g, _ := m.SetAmpGain(9); g != 14 {
		t.Fatalf("expected 14, got %v", g)
	}
	if g, _ := m.SetAmpGain(3); g != 0 {
		t.Fatalf("expected 0, got %v", g)
	}
}

func TestFaultLeavesStateUnchanged(t *testing.T) {
	m := NewMock(MockConfig{})
	if _, err := m.SetCenterFreq(rf.Hz(433.92e6)); err != nil {
		t.Fatalf("set freq: %v", err)
	}
	boom := errors.New("usb stall")
	m.Fail(OpSetFreq, boom)
	got, err := m.SetCenterFreq(rf.Hz(915e6))
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected fault, got %v", err)
	}
	if got != rf.Hz(433.92e6) || m.CenterFreq() != rf.Hz(433.92e6) {
		t.Fatalf("failed set changed frequency to %v", got)
	}
}

func TestClosedMockIsDetached(t *testing.T) {
	m := NewMock(MockConfig{})
	_ = m.Close()
	if m.Attached() {
		t.Fatalf("closed mock still attached")
	}
	if err := m.StartTX(func([]byte) error { return nil }); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("expected ErrNotAttached, got %v", err)
	}
	if err := m.SetBias(true); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("expected ErrNotAttached for bias, got %v", err)
	}
}

func TestEngineStopsOnTransferDone(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var captured int
	m := NewMock(MockConfig{
		TransferSize: 64,
		Interval:     time.Millisecond,
		Capture: func(buf []byte) {
			mu.Lock()
			captured++
			mu.Unlock()
		},
	})
	err := m.StartTX(func(buf []byte) error {
		if calls.Add(1) == 3 {
			return ErrTransferDone
		}
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.IsStreaming() {
		if time.Now().After(deadline) {
			t.Fatalf("engine did not stop after ErrTransferDone")
		}
		time.Sleep(time.Millisecond)
	}
	if err := m.StopTX(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if calls.Load() != 3 || m.Transfers() != 3 {
		t.Fatalf("expected 3 callbacks, got %d", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if captured != 2 {
		t.Fatalf("terminal buffer must not be captured, got %d captures", captured)
	}
}

func TestStartWhileStreamingIsBusy(t *testing.T) {
	m := NewMock(MockConfig{TransferSize: 16, Interval: time.Millisecond})
	noop := func([]byte) error { return nil }
	if err := m.StartTX(noop); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Close()
	if err := m.StartTX(noop); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := m.StopTX(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.IsStreaming() {
		t.Fatalf("still streaming after StopTX")
	}
}

func TestIntervalFollowsSampleRate(t *testing.T) {
	m := NewMock(MockConfig{TransferSize: 2000})
	if _, err := m.SetSampleRate(1e6); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if got := m.interval(); got != time.Millisecond {
		t.Fatalf("expected 1ms per 1000 samples at 1 Msps, got %v", got)
	}
}

func TestOpenHackRFWithoutTag(t *testing.T) {
	dev, err := OpenHackRF()
	if err == nil {
		_ = dev.Close()
		t.Skip("built with hackrf support")
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Logf("hackrf open failed: %v", err)
	}
}

package sink

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotReady is returned when no device is attached.
	ErrDeviceNotReady = errors.New("sink: device not ready")
	// ErrDevice wraps failures reported by the device.
	ErrDevice = errors.New("sink: device error")
	// ErrOverrun reports a full buffer that could not be queued. The batch
	// was not consumed and may be retried.
	ErrOverrun = errors.New("sink: ring buffer overrun")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sink: closed")
)

// GainError reports a gain stage the device refused to apply.
type GainError struct {
	Op    string
	Value float64
	Err   error
}

func (e *GainError) Error() string {
	return fmt.Sprintf("%s(%g): %v", e.Op, e.Value, e.Err)
}

func (e *GainError) Unwrap() []error { return []error{ErrDevice, e.Err} }

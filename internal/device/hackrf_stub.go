//go:build !hackrf

package device

// OpenHackRF is unavailable without the hackrf build tag, which links
// against libhackrf through cgo.
func OpenHackRF() (Device, error) { return nil, ErrUnsupported }

//go:build !linux

package gpio

import "errors"

// ErrUnsupported is returned off Linux, where there is no GPIO character device.
var ErrUnsupported = errors.New("gpio: character device requires linux")

// RealReader stands in for the Linux reader so the daemon still builds on a
// development machine.
type RealReader struct{}

// NewRealReader always fails with ErrUnsupported.
func NewRealReader(chip string, pinRotary, pinButton int) (*RealReader, error) {
	return nil, ErrUnsupported
}

// Read implements Reader.
func (*RealReader) Read() (bool, bool, error) {
	return false, false, ErrUnsupported
}

// Close implements Reader.
func (*RealReader) Close() error { return nil }

package gpio

import "errors"

// Sample is one scripted reading of both lines (true = high).
type Sample struct {
	Rotary bool
	Button bool
}

// Resting and active knob levels. The encoder idles low and pulses high per
// detent; the button is pulled up and reads low while held.
var (
	Idle    = Sample{Rotary: false, Button: true}
	Pressed = Sample{Rotary: false, Button: false}
	Detent  = Sample{Rotary: true, Button: true}
)

var errNoSamples = errors.New("fake reader has no samples")

// FakeReader replays Samples, one per Read. Once the script runs out the last
// sample is held, the way a knob nobody touches keeps its level.
type FakeReader struct {
	Samples []Sample
	// ReadError, if set, fails every Read.
	ReadError error
	Closed    bool

	next int
}

// NewFakeReader creates a FakeReader replaying samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read implements Reader.
func (f *FakeReader) Read() (bool, bool, error) {
	switch {
	case f.ReadError != nil:
		return false, false, f.ReadError
	case len(f.Samples) == 0:
		return false, false, errNoSamples
	}

	s := f.Samples[min(f.next, len(f.Samples)-1)]
	f.next++
	return s.Rotary, s.Button, nil
}

// Close implements Reader.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script and reopens the reader.
func (f *FakeReader) Reset() {
	f.next = 0
	f.Closed = false
}

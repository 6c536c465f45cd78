// Package gpio reads the two knob lines: the rotary encoder pulse and the
// push button. On Linux the lines come from the GPIO character device; tests
// script them with FakeReader.
package gpio

// Reader reads the raw levels of the knob lines.
type Reader interface {
	// Read returns the raw levels (true = high) of the rotary and button lines.
	// The button is pulled up, so a pressed button reads low.
	Read() (rotary bool, button bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Default line offsets (BCM numbering).
const (
	DefaultChip      = "gpiochip0"
	DefaultPinRotary = 4 // encoder CLK
	DefaultPinButton = 2 // encoder SW
)

//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	rotary *gpiocdev.Line
	button *gpiocdev.Line
}

// NewRealReader requests the rotary and button lines on the named chip.
func NewRealReader(chipName string, pinRotary, pinButton int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	// The encoder board drives CLK itself, so no bias.
	rotary, err := chip.RequestLine(pinRotary, gpiocdev.AsInput, gpiocdev.WithConsumer("sleep-machine"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request rotary pin %d: %w", pinRotary, err)
	}

	button, err := chip.RequestLine(pinButton, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer("sleep-machine"))
	if err != nil {
		rotary.Close()
		chip.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pinButton, err)
	}

	return &RealReader{
		chip:   chip,
		rotary: rotary,
		button: button,
	}, nil
}

// Read returns the raw levels of both lines.
func (r *RealReader) Read() (bool, bool, error) {
	rotary, err := r.rotary.Value()
	if err != nil {
		return false, false, fmt.Errorf("read rotary pin: %w", err)
	}

	button, err := r.button.Value()
	if err != nil {
		return false, false, fmt.Errorf("read button pin: %w", err)
	}

	return rotary == 1, button == 1, nil
}

// Close releases GPIO resources.
// BCM 0-8 boot as inputs with pull-up, so both lines are put back that way
// before they are released.
func (r *RealReader) Close() error {
	var errs []error

	for name, line := range map[string]*gpiocdev.Line{"rotary": r.rotary, "button": r.button} {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

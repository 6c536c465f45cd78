package heater

import (
	"context"
	"sync"
)

// Fake is an in-memory Heater for tests.
type Fake struct {
	mu     sync.Mutex
	on     bool
	levels []int
	powers []bool

	// PowerErr, if set, is returned by SetPower without changing state.
	PowerErr error
	// TempErr, if set, is returned by SetTemperature.
	TempErr error
}

// NewFake returns a Fake that is off.
func NewFake() *Fake {
	return &Fake{}
}

// IsOn implements Heater.
func (f *Fake) IsOn(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on, nil
}

// SetPower implements Heater.
func (f *Fake) SetPower(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powers = append(f.powers, on)
	if f.PowerErr != nil {
		return f.PowerErr
	}
	f.on = on
	return nil
}

// SetTemperature implements Heater.
func (f *Fake) SetTemperature(_ context.Context, level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	return f.TempErr
}

// SetOn forces the power state without recording a call.
func (f *Fake) SetOn(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = on
}

// Powers returns every SetPower argument in order.
func (f *Fake) Powers() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.powers...)
}

// Levels returns every SetTemperature argument in order.
func (f *Fake) Levels() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.levels...)
}

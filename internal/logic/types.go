// Package logic contains the pure decision logic of the sleep machine: edge
// sampling, click classification, wake time scheduling and the event types the
// state machine emits.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Line identifies one of the two digital inputs.
type Line string

const (
	LineRotary Line = "ROTARY"
	LineButton Line = "BUTTON"
)

// Direction is the direction of a level change.
type Direction string

const (
	Rising  Direction = "RISING"
	Falling Direction = "FALLING"
)

// Edge is a level change observed between two consecutive samples.
type Edge struct {
	Line      Line
	Direction Direction
	Time      time.Time
}

// IsRotaryPulse reports whether e is the leading edge of a detent pulse.
// The rotary output is active-high.
func (e Edge) IsRotaryPulse() bool {
	return e.Line == LineRotary && e.Direction == Rising
}

// IsButtonPress reports whether e is a button press.
// The button is pulled up, so a press pulls the line low.
func (e Edge) IsButtonPress() bool {
	return e.Line == LineButton && e.Direction == Falling
}

// Input represents a single sample of raw line levels (true = high).
type Input struct {
	Rotary bool
	Button bool
	Time   time.Time
}

// EdgeCounts tracks the number of qualifying edges since startup.
type EdgeCounts struct {
	RotaryPulses  int
	ButtonPresses int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EdgeCounts
}

// Mode is the authoritative phase of the device.
type Mode string

const (
	ModeIdle       Mode = "IDLE"
	ModeWhiteNoise Mode = "WHITE_NOISE"
	ModeAlarm      Mode = "ALARM"
)

// AdjustDirection selects which way a rotary detent moves the wake time.
type AdjustDirection string

const (
	Forward  AdjustDirection = "FORWARD"
	Backward AdjustDirection = "BACKWARD"
)

// Toggle returns the opposite direction.
func (d AdjustDirection) Toggle() AdjustDirection {
	if d == Backward {
		return Forward
	}
	return Backward
}

// EventType names a state machine outcome published to observers.
type EventType string

const (
	EventReady        EventType = "READY"
	EventAmbientOn    EventType = "AMBIENT_ON"
	EventAmbientOff   EventType = "AMBIENT_OFF"
	EventAlarmFired   EventType = "ALARM_FIRED"
	EventAlarmStopped EventType = "ALARM_STOPPED"
	EventAdjusted     EventType = "ADJUSTED"
	EventDirection    EventType = "DIRECTION"
	EventLockedOut    EventType = "LOCKED_OUT"
	EventHeaterOn     EventType = "HEATER_ON"
	EventHeaterOff    EventType = "HEATER_OFF"
)

// Event is emitted by the state machine after a transition.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Mode      Mode
	Direction AdjustDirection
	AlarmTime time.Time
}

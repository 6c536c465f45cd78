// Package mqtt publishes sleep machine events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sleep-machine/internal/logic"
)

// Topic carries state machine events.
const Topic = "home/bedroom/sleep-machine/events"

// TopicSystem carries lifecycle events (startup, shutdown, heartbeat, will).
const TopicSystem = "home/bedroom/sleep-machine/system"

// System event names.
const (
	SystemStartup     = "STARTUP"
	SystemShutdown    = "SHUTDOWN"
	SystemHeartbeat   = "HEARTBEAT"
	SystemReconnected = "RECONNECTED"
	SystemOffline     = "OFFLINE"
)

// Publisher publishes events. Errors are reported but never fatal to the caller.
type Publisher interface {
	Publish(event logic.Event) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // shutdown signal name
	// RawPayload, if set, is published as is (full status snapshots).
	RawPayload []byte
	Retained   bool
}

// Payload is the JSON body of a state machine event.
type Payload struct {
	SleepMachine EventPayload `json:"sleep_machine"`
}

// EventPayload describes one transition.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
	Direction string `json:"direction"`
	AlarmTime string `json:"alarm_time,omitempty"`
}

// FormatPayload encodes event. Times are UTC RFC 3339.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := EventPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Mode:      string(event.Mode),
		Direction: string(event.Direction),
	}
	if !event.AlarmTime.IsZero() {
		p.AlarmTime = event.AlarmTime.UTC().Format(time.RFC3339)
	}
	return json.Marshal(Payload{SleepMachine: p})
}

// SystemPayload is the JSON body of a lifecycle event without a snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner holds the lifecycle event fields.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes event, returning RawPayload when present.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(logic.Event) error { return nil }

// PublishSystem implements Publisher.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// IsConnected implements ConnectionStatus.
func (NopPublisher) IsConnected() bool { return false }

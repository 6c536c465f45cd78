package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner holds the status fields.
type StatusInner struct {
	Event           string         `json:"event,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Mode            string         `json:"mode"`
	Direction       string         `json:"direction"`
	AlarmTime       string         `json:"alarm_time,omitempty"`
	LastInteraction string         `json:"last_interaction,omitempty"`
	HeaterOn        bool           `json:"heater_on"`
	Locked          bool           `json:"locked"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	StartTime       string         `json:"start_time"`
	Timestamp       string         `json:"timestamp"`
	MQTT            MQTTStatus     `json:"mqtt"`
	Counts          CountsJSON     `json:"counts"`
	LastEvent       *LastEventJSON `json:"last_event,omitempty"`
	Network         *NetworkJSON   `json:"network,omitempty"`
	Config          ConfigJSON     `json:"config"`
}

// MQTTStatus reports the broker connection.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON holds counters since startup.
type CountsJSON struct {
	Sessions      int `json:"sessions"`
	Alarms        int `json:"alarms"`
	Clicks        int `json:"clicks"`
	IgnoredClicks int `json:"ignored_clicks"`
	RotaryPulses  int `json:"rotary_pulses"`
	ButtonPresses int `json:"button_presses"`
}

// LastEventJSON is the most recent state machine event.
type LastEventJSON struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// NetworkJSON is the JSON form of NetworkInfo.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON form of Config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	ClickWindowMs  int64  `json:"click_window_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker,omitempty"`
	HTTPAddr       string `json:"http_addr"`
	Speaker        string `json:"speaker,omitempty"`
	HeaterEnabled  bool   `json:"heater_enabled"`
	MorningEnabled bool   `json:"morning_enabled"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	mode := string(snap.State.Mode)
	if mode == "" {
		mode = "UNKNOWN"
	}

	inner := StatusInner{
		Mode:            mode,
		Direction:       string(snap.State.Adjust),
		AlarmTime:       formatTime(snap.State.AlarmTime),
		LastInteraction: formatTime(snap.State.LastInteraction),
		HeaterOn:        snap.State.HeaterOn,
		Locked:          snap.Locked,
		UptimeSeconds:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:       formatTime(snap.StartTime),
		Timestamp:       formatTime(snap.Now),
		MQTT:            MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Sessions:      snap.Counts.Sessions,
			Alarms:        snap.Counts.Alarms,
			Clicks:        snap.Counts.Clicks,
			IgnoredClicks: snap.Counts.Ignored,
			RotaryPulses:  snap.Edges.RotaryPulses,
			ButtonPresses: snap.Edges.ButtonPresses,
		},
		Config: ConfigJSON(snap.Config),
	}

	if snap.LastEvent != nil {
		inner.LastEvent = &LastEventJSON{
			Type:      string(snap.LastEvent.Type),
			Timestamp: formatTime(snap.LastEvent.Timestamp),
		}
	}
	if snap.Network != nil {
		n := NetworkJSON(*snap.Network)
		inner.Network = &n
	}

	return inner
}

// FormatJSON returns the indented status document served over HTTP.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact status document for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

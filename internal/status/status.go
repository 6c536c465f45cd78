// Package status keeps a concurrency-safe snapshot of the sleep machine for the
// HTTP status page, the live WebSocket feed and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sleep-machine/internal/device"
	"github.com/sweeney/sleep-machine/internal/logic"
)

// NetworkInfo is the host network state written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config is the configuration shown on the status page.
type Config struct {
	PollMs         int64
	ClickWindowMs  int64
	HeartbeatMs    int64
	Broker         string
	HTTPAddr       string
	Speaker        string
	HeaterEnabled  bool
	MorningEnabled bool
}

// Snapshot is a point-in-time copy of the machine state.
type Snapshot struct {
	State         device.State
	Counts        device.Counts
	Edges         logic.EdgeCounts
	Locked        bool
	LastEvent     *logic.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the time since startup.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the snapshot behind an RWMutex and notifies subscribers when
// it changes.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	subs map[chan struct{}]struct{}
}

// NewTracker creates a Tracker.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		subs: make(map[chan struct{}]struct{}),
	}
}

// Update stores the machine state. Called from the loop on every tick;
// subscribers are only notified when something changed.
func (t *Tracker) Update(state device.State, counts device.Counts, edges logic.EdgeCounts) {
	t.mu.Lock()
	changed := t.snap.State != state || t.snap.Counts != counts || t.snap.Edges != edges
	t.snap.State = state
	t.snap.Counts = counts
	t.snap.Edges = edges
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// RecordEvent stores the most recent event and the lock state at that moment.
func (t *Tracker) RecordEvent(e logic.Event, locked bool) {
	t.mu.Lock()
	t.snap.LastEvent = &e
	t.snap.Locked = locked
	t.mu.Unlock()

	t.notify()
}

// SetMQTTConnected sets the broker connection state.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	changed := t.snap.MQTTConnected != connected
	t.snap.MQTTConnected = connected
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a copy of the state with Now set to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// Subscribe returns a channel that receives a value after each change, and a
// function that ends the subscription. Notifications coalesce: a slow reader
// sees at most one pending signal.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		delete(t.subs, ch)
		t.mu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

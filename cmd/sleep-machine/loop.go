package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/sleep-machine/internal/device"
	"github.com/sweeney/sleep-machine/internal/gpio"
	"github.com/sweeney/sleep-machine/internal/lock"
	"github.com/sweeney/sleep-machine/internal/logger"
	"github.com/sweeney/sleep-machine/internal/logic"
	"github.com/sweeney/sleep-machine/internal/mqtt"
	"github.com/sweeney/sleep-machine/internal/speaker"
	"github.com/sweeney/sleep-machine/internal/status"
)

// shutdownTimeout bounds how long shutdown waits for background work and the
// speaker disconnect.
const shutdownTimeout = 5 * time.Second

type loopDeps struct {
	reader     gpio.Reader
	machine    *device.Machine
	locks      lock.Store
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	// speaker may be nil when no speaker is configured.
	speaker   speaker.Link
	heartbeat time.Duration
}

// runLoop announces readiness, then samples the knob on every tick until a
// signal arrives. The reader is closed before returning.
func runLoop(ctx context.Context, d loopDeps, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	sampler := logic.NewSampler(startTime)

	d.emit(ctx, startTime, d.machine.Ready(ctx, startTime))
	d.update(sampler)

	for {
		select {
		case s := <-sig:
			logger.InfoKV(ctx, "Shutting down", "signal", s)
			d.shutdown(ctx, now(), signalName(s))
			return nil

		case <-tick:
			t := now()
			rotary, button, err := d.reader.Read()
			if err != nil {
				logger.WarnKV(ctx, "GPIO read failed", "error", err)
				continue
			}

			edges := sampler.Process(logic.Input{Rotary: rotary, Button: button, Time: t})
			d.emit(ctx, t, d.machine.Step(ctx, t, edges))

			if !sampler.IsBaselined() {
				continue
			}

			if hb := sampler.CheckHeartbeat(t, d.heartbeat); hb != nil {
				d.publishHeartbeat(ctx, hb, sampler)
			}

			d.update(sampler)
		}
	}
}

// emit logs, publishes and records events. Publish failures never stop the loop.
func (d loopDeps) emit(ctx context.Context, t time.Time, events []logic.Event) {
	if len(events) == 0 {
		return
	}

	locked := d.locks.IsLocked(ctx, t)
	for _, e := range events {
		logger.InfoKV(ctx, "Event",
			"type", e.Type,
			"mode", e.Mode,
			"direction", e.Direction,
			"alarm", e.AlarmTime.Format("15:04"),
		)
		if err := d.publisher.Publish(e); err != nil {
			logger.WarnKV(ctx, "Publish failed", "event", e.Type, "error", err)
		}
		d.tracker.RecordEvent(e, locked)
	}
}

func (d loopDeps) update(sampler *logic.Sampler) {
	d.tracker.Update(d.machine.State(), d.machine.Counts(), sampler.Counts())
	d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
}

func (d loopDeps) publishHeartbeat(ctx context.Context, hb *logic.HeartbeatData, sampler *logic.Sampler) {
	rotary, button := sampler.Levels()
	kvs := []any{
		"uptime", hb.Uptime,
		"rotary_pulses", hb.Counts.RotaryPulses,
		"button_presses", hb.Counts.ButtonPresses,
		"rotary_high", rotary,
		"button_high", button,
		"mode", d.machine.State().Mode,
	}
	if b, ok := d.publisher.(interface{ Buffered() int }); ok {
		kvs = append(kvs, "mqtt_buffered", b.Buffered())
	}
	logger.InfoKV(ctx, "Heartbeat", kvs...)

	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	d.update(sampler)

	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  hb.Timestamp,
		Event:      mqtt.SystemHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, mqtt.SystemHeartbeat, ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		logger.WarnKV(ctx, "Heartbeat publish failed", "error", err)
	}
}

// shutdown releases everything in a fixed order: pending click and playback,
// then the speaker, then the input lines.
func (d loopDeps) shutdown(ctx context.Context, t time.Time, reason string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	d.machine.Shutdown(stopCtx)

	d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      mqtt.SystemShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.SystemShutdown, reason),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		logger.WarnKV(ctx, "Failed to publish shutdown event", "error", err)
	}

	if d.speaker != nil {
		if err := d.speaker.Disconnect(stopCtx); err != nil {
			logger.WarnKV(ctx, "Speaker disconnect failed", "error", err)
		}
	}

	if err := d.reader.Close(); err != nil {
		logger.WarnKV(ctx, "GPIO close failed", "error", err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sleep-machine/internal/config"
	"github.com/sweeney/sleep-machine/internal/device"
	"github.com/sweeney/sleep-machine/internal/gpio"
	"github.com/sweeney/sleep-machine/internal/heater"
	"github.com/sweeney/sleep-machine/internal/lock"
	"github.com/sweeney/sleep-machine/internal/logic"
	"github.com/sweeney/sleep-machine/internal/mqtt"
	"github.com/sweeney/sleep-machine/internal/playback"
	"github.com/sweeney/sleep-machine/internal/speaker"
	"github.com/sweeney/sleep-machine/internal/status"
)

// TestEnvVarNames pins the constants to what pi-helper writes to
// /run/pi-helper.env. If pi-helper renames them, update the constants.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status)
	assert.Empty(t, info.IP)
}

func TestFormatLevels(t *testing.T) {
	assert.Equal(t, "ROTARY: LOW, BUTTON: RELEASED", formatLevels(false, true))
	assert.Equal(t, "ROTARY: HIGH, BUTTON: PRESSED", formatLevels(true, false))
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestMachineConfigFromDefaults(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Validate(cfg))

	mc := machineConfig(cfg)

	assert.Equal(t, logic.Preset{Hour: 10, Minute: 0}, mc.Presets[logic.Friday])
	assert.Equal(t, logic.Window{MinHour: 4, MaxHour: 12}, mc.Window)
	assert.Equal(t, 15*time.Minute, mc.Step)
	assert.Equal(t, 300*time.Millisecond, mc.ClickWindow)
	assert.Equal(t, -45, mc.HeaterLevel)
	assert.Equal(t, "/usr/share/sleep-machine/alarm.mp3", mc.Sounds.Alarm)
	assert.Equal(t, "/usr/share/sleep-machine/tts", mc.Sounds.TTSDir)
	assert.Equal(t, "/usr/share/sleep-machine/tts/gmorn.mp3", mc.Sounds.Greeting)
	assert.Equal(t, "/tmp/morning.mp3", mc.Sounds.MorningFile)
}

func TestHeaterOptionsCarrySecrets(t *testing.T) {
	cfg := config.Default()
	cfg.ApplyEnv(func(key string) string {
		return map[string]string{
			config.EnvHeaterUsername: "sleeper@example.com",
			config.EnvHeaterPassword: "hunter2",
		}[key]
	})

	o := heaterOptions(cfg)
	assert.Equal(t, "sleeper@example.com", o.Username)
	assert.Equal(t, "hunter2", o.Password)
	assert.Equal(t, cfg.Heater.AppURL, o.AppURL)

	_, err := heater.NewClient(o, nil)
	require.NoError(t, err)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleep-machine.yaml")

	var out bytes.Buffer
	require.NoError(t, writeDefaultConfig(path, &out))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Presets, cfg.Presets)

	err = writeDefaultConfig(path, &out)
	require.ErrorIs(t, err, errConfigExists)
}

func TestConnectSpeakerWithoutAddress(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, connectSpeaker(context.Background(), cfg))
}

// --- runLoop tests ---

// start is a Monday evening, outside the adjust window and before the
// keep-warm hour used in loopConfig.
var start = time.Date(2024, time.June, 3, 22, 0, 0, 0, time.UTC)

const poll = 10 * time.Millisecond

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only runLoop's goroutine calls it.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// repeat returns n copies of sample.
func repeat(sample gpio.Sample, n int) []gpio.Sample {
	out := make([]gpio.Sample, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

func concat(parts ...[]gpio.Sample) []gpio.Sample {
	var out []gpio.Sample
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// doubleClick is two presses followed by enough quiet ticks to close the batch.
func doubleClick() []gpio.Sample {
	return concat(
		repeat(gpio.Idle, 2),
		repeat(gpio.Pressed, 2),
		repeat(gpio.Idle, 2),
		repeat(gpio.Pressed, 2),
		repeat(gpio.Idle, 40),
	)
}

// faultReader wraps a FakeReader and fails Read calls in [faultStart, faultEnd).
type faultReader struct {
	inner      *gpio.FakeReader
	call       int
	faultStart int
	faultEnd   int
}

func (r *faultReader) Read() (bool, bool, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return false, false, errors.New("gpio fault")
	}
	return r.inner.Read()
}

func (r *faultReader) Close() error { return r.inner.Close() }

// journal records the order of teardown calls across collaborators.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type journalPlayer struct {
	*playback.Fake
	j *journal
}

func (p journalPlayer) Stop() error {
	p.j.add("playback")
	return p.Fake.Stop()
}

type journalSpeaker struct {
	speaker.Fake
	j *journal
}

func (s *journalSpeaker) Disconnect(ctx context.Context) error {
	s.j.add("speaker")
	return s.Fake.Disconnect(ctx)
}

type journalReader struct {
	*gpio.FakeReader
	j *journal
}

func (r journalReader) Close() error {
	r.j.add("gpio")
	return r.FakeReader.Close()
}

func loopConfig() device.Config {
	var presets logic.Presets
	for i := range presets {
		presets[i] = logic.Preset{Hour: 8, Minute: 30}
	}
	return device.Config{
		Presets:            presets,
		DayShift:           3 * time.Hour,
		Window:             logic.Window{MinHour: 4, MaxHour: 12},
		Step:               15 * time.Minute,
		ClickWindow:        300 * time.Millisecond,
		InteractionTimeout: 5 * time.Minute,
		HeaterLevel:        -45,
		KeepWarmHour:       24,
		HeaterTimeout:      time.Second,
		HeaterRetry:        time.Minute,
		MorningTimeout:     time.Second,
		Sounds: device.Sounds{
			WhiteNoise:  "/sounds/noise.mp3",
			Alarm:       "/sounds/alarm.mp3",
			Greeting:    "/sounds/tts/gmorn.mp3",
			MorningFile: "/tmp/morning.mp3",
			TTSDir:      "/sounds/tts",
		},
	}
}

type loopHarness struct {
	deps    loopDeps
	player  *playback.Fake
	locks   *lock.MemoryStore
	pub     *mqtt.FakePublisher
	speaker *speaker.Fake
}

func newLoopHarness(reader gpio.Reader) *loopHarness {
	h := &loopHarness{
		player:  playback.NewFake(),
		locks:   lock.NewMemoryStore(),
		pub:     mqtt.NewFakePublisher(),
		speaker: &speaker.Fake{},
	}
	machine := device.New(loopConfig(), device.Deps{Player: h.player, Locks: h.locks},
		device.WithDispatcher(func(task func()) { task() }))
	h.deps = loopDeps{
		reader:     reader,
		machine:    machine,
		locks:      h.locks,
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    status.NewTracker(start, status.Config{PollMs: poll.Milliseconds()}),
		speaker:    h.speaker,
	}
	return h
}

// runRunLoop drives runLoop for nTicks and then delivers signal.
func runRunLoop(t *testing.T, d loopDeps, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), d, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after signal")
		return nil
	}
}

func TestRunLoopIdleOnlyAnnouncesReady(t *testing.T) {
	samples := repeat(gpio.Idle, 10)
	reader := gpio.NewFakeReader(samples)
	h := newLoopHarness(reader)

	err := runRunLoop(t, h.deps, fakeClock(start, poll), len(samples), syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, []logic.EventType{logic.EventReady}, h.pub.EventTypes())
	require.Len(t, h.pub.SystemEvents, 1)
	assert.Equal(t, mqtt.SystemShutdown, h.pub.SystemEvents[0].Event)
	assert.Equal(t, "SIGTERM", h.pub.SystemEvents[0].Reason)
	assert.True(t, h.pub.SystemEvents[0].Retained)
	assert.True(t, reader.Closed)
	assert.Equal(t, 1, h.speaker.Disconnects)

	assert.NotEmpty(t, h.player.Paths("play-blocking"))
}

func TestRunLoopDoubleClickStartsWhiteNoise(t *testing.T) {
	samples := doubleClick()
	reader := gpio.NewFakeReader(samples)
	h := newLoopHarness(reader)

	err := runRunLoop(t, h.deps, fakeClock(start, poll), len(samples), syscall.SIGINT)
	require.NoError(t, err)

	assert.Equal(t, []logic.EventType{logic.EventReady, logic.EventAmbientOn}, h.pub.EventTypes())
	assert.Equal(t, logic.ModeWhiteNoise, h.pub.Events[1].Mode)
	assert.Equal(t, "SIGINT", h.pub.SystemEvents[0].Reason)

	// Shutdown stops the white noise last started by the double click.
	assert.Contains(t, h.player.Paths("play"), "/sounds/noise.mp3")
	assert.Empty(t, h.player.Playing())

	snap := h.deps.tracker.Snapshot()
	assert.Equal(t, logic.ModeWhiteNoise, snap.State.Mode)
	assert.Equal(t, 2, snap.Edges.ButtonPresses)
	assert.Equal(t, 1, snap.Counts.Sessions)
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, logic.EventAmbientOn, snap.LastEvent.Type)
	assert.False(t, snap.Locked)
}

func TestRunLoopLockedOutIsRecorded(t *testing.T) {
	samples := doubleClick()
	reader := gpio.NewFakeReader(samples)
	h := newLoopHarness(reader)
	h.locks.Set(start.Add(-14 * time.Hour)) // fired at 08:00 the same day

	err := runRunLoop(t, h.deps, fakeClock(start.Add(-2*time.Hour), poll), len(samples), syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, []logic.EventType{logic.EventReady, logic.EventLockedOut}, h.pub.EventTypes())
	snap := h.deps.tracker.Snapshot()
	assert.True(t, snap.Locked)
	assert.Equal(t, logic.ModeIdle, snap.State.Mode)
}

func TestRunLoopShutdownOrder(t *testing.T) {
	j := &journal{}
	samples := concat(repeat(gpio.Idle, 2), repeat(gpio.Pressed, 2), repeat(gpio.Idle, 2))
	reader := journalReader{FakeReader: gpio.NewFakeReader(samples), j: j}
	h := newLoopHarness(reader)

	player := journalPlayer{Fake: h.player, j: j}
	link := &journalSpeaker{j: j}
	h.deps.machine = device.New(loopConfig(), device.Deps{Player: player, Locks: h.locks},
		device.WithDispatcher(func(task func()) { task() }))
	h.deps.speaker = link

	err := runRunLoop(t, h.deps, fakeClock(start, poll), len(samples), syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, []string{"playback", "speaker", "gpio"}, j.list())
	// The press was still waiting for its quiet window and is discarded.
	assert.False(t, h.deps.machine.ClickPending())
	assert.Equal(t, []logic.EventType{logic.EventReady}, h.pub.EventTypes())
	assert.Equal(t, 1, link.Disconnects)
}

func TestRunLoopWithoutSpeaker(t *testing.T) {
	reader := gpio.NewFakeReader(repeat(gpio.Idle, 3))
	h := newLoopHarness(reader)
	h.deps.speaker = nil

	err := runRunLoop(t, h.deps, fakeClock(start, poll), 3, syscall.SIGTERM)
	require.NoError(t, err)
	assert.True(t, reader.Closed)
}

func TestRunLoopSurvivesReadErrors(t *testing.T) {
	inner := gpio.NewFakeReader(doubleClick())
	// The first read establishes the baseline; the next five fail.
	reader := &faultReader{inner: inner, faultStart: 1, faultEnd: 6}
	h := newLoopHarness(reader)

	err := runRunLoop(t, h.deps, fakeClock(start, poll), len(inner.Samples)+5, syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, []logic.EventType{logic.EventReady, logic.EventAmbientOn}, h.pub.EventTypes())
	assert.True(t, inner.Closed)
}

func TestRunLoopPublishFailureDoesNotStopLoop(t *testing.T) {
	samples := doubleClick()
	reader := gpio.NewFakeReader(samples)
	h := newLoopHarness(reader)
	h.pub.PublishError = errors.New("broker down")

	err := runRunLoop(t, h.deps, fakeClock(start, poll), len(samples), syscall.SIGTERM)
	require.NoError(t, err)

	assert.Empty(t, h.pub.Events)
	snap := h.deps.tracker.Snapshot()
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, logic.EventAmbientOn, snap.LastEvent.Type)
	assert.Equal(t, logic.ModeWhiteNoise, snap.State.Mode)
}

func TestRunLoopHeartbeat(t *testing.T) {
	reader := gpio.NewFakeReader(repeat(gpio.Idle, 1))
	h := newLoopHarness(reader)
	h.deps.heartbeat = 100 * time.Millisecond

	// Ticks land at 10ms..250ms; heartbeats fire at 100ms and 200ms.
	err := runRunLoop(t, h.deps, fakeClock(start, poll), 25, syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, []string{mqtt.SystemHeartbeat, mqtt.SystemHeartbeat, mqtt.SystemShutdown}, h.pub.SystemEventNames())
	assert.False(t, h.pub.SystemEvents[0].Retained)
	assert.Contains(t, string(h.pub.SystemEvents[0].RawPayload), `"HEARTBEAT"`)
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	reader := gpio.NewFakeReader(repeat(gpio.Idle, 1))
	h := newLoopHarness(reader)

	err := runRunLoop(t, h.deps, fakeClock(start, time.Minute), 30, syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, []string{mqtt.SystemShutdown}, h.pub.SystemEventNames())
}

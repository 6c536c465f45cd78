// Package device is the sleep machine's mode state machine. A Machine is owned
// by the poll loop: every method except the background announcement tasks runs
// on the loop goroutine, so its state needs no locking.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/sleep-machine/internal/heater"
	"github.com/sweeney/sleep-machine/internal/lock"
	"github.com/sweeney/sleep-machine/internal/logger"
	"github.com/sweeney/sleep-machine/internal/logic"
	"github.com/sweeney/sleep-machine/internal/morning"
	"github.com/sweeney/sleep-machine/internal/playback"
)

// Config holds the timing and scheduling parameters of a Machine.
type Config struct {
	Presets            logic.Presets
	DayShift           time.Duration
	Window             logic.Window
	Step               time.Duration
	ClickWindow        time.Duration
	InteractionTimeout time.Duration

	HeaterLevel    int
	KeepWarmHour   int
	HeaterTimeout  time.Duration
	HeaterRetry    time.Duration
	MorningTimeout time.Duration

	Sounds Sounds
}

// Deps are the collaborators a Machine drives. Heater and Morning may be nil.
type Deps struct {
	Player  playback.Player
	Locks   lock.Store
	Heater  heater.Heater
	Morning morning.Announcer
}

// State is the device state aggregate.
type State struct {
	Mode            logic.Mode
	Adjust          logic.AdjustDirection
	AlarmTime       time.Time
	LastInteraction time.Time
	HeaterOn        bool
}

// Counts tracks transitions since startup.
type Counts struct {
	Sessions int
	Alarms   int
	Clicks   int
	Ignored  int
}

// Option customises a Machine.
type Option func(*Machine)

// WithDispatcher replaces the function used to run background tasks.
// Tests pass one that runs the task inline.
func WithDispatcher(dispatch func(task func())) Option {
	return func(m *Machine) { m.dispatch = dispatch }
}

// Machine is the mode state machine.
type Machine struct {
	cfg  Config
	deps Deps

	classifier *logic.Classifier
	state      State
	counts     Counts

	// prior is the interaction that preceded the click batch being accumulated.
	prior time.Time
	// heaterRetryAt holds off keep-warm attempts after a failure.
	heaterRetryAt time.Time

	dispatch func(task func())
	bg       context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an idle Machine. Call Ready before the first Step.
func New(cfg Config, deps Deps, opts ...Option) *Machine {
	m := &Machine{
		cfg:        cfg,
		deps:       deps,
		classifier: logic.NewClassifier(cfg.ClickWindow),
		state: State{
			Mode:   logic.ModeIdle,
			Adjust: logic.Forward,
		},
	}
	m.bg, m.bgCancel = context.WithCancel(context.Background())
	m.dispatch = func(task func()) {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			task()
		}()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state
}

// Counts returns transition counters.
func (m *Machine) Counts() Counts {
	return m.counts
}

// ClickPending reports whether a click batch is waiting for its quiet window.
func (m *Machine) ClickPending() bool {
	return m.classifier.Pending()
}

// Ready recomputes the default wake time and announces it. The announcement
// plays synchronously.
func (m *Machine) Ready(ctx context.Context, now time.Time) []logic.Event {
	m.state.AlarmTime = logic.DefaultFor(now, m.cfg.Presets, m.cfg.DayShift)
	m.state.LastInteraction = now
	m.prior = now

	logger.InfoKV(ctx, "Ready", "alarm", m.state.AlarmTime.Format("15:04"), "weekday", now.Weekday())

	for _, clip := range m.cfg.Sounds.ReadySequence(m.state.AlarmTime, now) {
		m.attempt(ctx, "announce ready", m.deps.Player.PlayBlocking(ctx, clip))
	}

	return []logic.Event{m.event(now, logic.EventReady)}
}

// Step advances the machine to now with the edges sampled on this tick and
// returns the resulting events.
func (m *Machine) Step(ctx context.Context, now time.Time, edges []logic.Edge) []logic.Event {
	var events []logic.Event

	events = append(events, m.keepWarm(ctx, now)...)

	if m.state.Mode == logic.ModeWhiteNoise && !now.Before(m.state.AlarmTime) {
		events = append(events, m.fireAlarm(ctx, now)...)
	}

	// A batch whose quiet window ends on this tick closes before this tick's
	// presses are counted.
	if click, ok := m.classifier.Poll(now); ok {
		events = append(events, m.onClick(ctx, click)...)
	}

	for _, e := range edges {
		switch {
		case e.IsButtonPress():
			events = append(events, m.onButton(ctx, e.Time)...)
		case e.IsRotaryPulse():
			events = append(events, m.onRotary(ctx, e.Time)...)
		}
	}

	return events
}

func (m *Machine) onButton(ctx context.Context, at time.Time) []logic.Event {
	if m.state.Mode == logic.ModeIdle && !m.classifier.Pending() {
		m.prior = m.state.LastInteraction
	}
	m.state.LastInteraction = at

	switch m.state.Mode {
	case logic.ModeWhiteNoise:
		m.classifier.Cancel()
		logger.Info(ctx, "Stopping white noise")
		m.attempt(ctx, "stop playback", m.deps.Player.Stop())
		m.state.Mode = logic.ModeIdle
		events := []logic.Event{m.event(at, logic.EventAmbientOff)}
		return append(events, m.heaterOff(ctx, at)...)

	case logic.ModeAlarm:
		m.classifier.Cancel()
		logger.Info(ctx, "Stopping alarm")
		m.attempt(ctx, "stop playback", m.deps.Player.Stop())
		m.announceMorning(ctx)
		m.state.Mode = logic.ModeIdle
		events := []logic.Event{m.event(at, logic.EventAlarmStopped)}
		return append(events, m.heaterOff(ctx, at)...)

	default:
		m.classifier.Press(at)
		logger.DebugKV(ctx, "Button press", "batch", m.classifier.Batch().Count)
		return nil
	}
}

func (m *Machine) onRotary(ctx context.Context, at time.Time) []logic.Event {
	if m.state.Mode != logic.ModeIdle {
		logger.DebugKV(ctx, "Rotary ignored", "mode", m.state.Mode)
		return nil
	}
	m.state.LastInteraction = at

	m.state.AlarmTime = logic.Adjust(m.state.AlarmTime, m.state.Adjust, m.cfg.Window, m.cfg.Step)
	logger.InfoKV(ctx, "Alarm adjusted", "alarm", m.state.AlarmTime.Format("15:04"), "direction", m.state.Adjust)

	m.announce(ctx, m.cfg.Sounds.TimeClip(m.state.AlarmTime))
	return []logic.Event{m.event(at, logic.EventAdjusted)}
}

func (m *Machine) onClick(ctx context.Context, click logic.Click) []logic.Event {
	if m.state.Mode != logic.ModeIdle {
		return nil
	}

	switch click.Kind {
	case logic.SingleClick:
		m.counts.Clicks++
		if click.OpenedAt.Sub(m.prior) >= m.cfg.InteractionTimeout {
			return m.Ready(ctx, click.At)
		}
		m.state.Adjust = m.state.Adjust.Toggle()
		logger.InfoKV(ctx, "Adjust direction toggled", "direction", m.state.Adjust)
		m.announce(ctx, m.cfg.Sounds.DirectionClip(m.state.Adjust == logic.Backward))
		return []logic.Event{m.event(click.At, logic.EventDirection)}

	case logic.DoubleClick:
		m.counts.Clicks++
		return m.startAmbient(ctx, click.At)

	default:
		m.counts.Ignored++
		logger.DebugKV(ctx, "Click batch ignored", "count", click.Count)
		return nil
	}
}

func (m *Machine) startAmbient(ctx context.Context, at time.Time) []logic.Event {
	if m.deps.Locks.IsLocked(ctx, at) {
		logger.Info(ctx, "White noise not allowed, alarm already fired today")
		m.announce(ctx, m.cfg.Sounds.NotAllowedClip())
		return []logic.Event{m.event(at, logic.EventLockedOut)}
	}

	logger.Info(ctx, "Playing white noise")
	m.attempt(ctx, "play white noise", m.deps.Player.Play(ctx, m.cfg.Sounds.WhiteNoise, true))

	var events []logic.Event
	if !m.heaterIsOn(ctx) {
		events = append(events, m.heaterOn(ctx, at)...)
	}

	m.state.AlarmTime = logic.RollIfPast(m.state.AlarmTime, at)
	m.state.Adjust = logic.Forward
	m.state.Mode = logic.ModeWhiteNoise
	m.counts.Sessions++

	logger.InfoKV(ctx, "White noise started", "alarm", m.state.AlarmTime.Format(time.DateTime))
	return append([]logic.Event{m.event(at, logic.EventAmbientOn)}, events...)
}

func (m *Machine) fireAlarm(ctx context.Context, now time.Time) []logic.Event {
	logger.InfoKV(ctx, "Alarm triggered", "alarm", m.state.AlarmTime.Format("15:04"))

	m.attempt(ctx, "stop playback", m.deps.Player.Stop())
	m.attempt(ctx, "play alarm", m.deps.Player.Play(ctx, m.cfg.Sounds.Alarm, true))
	m.attempt(ctx, "record alarm", m.deps.Locks.RecordFired(ctx, now))

	m.state.Mode = logic.ModeAlarm
	m.counts.Alarms++
	return []logic.Event{m.event(now, logic.EventAlarmFired)}
}

// keepWarm turns the heater back on from late morning onwards.
func (m *Machine) keepWarm(ctx context.Context, now time.Time) []logic.Event {
	if m.deps.Heater == nil || now.Hour() < m.cfg.KeepWarmHour || now.Before(m.heaterRetryAt) {
		return nil
	}
	if m.heaterIsOn(ctx) {
		return nil
	}

	logger.Info(ctx, "Keeping bed warm")
	events := m.heaterOn(ctx, now)
	if len(events) == 0 {
		m.heaterRetryAt = now.Add(m.cfg.HeaterRetry)
	}
	return events
}

func (m *Machine) heaterIsOn(ctx context.Context) bool {
	if m.deps.Heater == nil {
		return false
	}
	hctx, cancel := m.heaterContext(ctx)
	defer cancel()

	on, err := m.deps.Heater.IsOn(hctx)
	if !m.attempt(ctx, "heater status", err) {
		return m.state.HeaterOn
	}
	m.state.HeaterOn = on
	return on
}

func (m *Machine) heaterOn(ctx context.Context, at time.Time) []logic.Event {
	if m.deps.Heater == nil {
		return nil
	}
	hctx, cancel := m.heaterContext(ctx)
	defer cancel()

	if !m.attempt(ctx, "heater on", m.deps.Heater.SetPower(hctx, true)) {
		return nil
	}
	m.state.HeaterOn = true
	m.attempt(ctx, "heater temperature", m.deps.Heater.SetTemperature(hctx, m.cfg.HeaterLevel))

	return []logic.Event{m.event(at, logic.EventHeaterOn)}
}

func (m *Machine) heaterOff(ctx context.Context, at time.Time) []logic.Event {
	if m.deps.Heater == nil {
		return nil
	}
	hctx, cancel := m.heaterContext(ctx)
	defer cancel()

	if !m.attempt(ctx, "heater off", m.deps.Heater.SetPower(hctx, false)) {
		return nil
	}
	m.state.HeaterOn = false
	return []logic.Event{m.event(at, logic.EventHeaterOff)}
}

func (m *Machine) heaterContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.HeaterTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.HeaterTimeout)
}

// announce plays a feedback clip without blocking the loop.
func (m *Machine) announce(ctx context.Context, clip string) {
	m.background(ctx, func(ctx context.Context) {
		m.attempt(ctx, "announce", m.deps.Player.Play(ctx, clip, false))
	})
}

// announceMorning generates the morning announcement in the background and
// plays it, or the greeting when generation fails.
func (m *Machine) announceMorning(ctx context.Context) {
	sounds := m.cfg.Sounds
	gen := m.deps.Morning
	timeout := m.cfg.MorningTimeout

	m.background(ctx, func(ctx context.Context) {
		clip := sounds.Greeting
		if gen != nil {
			gctx, cancel := context.WithTimeout(ctx, timeout)
			err := gen.Generate(gctx, sounds.MorningFile)
			cancel()
			if m.attempt(ctx, "morning announcement", err) {
				clip = sounds.MorningFile
			}
		}
		if ctx.Err() != nil {
			return
		}
		m.attempt(ctx, "announce morning", m.deps.Player.Play(ctx, clip, false))
	})
}

// background runs task off the loop. Tasks see the caller's logger and are
// canceled by Shutdown.
func (m *Machine) background(ctx context.Context, task func(ctx context.Context)) {
	bctx := logger.ToContext(m.bg, logger.FromContext(ctx))
	m.dispatch(func() { task(bctx) })
}

// attempt logs a collaborator failure and reports whether the call succeeded.
func (m *Machine) attempt(ctx context.Context, op string, err error) bool {
	if err == nil {
		return true
	}
	logger.WarnKV(ctx, "Collaborator call failed", "op", op, "error", err)
	return false
}

func (m *Machine) event(at time.Time, typ logic.EventType) logic.Event {
	return logic.Event{
		Timestamp: at,
		Type:      typ,
		Mode:      m.state.Mode,
		Direction: m.state.Adjust,
		AlarmTime: m.state.AlarmTime,
	}
}

// Shutdown cancels any pending click batch and background task, then stops
// playback. It waits for background tasks until ctx is done.
func (m *Machine) Shutdown(ctx context.Context) {
	m.classifier.Cancel()
	m.bgCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn(ctx, "Background tasks still running at shutdown")
	}

	m.attempt(ctx, "stop playback", m.deps.Player.Stop())
}

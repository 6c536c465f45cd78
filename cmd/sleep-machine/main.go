// Command sleep-machine runs the bedside knob: white noise at night, an alarm
// in the morning and the bed heater in between.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/sleep-machine/internal/config"
	"github.com/sweeney/sleep-machine/internal/device"
	"github.com/sweeney/sleep-machine/internal/gpio"
	"github.com/sweeney/sleep-machine/internal/heater"
	"github.com/sweeney/sleep-machine/internal/lock"
	"github.com/sweeney/sleep-machine/internal/logger"
	"github.com/sweeney/sleep-machine/internal/morning"
	"github.com/sweeney/sleep-machine/internal/mqtt"
	"github.com/sweeney/sleep-machine/internal/playback"
	"github.com/sweeney/sleep-machine/internal/speaker"
	"github.com/sweeney/sleep-machine/internal/status"
	"github.com/sweeney/sleep-machine/internal/version"
	"github.com/sweeney/sleep-machine/internal/web"
)

// options are the command line flags.
type options struct {
	ConfigPath string
	LogLevel   string
	PrintState bool
}

var (
	opts options

	rootCmd = &cobra.Command{
		Use:   "sleep-machine",
		Short: "Run the bedside sleep machine.",
		Long: `Polls the rotary knob and drives white noise, the morning alarm and the bed heater.

A double click starts white noise until the alarm time, a single click flips the
adjust direction and each detent moves the alarm time by one step. Pressing the
button stops whatever is playing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file.",
		Long:  "Writes the built-in defaults as YAML to the --config path. Secrets are read from the environment and never written.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeDefaultConfig(opts.ConfigPath, cmd.OutOrStdout())
		},
	}
)

var errConfigExists = errors.New("configuration file already exists")

func main() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(initConfigCmd)

	ctx := logger.WithName(context.Background(), "sleep-machine")
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf(ctx, "fatal: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&opts.PrintState, "print-state", false, "print the knob line levels and exit")
}

func run(ctx context.Context, o options) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if o.LogLevel != "" {
		level = o.LogLevel
	}
	if lvl, ok := logger.ParseLogLevel(level); ok {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf(ctx, "Unknown log level %q, keeping %s", level, logger.Level())
	}

	gpioReader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.Rotary, cfg.GPIO.Button)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	if o.PrintState {
		defer gpioReader.Close()
		rotary, button, err := gpioReader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Println(formatLevels(rotary, button))
		return nil
	}

	deps := device.Deps{
		Player: playback.NewVLC(cfg.Sounds.Player),
		Locks:  lock.NewFileStore(cfg.Lock.File, cfg.Lock.ReleaseHour),
	}

	if cfg.Heater.Enabled {
		client, err := heater.NewClient(heaterOptions(cfg), &http.Client{Timeout: cfg.Heater.Timeout})
		if err != nil {
			logger.WarnKV(ctx, "Heater disabled", "error", err)
		} else {
			deps.Heater = client
		}
	}

	if cfg.Morning.Enabled {
		deps.Morning = newGenerator(cfg)
	} else {
		logger.Info(ctx, "Morning announcement disabled, the greeting clip will play instead")
	}

	link := connectSpeaker(ctx, cfg)
	if closer, ok := link.(io.Closer); ok {
		defer closer.Close()
	}

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		rp := mqtt.NewRealPublisher(ctx, cfg.MQTT.Broker, cfg.MQTT.ClientID)
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:         cfg.Poll.Milliseconds(),
		ClickWindowMs:  cfg.ClickWindow.Milliseconds(),
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
		Speaker:        cfg.Speaker.Address,
		HeaterEnabled:  deps.Heater != nil,
		MorningEnabled: deps.Morning != nil,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.SystemStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.SystemStartup, ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.WarnKV(ctx, "Failed to publish startup event", "error", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(ctx, cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorKV(ctx, "HTTP server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.InfoKV(ctx, "HTTP status server listening", "addr", cfg.HTTP.Addr)
	}

	machine := device.New(machineConfig(cfg), deps)

	logger.InfoKV(ctx, "Started",
		"version", version.Short(),
		"poll", cfg.Poll,
		"click_window", cfg.ClickWindow,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat,
	)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctx, loopDeps{
		reader:     gpioReader,
		machine:    machine,
		locks:      deps.Locks,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		speaker:    link,
		heartbeat:  cfg.Heartbeat,
	}, time.Now, ticker.C, sigCh)
}

// machineConfig maps the file settings onto the state machine.
func machineConfig(cfg *config.Config) device.Config {
	return device.Config{
		Presets:            cfg.WeeklyPresets(),
		DayShift:           cfg.DayShift,
		Window:             cfg.AdjustWindow(),
		Step:               cfg.Adjust.Step,
		ClickWindow:        cfg.ClickWindow,
		InteractionTimeout: cfg.InteractionTimeout,
		HeaterLevel:        cfg.Heater.Level,
		KeepWarmHour:       cfg.Heater.KeepWarmHour,
		HeaterTimeout:      cfg.Heater.Timeout,
		HeaterRetry:        cfg.Heater.Retry,
		MorningTimeout:     cfg.Morning.Timeout,
		Sounds: device.Sounds{
			WhiteNoise:  cfg.SoundPath(cfg.Sounds.WhiteNoise),
			Alarm:       cfg.SoundPath(cfg.Sounds.Alarm),
			Greeting:    cfg.TTSPath(cfg.Sounds.Greeting),
			MorningFile: cfg.SoundPath(cfg.Sounds.MorningFile),
			TTSDir:      cfg.SoundPath(cfg.Sounds.TTSDir),
		},
	}
}

func heaterOptions(cfg *config.Config) heater.Options {
	return heater.Options{
		AuthURL:      cfg.Heater.AuthURL,
		ClientURL:    cfg.Heater.ClientURL,
		AppURL:       cfg.Heater.AppURL,
		Username:     cfg.Heater.Username,
		Password:     cfg.Heater.Password,
		ClientID:     cfg.Heater.ClientID,
		ClientSecret: cfg.Heater.ClientSecret,
	}
}

func newGenerator(cfg *config.Config) *morning.Generator {
	client := &http.Client{Timeout: cfg.Morning.Timeout}
	return &morning.Generator{
		Weather: &morning.Wunderground{URL: cfg.Morning.WeatherURL, HTTP: client},
		Writer: &morning.Gemini{
			BaseURL: cfg.Morning.GeminiURL,
			Model:   cfg.Morning.GeminiModel,
			APIKey:  cfg.Morning.GeminiKey,
			HTTP:    client,
		},
		Speech: &morning.ElevenLabs{
			BaseURL: cfg.Morning.TTSURL,
			VoiceID: cfg.Morning.VoiceID,
			APIKey:  cfg.Morning.TTSKey,
			HTTP:    client,
		},
		FactsFile: cfg.SoundPath(cfg.Morning.FunFacts),
	}
}

// connectSpeaker asks BlueZ to bring the speaker up and waits for the audio
// sink to settle. It returns nil when no speaker is configured or the bus is
// unavailable; playback then goes to the default sink.
func connectSpeaker(ctx context.Context, cfg *config.Config) speaker.Link {
	if cfg.Speaker.Address == "" {
		return nil
	}

	ctx = logger.WithKV(ctx, "speaker", cfg.Speaker.Address)

	link, err := speaker.NewBlueZ(cfg.Speaker.Adapter, cfg.Speaker.Address)
	if err != nil {
		logger.WarnKV(ctx, "Speaker unavailable", "error", err)
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := link.Connect(connectCtx); err != nil {
		logger.WarnKV(ctx, "Speaker connect failed", "error", err)
		return link
	}

	logger.Info(ctx, "Speaker connected")

	select {
	case <-time.After(cfg.Speaker.Settle):
	case <-ctx.Done():
	}
	return link
}

// writeDefaultConfig refuses to overwrite an existing file.
func writeDefaultConfig(path string, out io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", errConfigExists, path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

func formatLevels(rotary, button bool) string {
	r := "LOW"
	if rotary {
		r = "HIGH"
	}
	b := "RELEASED"
	if !button {
		b = "PRESSED"
	}
	return fmt.Sprintf("ROTARY: %s, BUTTON: %s", r, b)
}

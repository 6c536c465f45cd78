package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/sleep-machine/internal/logic"
)

func noEnv(string) string { return "" }

// TestDefaultIsValid ensures the shipped defaults pass validation unchanged.
func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, Validate(cfg))
	require.Equal(t, 10*time.Millisecond, cfg.Poll)
	require.Equal(t, 300*time.Millisecond, cfg.ClickWindow)
	require.Equal(t, 21, cfg.Lock.ReleaseHour)
	require.Equal(t, logic.Preset{Hour: 10, Minute: 0}, cfg.WeeklyPresets()[logic.Friday])
	require.Equal(t, logic.Window{MinHour: 4, MaxHour: 12}, cfg.AdjustWindow())
}

// TestValidateRejects covers the malformed values Validate refuses.
func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"six presets":     func(c *Config) { c.Presets = c.Presets[:6] },
		"preset hour":     func(c *Config) { c.Presets[2] = []int{24, 0} },
		"preset minute":   func(c *Config) { c.Presets[2] = []int{8, 60} },
		"preset shape":    func(c *Config) { c.Presets[2] = []int{8} },
		"inverted window": func(c *Config) { c.Adjust.MinHour, c.Adjust.MaxHour = 12, 4 },
		"zero step":       func(c *Config) { c.Adjust.Step = 0 },
		"negative poll":   func(c *Config) { c.Poll = -time.Millisecond },
		"same pins":       func(c *Config) { c.GPIO.Button = c.GPIO.Rotary },
		"release hour":    func(c *Config) { c.Lock.ReleaseHour = 25 },
		"keep warm hour":  func(c *Config) { c.Heater.KeepWarmHour = -1 },
		"negative window": func(c *Config) { c.ClickWindow = -time.Second },
	}

	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}

	require.Error(t, Validate(nil))
}

// TestValidateFillsZeroValues checks that omitted values get defaults.
func TestValidateFillsZeroValues(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Poll = 0
	cfg.ClickWindow = 0
	cfg.Heater.Timeout = 0
	cfg.Sounds.Player = ""
	cfg.Lock.File = ""

	require.NoError(t, Validate(cfg))
	require.Equal(t, Default().Poll, cfg.Poll)
	require.Equal(t, Default().ClickWindow, cfg.ClickWindow)
	require.Equal(t, Default().Heater.Timeout, cfg.Heater.Timeout)
	require.Equal(t, "cvlc", cfg.Sounds.Player)
	require.Equal(t, Default().Lock.File, cfg.Lock.File)
}

// TestLoadMissingFileUsesDefaults verifies an absent file is not an error.
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Presets, cfg.Presets)
}

// TestLoadOverridesDefaults reads a partial YAML file.
func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	yamlText := `
poll: 20ms
presets:
  - [7, 0]
  - [7, 0]
  - [7, 15]
  - [7, 0]
  - [9, 45]
  - [10, 0]
  - [7, 30]
lock:
  file: /tmp/lock
sounds:
  dir: /srv/sounds
mqtt:
  broker: tcp://localhost:1883
`
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20*time.Millisecond, cfg.Poll)
	require.Equal(t, logic.Preset{Hour: 9, Minute: 45}, cfg.WeeklyPresets()[logic.Friday])
	require.Equal(t, "/tmp/lock", cfg.Lock.File)
	require.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	require.Equal(t, 300*time.Millisecond, cfg.ClickWindow)
	require.Equal(t, "/srv/sounds/alarm.mp3", cfg.SoundPath(cfg.Sounds.Alarm))
	require.Equal(t, "/srv/sounds/tts/ready.mp3", cfg.TTSPath("ready.mp3"))
	require.Equal(t, "/tmp/morning.mp3", cfg.SoundPath(cfg.Sounds.MorningFile))
}

// TestLoadRejectsBadYAML ensures decode errors surface.
func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll: [not a duration"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

// TestApplyEnv enables collaborators only when credentials are present.
func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ApplyEnv(noEnv)
	require.False(t, cfg.Heater.Enabled)
	require.False(t, cfg.Morning.Enabled)

	env := map[string]string{
		EnvHeaterUsername: "sleeper@example.com",
		EnvHeaterPassword: "hunter2",
		EnvTTSKey:         "tts-key",
		EnvGeminiKey:      "gemini-key",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	require.True(t, cfg.Heater.Enabled)
	require.True(t, cfg.Morning.Enabled)
	require.Equal(t, "gemini-key", cfg.Morning.GeminiKey)
}

// TestSaveLoadRoundtrip ensures settings persist without secrets.
func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := Default()
	cfg.Speaker.Address = "F8:0F:F9:BF:9C:E0"
	cfg.Heater.Password = "secret"
	require.NoError(t, Save(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Speaker.Address, loaded.Speaker.Address)
	require.Equal(t, cfg.Presets, loaded.Presets)
	require.Equal(t, cfg.Adjust, loaded.Adjust)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sleep-machine/internal/gpio"
	"github.com/sweeney/sleep-machine/internal/logic"
)

// Config is the top-level YAML configuration for the sleep-machine daemon.
type Config struct {
	GPIO               GPIOConfig    `yaml:"gpio"`
	Poll               time.Duration `yaml:"poll"`
	ClickWindow        time.Duration `yaml:"click_window"`
	InteractionTimeout time.Duration `yaml:"interaction_timeout"`
	DayShift           time.Duration `yaml:"day_shift"`
	Adjust             AdjustConfig  `yaml:"adjust"`
	// Presets holds the default wake time per weekday, Monday first, as [hour, minute].
	Presets   [][]int       `yaml:"presets"`
	Lock      LockConfig    `yaml:"lock"`
	Sounds    SoundsConfig  `yaml:"sounds"`
	Speaker   SpeakerConfig `yaml:"speaker"`
	Heater    HeaterConfig  `yaml:"heater"`
	Morning   MorningConfig `yaml:"morning"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	LogLevel  string        `yaml:"log_level"`
}

// GPIOConfig selects the chip and BCM line offsets.
type GPIOConfig struct {
	Chip   string `yaml:"chip"`
	Rotary int    `yaml:"rotary"`
	Button int    `yaml:"button"`
}

// AdjustConfig bounds manual wake time changes.
type AdjustConfig struct {
	Step    time.Duration `yaml:"step"`
	MinHour int           `yaml:"min_hour"`
	MaxHour int           `yaml:"max_hour"`
}

// LockConfig controls the once-a-day ambient lock.
type LockConfig struct {
	File        string `yaml:"file"`
	ReleaseHour int    `yaml:"release_hour"`
}

// SoundsConfig lists the audio assets. Relative names resolve against Dir.
type SoundsConfig struct {
	Dir         string `yaml:"dir"`
	WhiteNoise  string `yaml:"white_noise"`
	Alarm       string `yaml:"alarm"`
	TTSDir      string `yaml:"tts_dir"`
	Greeting    string `yaml:"greeting"`
	MorningFile string `yaml:"morning_file"`
	Player      string `yaml:"player"`
}

// SpeakerConfig identifies the Bluetooth speaker.
type SpeakerConfig struct {
	Address string        `yaml:"address"`
	Adapter string        `yaml:"adapter"`
	Settle  time.Duration `yaml:"settle"`
}

// HeaterConfig configures the bed heater API client.
type HeaterConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Level        int           `yaml:"level"`
	KeepWarmHour int           `yaml:"keep_warm_hour"`
	Timeout      time.Duration `yaml:"timeout"`
	Retry        time.Duration `yaml:"retry"`
	AuthURL      string        `yaml:"auth_url"`
	ClientURL    string        `yaml:"client_url"`
	AppURL       string        `yaml:"app_url"`
	Username     string        `yaml:"-"`
	Password     string        `yaml:"-"`
	ClientID     string        `yaml:"-"`
	ClientSecret string        `yaml:"-"`
}

// MorningConfig configures the generated wake-up announcement.
type MorningConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Timeout     time.Duration `yaml:"timeout"`
	WeatherURL  string        `yaml:"weather_url"`
	FunFacts    string        `yaml:"fun_facts"`
	GeminiURL   string        `yaml:"gemini_url"`
	GeminiModel string        `yaml:"gemini_model"`
	TTSURL      string        `yaml:"tts_url"`
	VoiceID     string        `yaml:"voice_id"`
	GeminiKey   string        `yaml:"-"`
	TTSKey      string        `yaml:"-"`
}

// MQTTConfig configures the event side channel. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

const (
	// DefaultConfigFilename is used when no --config flag is given.
	DefaultConfigFilename = "sleep-machine.yaml"

	// DefaultFilePermissions is used for files the daemon writes.
	DefaultFilePermissions = 0o600
)

var (
	errConfigIsNotSet  = errors.New("configuration is not set")
	errBadPoll         = errors.New("poll must be positive")
	errBadClickWindow  = errors.New("click_window must be positive")
	errBadPresetCount  = errors.New("presets must have 7 entries (Monday first)")
	errBadPreset       = errors.New("preset must be [hour, minute] with hour 0..23 and minute 0..59")
	errBadAdjustWindow = errors.New("adjust window must satisfy 0 <= min_hour <= max_hour <= 23")
	errBadAdjustStep   = errors.New("adjust step must be positive")
	errBadReleaseHour  = errors.New("lock release_hour must be 0..24")
	errBadKeepWarmHour = errors.New("heater keep_warm_hour must be 0..24")
	errBadPin          = errors.New("gpio line offsets must be non-negative and distinct")
)

// Default returns a fully populated Config.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Chip:   gpio.DefaultChip,
			Rotary: gpio.DefaultPinRotary,
			Button: gpio.DefaultPinButton,
		},
		Poll:               10 * time.Millisecond,
		ClickWindow:        300 * time.Millisecond,
		InteractionTimeout: 5 * time.Minute,
		DayShift:           3 * time.Hour,
		Adjust: AdjustConfig{
			Step:    15 * time.Minute,
			MinHour: 4,
			MaxHour: 12,
		},
		Presets: [][]int{
			{8, 30}, // Mon
			{8, 30}, // Tue
			{8, 30}, // Wed
			{8, 30}, // Thu
			{10, 0}, // Fri
			{10, 0}, // Sat
			{8, 30}, // Sun
		},
		Lock: LockConfig{
			File:        "/var/lib/sleep-machine/last-alarm",
			ReleaseHour: 21,
		},
		Sounds: SoundsConfig{
			Dir:         "/usr/share/sleep-machine",
			WhiteNoise:  "Aircraft Lavatory extended.mp3",
			Alarm:       "alarm.mp3",
			TTSDir:      "tts",
			Greeting:    "gmorn.mp3",
			MorningFile: "/tmp/morning.mp3",
			Player:      "cvlc",
		},
		Speaker: SpeakerConfig{
			Adapter: "hci0",
			Settle:  2 * time.Second,
		},
		Heater: HeaterConfig{
			Level:        -45,
			KeepWarmHour: 11,
			Timeout:      10 * time.Second,
			Retry:        time.Minute,
			AuthURL:      "https://auth-api.8slp.net",
			ClientURL:    "https://client-api.8slp.net",
			AppURL:       "https://app-api.8slp.net",
		},
		Morning: MorningConfig{
			Timeout:     90 * time.Second,
			WeatherURL:  "https://www.wunderground.com/weather/us/ut/pleasant-grove",
			FunFacts:    "funfacts.txt",
			GeminiURL:   "https://generativelanguage.googleapis.com/v1beta",
			GeminiModel: "gemini-2.5-flash",
			TTSURL:      "https://api.elevenlabs.io",
			VoiceID:     "CwhRBWXzGAHq8TQ4Fs17",
		},
		MQTT: MQTTConfig{
			ClientID: "sleep-machine",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

// Load reads configuration from path on top of Default, applies environment
// secrets and validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as YAML. Secrets are never written.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Environment variable names for secrets.
const (
	EnvHeaterUsername     = "EIGHTSLEEP_USERNAME"
	EnvHeaterPassword     = "EIGHTSLEEP_PASSWORD"
	EnvHeaterClientID     = "EIGHTSLEEP_CLIENT_ID"
	EnvHeaterClientSecret = "EIGHTSLEEP_CLIENT_SECRET"
	EnvGeminiKey          = "GEMINI_API_KEY"
	EnvTTSKey             = "ELEVENLABS_API_KEY"
)

// ApplyEnv fills secrets from the environment. The heater and the morning
// announcement are enabled when their credentials are present.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Heater.Username = getenv(EnvHeaterUsername)
	c.Heater.Password = getenv(EnvHeaterPassword)
	c.Heater.ClientID = getenv(EnvHeaterClientID)
	c.Heater.ClientSecret = getenv(EnvHeaterClientSecret)
	if c.Heater.Username != "" && c.Heater.Password != "" {
		c.Heater.Enabled = true
	}

	c.Morning.GeminiKey = getenv(EnvGeminiKey)
	c.Morning.TTSKey = getenv(EnvTTSKey)
	if c.Morning.TTSKey != "" {
		c.Morning.Enabled = true
	}
}

// Validate checks the settings and fills zero values with defaults.
func Validate(c *Config) error {
	if c == nil {
		return errConfigIsNotSet
	}

	def := Default()

	if c.Poll < 0 {
		return errBadPoll
	}
	if c.Poll == 0 {
		c.Poll = def.Poll
	}
	if c.ClickWindow < 0 {
		return errBadClickWindow
	}
	if c.ClickWindow == 0 {
		c.ClickWindow = def.ClickWindow
	}
	if c.InteractionTimeout <= 0 {
		c.InteractionTimeout = def.InteractionTimeout
	}
	if c.Heartbeat < 0 {
		c.Heartbeat = 0
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if c.GPIO.Rotary < 0 || c.GPIO.Button < 0 || c.GPIO.Rotary == c.GPIO.Button {
		return errBadPin
	}

	if c.Adjust.Step <= 0 {
		return errBadAdjustStep
	}
	if c.Adjust.MinHour < 0 || c.Adjust.MaxHour > 23 || c.Adjust.MinHour > c.Adjust.MaxHour {
		return errBadAdjustWindow
	}

	if len(c.Presets) != 7 {
		return fmt.Errorf("%w: got %d", errBadPresetCount, len(c.Presets))
	}
	for i, p := range c.Presets {
		if len(p) != 2 || p[0] < 0 || p[0] > 23 || p[1] < 0 || p[1] > 59 {
			return fmt.Errorf("%w: entry %d is %v", errBadPreset, i, p)
		}
	}

	if c.Lock.File == "" {
		c.Lock.File = def.Lock.File
	}
	if c.Lock.ReleaseHour < 0 || c.Lock.ReleaseHour > 24 {
		return errBadReleaseHour
	}
	if c.Heater.KeepWarmHour < 0 || c.Heater.KeepWarmHour > 24 {
		return errBadKeepWarmHour
	}
	if c.Heater.Timeout <= 0 {
		c.Heater.Timeout = def.Heater.Timeout
	}
	if c.Heater.Retry <= 0 {
		c.Heater.Retry = def.Heater.Retry
	}
	if c.Morning.Timeout <= 0 {
		c.Morning.Timeout = def.Morning.Timeout
	}
	if c.Sounds.Player == "" {
		c.Sounds.Player = def.Sounds.Player
	}
	if c.Speaker.Adapter == "" {
		c.Speaker.Adapter = def.Speaker.Adapter
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}

	return nil
}

// WeeklyPresets converts the validated preset table.
func (c *Config) WeeklyPresets() logic.Presets {
	var p logic.Presets
	for i := range p {
		p[i] = logic.Preset{Hour: c.Presets[i][0], Minute: c.Presets[i][1]}
	}
	return p
}

// AdjustWindow returns the clamp used for manual adjustments.
func (c *Config) AdjustWindow() logic.Window {
	return logic.Window{MinHour: c.Adjust.MinHour, MaxHour: c.Adjust.MaxHour}
}

// SoundPath resolves name against the sound directory.
func (c *Config) SoundPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Sounds.Dir, name)
}

// TTSPath resolves name inside the pre-rendered speech directory.
func (c *Config) TTSPath(name string) string {
	return filepath.Join(c.SoundPath(c.Sounds.TTSDir), name)
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/sinn7/chip"
	"github.com/ardnew/sinn7/pcm"
	"github.com/ardnew/sinn7/pkg"
	"github.com/ardnew/sinn7/player"
)

// EnvPrefix is the namespace prefix of every environment override.
const EnvPrefix = "SINN7_"

// HAL backends.
const (
	HALLoopback = "loopback"
	HALUSB      = "usb"
)

// Config is the complete player configuration.
type Config struct {
	Log     LogConfig          `yaml:"log"`
	Device  DeviceConfig       `yaml:"device"`
	Stream  StreamConfig       `yaml:"stream"`
	Cards   []chip.CardOptions `yaml:"cards"`
	Metrics MetricsConfig      `yaml:"metrics"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DeviceConfig selects and locates the device.
type DeviceConfig struct {
	HAL       string `yaml:"hal"`
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Endpoint  uint8  `yaml:"endpoint"`
	Realtime  bool   `yaml:"realtime"` // loopback only
}

// StreamConfig holds the engine and buffering parameters. Durations use
// [time.ParseDuration] syntax.
type StreamConfig struct {
	TickInterval   string `yaml:"tick_interval"`
	FirstTickDelay string `yaml:"first_tick_delay"`
	StartTimeout   string `yaml:"start_timeout"`
	StopTimeout    string `yaml:"stop_timeout"`
	PrimeFrames    int    `yaml:"prime_frames"`
	PeriodFrames   int    `yaml:"period_frames"`
	Periods        int    `yaml:"periods"`
	SetRateRequest bool   `yaml:"set_rate_request"`
	Justify        string `yaml:"justify"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

func defaults() Config {
	d := pcm.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "warn", Format: "text"},
		Device: DeviceConfig{
			HAL:       HALLoopback,
			VendorID:  chip.VendorID,
			ProductID: chip.ProductID,
			Endpoint:  d.Endpoint,
		},
		Stream: StreamConfig{
			TickInterval:   d.TickInterval.String(),
			FirstTickDelay: d.FirstTickDelay.String(),
			StartTimeout:   d.StartTimeout.String(),
			StopTimeout:    d.StopTimeout.String(),
			PrimeFrames:    d.PrimeFrames,
			PeriodFrames:   player.DefaultPeriodFrames,
			Periods:        player.DefaultPeriods,
			Justify:        "lsb",
		},
		Cards: chip.DefaultCardOptions(),
	}
}

// Default returns the built-in configuration.
func Default() Config { return defaults() }

// Load reads configuration from a YAML file (if it exists), applies
// environment overrides and validates the result. Invalid values are
// replaced by defaults and reported as warnings. The error is set only when
// the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	warnings := validate(&cfg)
	for _, w := range warnings {
		pkg.LogWarn(pkg.ComponentConfig, w)
	}
	return cfg, warnings, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv(EnvPrefix + "HAL"); v != "" {
		cfg.Device.HAL = v
	}
	if v := os.Getenv(EnvPrefix + "REALTIME"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Device.Realtime = b
		}
	}
	if v := os.Getenv(EnvPrefix + "PERIOD_FRAMES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Stream.PeriodFrames = n
		}
	}
	if v := os.Getenv(EnvPrefix + "PERIODS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Stream.Periods = n
		}
	}
	if v := os.Getenv(EnvPrefix + "JUSTIFY"); v != "" {
		cfg.Stream.Justify = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
}

func validate(cfg *Config) []string {
	var warnings []string
	def := defaults()
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if _, ok := pkg.ParseLogLevel(cfg.Log.Level); !ok {
		warn("invalid log level %q, using %s", cfg.Log.Level, def.Log.Level)
		cfg.Log.Level = def.Log.Level
	}
	if _, ok := pkg.ParseLogFormat(cfg.Log.Format); !ok {
		warn("invalid log format %q, using %s", cfg.Log.Format, def.Log.Format)
		cfg.Log.Format = def.Log.Format
	}

	switch cfg.Device.HAL {
	case HALLoopback, HALUSB:
	default:
		warn("unknown hal %q, using %s", cfg.Device.HAL, def.Device.HAL)
		cfg.Device.HAL = def.Device.HAL
	}
	if cfg.Device.Endpoint == 0 || cfg.Device.Endpoint&0x80 != 0 {
		warn("endpoint 0x%02x is not an OUT endpoint, using 0x%02x", cfg.Device.Endpoint, def.Device.Endpoint)
		cfg.Device.Endpoint = def.Device.Endpoint
	}

	s := &cfg.Stream
	for _, d := range []struct {
		name string
		val  *string
		def  string
	}{
		{"tick_interval", &s.TickInterval, def.Stream.TickInterval},
		{"first_tick_delay", &s.FirstTickDelay, def.Stream.FirstTickDelay},
		{"start_timeout", &s.StartTimeout, def.Stream.StartTimeout},
		{"stop_timeout", &s.StopTimeout, def.Stream.StopTimeout},
	} {
		if v, err := time.ParseDuration(*d.val); err != nil || v <= 0 {
			warn("invalid %s %q, using %s", d.name, *d.val, d.def)
			*d.val = d.def
		}
	}
	if s.PrimeFrames < 1 || s.PrimeFrames > pcm.MaxPeriodFrames {
		warn("prime_frames %d out of range [1, %d], using %d", s.PrimeFrames, pcm.MaxPeriodFrames, def.Stream.PrimeFrames)
		s.PrimeFrames = def.Stream.PrimeFrames
	}
	if s.PeriodFrames < pcm.MinPeriodFrames || s.PeriodFrames > pcm.MaxPeriodFrames {
		warn("period_frames %d out of range [%d, %d], using %d",
			s.PeriodFrames, pcm.MinPeriodFrames, pcm.MaxPeriodFrames, def.Stream.PeriodFrames)
		s.PeriodFrames = def.Stream.PeriodFrames
	}
	if s.Periods < pcm.DefaultHardware.PeriodsMin || s.Periods > pcm.DefaultHardware.PeriodsMax {
		warn("periods %d out of range [%d, %d], using %d",
			s.Periods, pcm.DefaultHardware.PeriodsMin, pcm.DefaultHardware.PeriodsMax, def.Stream.Periods)
		s.Periods = def.Stream.Periods
	}
	if _, err := pcm.ParseJustify(s.Justify); err != nil {
		warn("invalid justify %q, using %s", s.Justify, def.Stream.Justify)
		s.Justify = def.Stream.Justify
	}

	if len(cfg.Cards) > chip.MaxCards {
		warn("%d card entries configured, only %d slots exist", len(cfg.Cards), chip.MaxCards)
		cfg.Cards = cfg.Cards[:chip.MaxCards]
	}

	return warnings
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() slog.Level {
	l, _ := pkg.ParseLogLevel(c.Log.Level)
	return l
}

// LogFormat returns the configured log format.
func (c *Config) LogFormat() pkg.LogFormat {
	f, _ := pkg.ParseLogFormat(c.Log.Format)
	return f
}

// StreamConfig maps the stream section onto the engine configuration.
// Values that fail to parse fall back to the engine defaults.
func (c *Config) StreamConfig() pcm.Config {
	cfg := pcm.DefaultConfig()
	cfg.Endpoint = c.Device.Endpoint
	cfg.TickInterval = parseDuration(c.Stream.TickInterval, cfg.TickInterval)
	cfg.FirstTickDelay = parseDuration(c.Stream.FirstTickDelay, cfg.FirstTickDelay)
	cfg.StartTimeout = parseDuration(c.Stream.StartTimeout, cfg.StartTimeout)
	cfg.StopTimeout = parseDuration(c.Stream.StopTimeout, cfg.StopTimeout)
	cfg.PrimeFrames = c.Stream.PrimeFrames
	cfg.SetRateRequest = c.Stream.SetRateRequest
	if j, err := pcm.ParseJustify(c.Stream.Justify); err == nil {
		cfg.Justify = j
	}
	return cfg
}

// PlayerConfig returns the buffering parameters.
func (c *Config) PlayerConfig() player.Config {
	return player.Config{
		PeriodFrames: c.Stream.PeriodFrames,
		Periods:      c.Stream.Periods,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Package config holds the driver settings and loads them from flags, the
// environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/rumble"
)

const envPrefix = "XBOXBT"

// Config is the complete driver configuration.
type Config struct {
	TriggerRumbleMode string   `mapstructure:"trigger_rumble_mode" yaml:"trigger_rumble_mode"`
	RumbleAttenuation []int    `mapstructure:"rumble_attenuation" yaml:"rumble_attenuation"`
	CombinedZAxis     bool     `mapstructure:"combined_z_axis" yaml:"combined_z_axis"`
	DisableDeadzones  bool     `mapstructure:"disable_deadzones" yaml:"disable_deadzones"`
	SignedAxes        bool     `mapstructure:"signed_axes" yaml:"signed_axes"`
	DisableShiftMode  bool     `mapstructure:"disable_shift_mode" yaml:"disable_shift_mode"`
	Quirks            []string `mapstructure:"quirks" yaml:"quirks"`
	FakeDevVersion    uint16   `mapstructure:"fake_dev_version" yaml:"fake_dev_version"`

	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr"`
	Tray       bool   `mapstructure:"tray" yaml:"tray"`
	Daemon     bool   `mapstructure:"daemon" yaml:"daemon"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		TriggerRumbleMode: rumble.ModePressure.String(),
		RumbleAttenuation: []int{0, 0},
		FakeDevVersion:    0x1130,
		LogLevel:          "info",
	}
}

// flag name -> config key
var keys = map[string]string{
	"trigger-rumble-mode": "trigger_rumble_mode",
	"rumble-attenuation":  "rumble_attenuation",
	"combined-z-axis":     "combined_z_axis",
	"disable-deadzones":   "disable_deadzones",
	"signed-axes":         "signed_axes",
	"disable-shift-mode":  "disable_shift_mode",
	"quirks":              "quirks",
	"fake-dev-version":    "fake_dev_version",
	"status-addr":         "status_addr",
	"tray":                "tray",
	"daemon":              "daemon",
	"log-level":           "log_level",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (toml or yaml)")
	fs.String("trigger-rumble-mode", d.TriggerRumbleMode, "trigger rumble: pressure, directional or disabled")
	fs.IntSlice("rumble-attenuation", d.RumbleAttenuation, "rumble attenuation in percent: main[,triggers]")
	fs.Bool("combined-z-axis", d.CombinedZAxis, "combine both triggers into one rudder axis")
	fs.Bool("disable-deadzones", d.DisableDeadzones, "report raw stick values without fuzz or flat")
	fs.Bool("signed-axes", d.SignedAxes, "report sticks in -32768..32767")
	fs.Bool("disable-shift-mode", d.DisableShiftMode, "treat the Xbox button as a plain button")
	fs.StringSlice("quirks", d.Quirks, "quirk overrides, MAC{:|+|-}hexflags")
	fs.Uint16("fake-dev-version", d.FakeDevVersion, "version reported by the virtual gamepad, 0 keeps the controller's")
	fs.String("status-addr", d.StatusAddr, "serve controller status over websocket on this address")
	fs.Bool("tray", d.Tray, "show a tray icon with battery status")
	fs.Bool("daemon", d.Daemon, "run as daemon (json logs on stderr)")
	fs.String("log-level", d.LogLevel, "log level")
}

// Load merges flags, XBOXBT_* environment variables and the config file
// named by --config (or found in the default locations).
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for flag, key := range keys {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	path := ""
	if f := fs.Lookup("config"); f != nil {
		path = f.Value.String()
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/xboxbt")
		v.AddConfigPath("$HOME/.config/xboxbt")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values and clamps the attenuation into range.
func (c *Config) Validate() error {
	if _, err := rumble.ParseMode(c.TriggerRumbleMode); err != nil {
		return err
	}
	if len(c.RumbleAttenuation) > 2 {
		return fmt.Errorf("rumble attenuation takes at most two values, got %d", len(c.RumbleAttenuation))
	}
	for i, a := range c.RumbleAttenuation {
		c.RumbleAttenuation[i] = int(percent(a))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// RumbleMode returns the parsed trigger rumble mode.
func (c *Config) RumbleMode() rumble.Mode {
	m, _ := rumble.ParseMode(c.TriggerRumbleMode)
	return m
}

// Attenuation returns the main and trigger attenuation, clamped to 0..100
// whether or not Validate ran.
func (c *Config) Attenuation() (main, triggers uint8) {
	if len(c.RumbleAttenuation) > 0 {
		main = percent(c.RumbleAttenuation[0])
	}
	if len(c.RumbleAttenuation) > 1 {
		triggers = percent(c.RumbleAttenuation[1])
	}
	return main, triggers
}

func percent(v int) uint8 {
	return uint8(min(max(v, 0), 100))
}

// AxisOptions returns the axis normalizer settings.
func (c *Config) AxisOptions() axis.Options {
	return axis.Options{
		Signed:           c.SignedAxes,
		Combine:          c.CombinedZAxis,
		DisableDeadzones: c.DisableDeadzones,
	}
}

// Package config loads the engine's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/segment"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Playback struct {
		HUDRateHz    float64 `yaml:"hud_rate_hz"`
		DefaultSpeed float64 `yaml:"default_speed"`
	} `yaml:"playback"`

	Observer observer.Config `yaml:"observer"`

	Route struct {
		Mode         segment.Mode `yaml:"mode"`
		TimeScale    float64      `yaml:"time_scale"`
		LayoutRadius float64      `yaml:"layout_radius"`
	} `yaml:"route"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Server struct {
		Addr           string  `yaml:"addr"`
		MetricsEnabled bool    `yaml:"metrics_enabled"`
		TickHz         float64 `yaml:"tick_hz"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Playback.HUDRateHz = 10
	cfg.Playback.DefaultSpeed = 1
	cfg.Observer = observer.DefaultConfig()
	cfg.Route.Mode = segment.ModeSpatial
	cfg.Route.TimeScale = 1
	cfg.Route.LayoutRadius = 50
	cfg.Store.Path = "qtt.db"
	cfg.Server.Addr = ":8080"
	cfg.Server.MetricsEnabled = true
	cfg.Server.TickHz = 30
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides store path, server address and log level from the
// QTT_DB, QTT_ADDR and QTT_LOG_LEVEL environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QTT_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("QTT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("QTT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	if !positive(c.Playback.HUDRateHz) {
		return fmt.Errorf("%w: playback.hud_rate_hz must be > 0", ErrInvalid)
	}
	if !positive(c.Playback.DefaultSpeed) {
		return fmt.Errorf("%w: playback.default_speed must be > 0", ErrInvalid)
	}
	if err := c.Observer.Validate(); err != nil {
		return fmt.Errorf("%w: observer: %w", ErrInvalid, err)
	}
	switch c.Route.Mode {
	case segment.ModeSpatial, segment.ModeSpaceTime:
	default:
		return fmt.Errorf("%w: route.mode %q", ErrInvalid, c.Route.Mode)
	}
	if !positive(c.Route.TimeScale) {
		return fmt.Errorf("%w: route.time_scale must be > 0", ErrInvalid)
	}
	if !positive(c.Route.LayoutRadius) {
		return fmt.Errorf("%w: route.layout_radius must be > 0", ErrInvalid)
	}
	if !positive(c.Server.TickHz) {
		return fmt.Errorf("%w: server.tick_hz must be > 0", ErrInvalid)
	}
	return nil
}

// HUDInterval is the throttled HUD period in seconds.
func (c *Config) HUDInterval() float64 { return 1 / c.Playback.HUDRateHz }

// SegmentOptions maps the route section onto segment builder options.
func (c *Config) SegmentOptions() segment.Options {
	opts := segment.DefaultOptions()
	opts.Mode = c.Route.Mode
	opts.TimeScale = c.Route.TimeScale
	return opts
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

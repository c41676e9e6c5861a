// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the station configuration.
//
// Values are layered, later sources winning: built-in defaults, an optional
// TOML file, a .env file in the working directory, then the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Display kinds.
const (
	DisplayNone     = "none"
	DisplayTerminal = "terminal"
	DisplaySSD1306  = "ssd1306"
	DisplayWeb      = "web"
)

// Publisher kinds.
const (
	PublishNone = "none"
	PublishHTTP = "http"
	PublishMQTT = "mqtt"
)

// Config holds runtime configuration for the station.
type Config struct {
	AppEnv   string     `toml:"app_env"`
	LogLevel slog.Level `toml:"-"`
	// LogLevelName is what LogLevel is parsed from.
	LogLevelName string `toml:"log_level"`

	Sensor  Sensor  `toml:"sensor"`
	Station Station `toml:"station"`
	Display Display `toml:"display"`
	Publish Publish `toml:"publish"`
}

// Sensor is the [sensor] table.
type Sensor struct {
	Pin      string `toml:"pin"`
	Retries  int    `toml:"retries"`
	Priority int    `toml:"priority"`
	Simulate bool   `toml:"simulate"`
}

// Station is the [station] table.
type Station struct {
	DeviceID     string        `toml:"device_id"`
	Interval     time.Duration `toml:"interval"`
	StartupDelay time.Duration `toml:"startup_delay"`
	PublishEvery int           `toml:"publish_every"`
	WarnAfter    int           `toml:"warn_after"`
	RestartAfter int           `toml:"restart_after"`
}

// Display is the [display] table.
type Display struct {
	Kind   string `toml:"kind"`
	I2CBus string `toml:"i2c_bus"`
	Listen string `toml:"listen"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Scale  int    `toml:"scale"`
	// Font is an optional TrueType file.
	Font     string  `toml:"font"`
	FontSize float64 `toml:"font_size"`
}

// Publish is the [publish] table.
type Publish struct {
	Kind          string `toml:"kind"`
	URL           string `toml:"url"`
	MQTTBroker    string `toml:"mqtt_broker"`
	MQTTClientID  string `toml:"mqtt_client_id"`
	MQTTUsername  string `toml:"mqtt_username"`
	MQTTPassword  string `toml:"mqtt_password"`
	WirelessIface string `toml:"wireless_interface"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		AppEnv:       "dev",
		LogLevel:     slog.LevelInfo,
		LogLevelName: "info",
		Sensor: Sensor{
			Pin:     "GPIO4",
			Retries: 3,
		},
		Station: Station{
			DeviceID:     "dhtstation-01",
			Interval:     3 * time.Second,
			StartupDelay: 2 * time.Second,
			PublishEvery: 20,
			WarnAfter:    5,
			RestartAfter: 20,
		},
		Display: Display{
			Kind:     DisplayTerminal,
			Listen:   ":8080",
			Width:    240,
			Height:   240,
			Scale:    4,
			FontSize: 24,
		},
		Publish: Publish{
			Kind:          PublishNone,
			MQTTClientID:  "dhtstation",
			WirelessIface: "wlan0",
		},
	}
}

// Load builds the configuration. path names an optional TOML file; it is an
// error for a named file to be missing.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	_ = godotenv.Load() // ignore missing file
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	str("APP_ENV", &c.AppEnv)
	str("LOG_LEVEL", &c.LogLevelName)
	str("DHT_PIN", &c.Sensor.Pin)
	str("DHT_DEVICE_ID", &c.Station.DeviceID)
	str("DHT_DISPLAY", &c.Display.Kind)
	str("DHT_I2C_BUS", &c.Display.I2CBus)
	str("DHT_DISPLAY_LISTEN", &c.Display.Listen)
	str("DHT_FONT", &c.Display.Font)
	str("DHT_PUBLISH", &c.Publish.Kind)
	str("DHT_HTTP_URL", &c.Publish.URL)
	str("DHT_MQTT_BROKER", &c.Publish.MQTTBroker)
	str("DHT_MQTT_CLIENT_ID", &c.Publish.MQTTClientID)
	str("DHT_MQTT_USERNAME", &c.Publish.MQTTUsername)
	str("DHT_MQTT_PASSWORD", &c.Publish.MQTTPassword)
	str("DHT_WIRELESS_INTERFACE", &c.Publish.WirelessIface)

	var errs []error
	integer := func(name string, dst *int) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, v, err))
			return
		}
		*dst = n
	}
	integer("DHT_RETRIES", &c.Sensor.Retries)
	integer("DHT_PRIORITY", &c.Sensor.Priority)
	integer("DHT_PUBLISH_EVERY", &c.Station.PublishEvery)
	integer("DHT_WARN_AFTER", &c.Station.WarnAfter)
	integer("DHT_RESTART_AFTER", &c.Station.RestartAfter)
	integer("DHT_DISPLAY_SCALE", &c.Display.Scale)

	duration := func(name string, dst *time.Duration) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, v, err))
			return
		}
		*dst = d
	}
	duration("DHT_INTERVAL", &c.Station.Interval)
	duration("DHT_STARTUP_DELAY", &c.Station.StartupDelay)

	if v := strings.TrimSpace(os.Getenv("DHT_SIMULATE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid DHT_SIMULATE %q: %w", v, err))
		} else {
			c.Sensor.Simulate = b
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate checks the values that cannot be defaulted later.
func (c *Config) Validate() error {
	var errs []error
	switch c.AppEnv {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", c.AppEnv))
	}
	if !c.Sensor.Simulate && c.Sensor.Pin == "" {
		errs = append(errs, errors.New("sensor pin is required"))
	}
	if c.Sensor.Retries < 1 {
		errs = append(errs, fmt.Errorf("sensor retries must be at least 1, got %d", c.Sensor.Retries))
	}
	if c.Station.Interval <= 0 {
		errs = append(errs, fmt.Errorf("station interval must be positive, got %v", c.Station.Interval))
	}
	if c.Station.StartupDelay < 0 {
		errs = append(errs, fmt.Errorf("station startup delay must not be negative, got %v", c.Station.StartupDelay))
	}
	if c.Station.PublishEvery < 1 {
		errs = append(errs, fmt.Errorf("publish every must be at least 1, got %d", c.Station.PublishEvery))
	}
	if c.Station.DeviceID == "" {
		errs = append(errs, errors.New("device id is required"))
	}
	switch c.Display.Kind {
	case DisplayNone:
	case DisplayTerminal, DisplaySSD1306, DisplayWeb:
		if c.Display.Width <= 0 || c.Display.Height <= 0 {
			errs = append(errs, fmt.Errorf("display size %dx%d is invalid", c.Display.Width, c.Display.Height))
		}
		if c.Display.Kind == DisplayWeb && c.Display.Listen == "" {
			errs = append(errs, errors.New("web display needs a listen address"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid display %q (allowed: none, terminal, ssd1306, web)", c.Display.Kind))
	}
	switch c.Publish.Kind {
	case PublishNone:
	case PublishHTTP:
		if c.Publish.URL == "" {
			errs = append(errs, errors.New("http publisher needs a url"))
		}
	case PublishMQTT:
		if c.Publish.MQTTBroker == "" {
			errs = append(errs, errors.New("mqtt publisher needs a broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid publisher %q (allowed: none, http, mqtt)", c.Publish.Kind))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

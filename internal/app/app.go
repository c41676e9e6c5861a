// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package app wires the station from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/image/font"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/dhtstation/dht11"
	"github.com/GermanBionicSystems/dhtstation/dht11/dht11test"
	"github.com/GermanBionicSystems/dhtstation/internal/config"
	"github.com/GermanBionicSystems/dhtstation/panelstream"
	"github.com/GermanBionicSystems/dhtstation/publish"
	"github.com/GermanBionicSystems/dhtstation/screen"
	"github.com/GermanBionicSystems/dhtstation/station"
	"github.com/GermanBionicSystems/dhtstation/textdisplay"
)

// Run runs the station until ctx is done or the sensor needs a restart, in
// which case the returned error matches station.ErrRestartRequired.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("initializing station",
		"device_id", cfg.Station.DeviceID,
		"pin", cfg.Sensor.Pin,
		"simulate", cfg.Sensor.Simulate,
		"display", cfg.Display.Kind,
		"publish", cfg.Publish.Kind,
	)
	var c closers
	defer c.close(logger)

	dev, err := openSensor(cfg, logger)
	if err != nil {
		return err
	}
	c.add(dev.Halt)

	display, err := openDisplay(cfg, logger, &c)
	if err != nil {
		return err
	}

	pub, err := openPublisher(ctx, cfg, logger, &c)
	if err != nil {
		return err
	}
	var signal station.SignalSource
	if pub != nil && cfg.Publish.WirelessIface != "" {
		signal = &publish.WirelessSignal{Interface: cfg.Publish.WirelessIface}
	}

	st, err := station.New(dev, display, pub, signal, stationOpts(cfg, logger))
	if err != nil {
		return err
	}
	return st.Run(ctx)
}

// Read takes one reading.
func Read(ctx context.Context, cfg config.Config, logger *slog.Logger) (dht11.Reading, error) {
	dev, err := openSensor(cfg, logger)
	if err != nil {
		return dht11.Reading{}, err
	}
	defer dev.Halt()
	if err := ctx.Err(); err != nil {
		return dht11.Reading{}, err
	}
	return dev.Acquire()
}

func stationOpts(cfg config.Config, logger *slog.Logger) *station.Opts {
	return &station.Opts{
		DeviceID:     cfg.Station.DeviceID,
		Interval:     cfg.Station.Interval,
		StartupDelay: cfg.Station.StartupDelay,
		PublishEvery: cfg.Station.PublishEvery,
		WarnAfter:    cfg.Station.WarnAfter,
		RestartAfter: cfg.Station.RestartAfter,
		Logger:       logger,
	}
}

func openSensor(cfg config.Config, logger *slog.Logger) (*dht11.Dev, error) {
	opts := dht11.Opts{
		Retries: cfg.Sensor.Retries,
		Logger:  logger.With("sensor", cfg.Sensor.Pin),
	}
	var p gpio.PinIO
	if cfg.Sensor.Simulate {
		s := simulated()
		opts.Clock = s
		opts.Guard = dht11.NoGuard
		p = s
	} else {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("app: periph init: %w", err)
		}
		if p = gpioreg.ByName(cfg.Sensor.Pin); p == nil {
			return nil, fmt.Errorf("app: no gpio pin %q", cfg.Sensor.Pin)
		}
		opts.Guard = dht11.RuntimeGuard{Priority: cfg.Sensor.Priority}
	}
	return dht11.New(p, nil, &opts)
}

// simulated returns a sensor answering around 23°C and 45%RH, with the
// occasional corrupted frame or missed start.
func simulated() *dht11test.Sensor {
	s := dht11test.New(dht11test.Response{Frame: dht11test.Frame(45, 0, 23, 0)})
	r := rand.New(rand.NewPCG(1, 2))
	for range 1000 {
		resp := dht11test.Response{Frame: dht11test.Frame(byte(40+r.IntN(10)), 0, byte(22+r.IntN(3)), byte(r.IntN(10)))}
		switch r.IntN(20) {
		case 0:
			resp.Fault = dht11test.BadChecksum
		case 1:
			resp.Fault = dht11test.NoResponse
		}
		s.Responses = append(s.Responses, resp)
	}
	s.Default = &dht11test.Response{Frame: dht11test.Frame(45, 0, 23, 0)}
	return s
}

func openDisplay(cfg config.Config, logger *slog.Logger, c *closers) (station.TextRenderer, error) {
	var face font.Face
	if cfg.Display.Font != "" {
		ttf, err := os.ReadFile(cfg.Display.Font)
		if err != nil {
			return nil, fmt.Errorf("app: font: %w", err)
		}
		if face, err = textdisplay.LoadFace(ttf, cfg.Display.FontSize); err != nil {
			return nil, err
		}
	}
	switch cfg.Display.Kind {
	case config.DisplayTerminal:
		dev := screen.New(&screen.Opts{W: cfg.Display.Width, H: cfg.Display.Height, Scale: cfg.Display.Scale})
		c.add(dev.Halt)
		return textdisplay.New(dev, &textdisplay.Opts{Face: face})
	case config.DisplaySSD1306:
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("app: periph init: %w", err)
		}
		b, err := i2creg.Open(cfg.Display.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("app: i2c: %w", err)
		}
		c.add(b.Close)
		opts := ssd1306.DefaultOpts
		opts.W = cfg.Display.Width
		opts.H = cfg.Display.Height
		dev, err := ssd1306.NewI2C(b, &opts)
		if err != nil {
			return nil, fmt.Errorf("app: ssd1306: %w", err)
		}
		c.add(dev.Halt)
		return textdisplay.New(dev, &textdisplay.Opts{Face: face})
	case config.DisplayWeb:
		sink := panelstream.New(&panelstream.Opts{W: cfg.Display.Width, H: cfg.Display.Height, Logger: logger})
		if err := serve(cfg.Display.Listen, sink, logger, c); err != nil {
			return nil, err
		}
		c.add(sink.Halt)
		return textdisplay.New(sink, &textdisplay.Opts{Face: face})
	default:
		return nil, nil
	}
}

// serve listens on addr and serves h until the closers run.
func serve(addr string, h http.Handler, logger *slog.Logger, c *closers) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("panel server failed", "err", err)
		}
	}()
	logger.Info("panel served", "addr", ln.Addr().String())
	c.add(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

func openPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger, c *closers) (station.Publisher, error) {
	switch cfg.Publish.Kind {
	case config.PublishHTTP:
		return publish.NewHTTP(cfg.Publish.URL, nil)
	case config.PublishMQTT:
		m, err := publish.NewMQTT(publish.MQTTOpts{
			Broker:   cfg.Publish.MQTTBroker,
			ClientID: cfg.Publish.MQTTClientID,
			Username: cfg.Publish.MQTTUsername,
			Password: cfg.Publish.MQTTPassword,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		c.add(func() error { m.Disconnect(); return nil })
		// Publications fail with ErrNotConnected until the broker answers.
		go func() {
			if err := m.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, publish.ErrStopped) {
				logger.Error("mqtt connect failed", "err", err)
			}
		}()
		return m, nil
	default:
		return nil, nil
	}
}

// closers releases resources in reverse order of acquisition.
type closers struct {
	mu sync.Mutex
	fn []func() error
}

func (c *closers) add(f func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = append(c.fn, f)
}

func (c *closers) close(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.fn) - 1; i >= 0; i-- {
		if err := c.fn[i](); err != nil {
			logger.Warn("release failed", "err", err)
		}
	}
	c.fn = nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package station runs the acquisition loop of a DHT11 weather station.
//
// Each cycle takes one reading, hands it to readers through Latest, renders
// it and, every few cycles, publishes it upstream from a separate goroutine.
// Display and network are optional collaborators behind narrow interfaces.
package station

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/GermanBionicSystems/dhtstation/dht11"
	"github.com/GermanBionicSystems/dhtstation/telemetry"
	"github.com/GermanBionicSystems/dhtstation/textdisplay"
)

// ErrRestartRequired is returned by Run once the sensor failed for
// Opts.RestartAfter consecutive cycles.
var ErrRestartRequired = errors.New("station: sensor unresponsive, restart required")

// Sensor is the source of readings, usually a *dht11.Dev.
type Sensor interface {
	Acquire() (dht11.Reading, error)
}

// TextRenderer draws text at pixel positions.
type TextRenderer interface {
	// Clear fills area with c. An empty area is the whole screen.
	Clear(area image.Rectangle, c color.Color) error
	DrawText(x, y int, s string, fg, bg color.Color) error
}

// Flusher is implemented by renderers that compose off screen.
type Flusher interface {
	Flush() error
}

// Publisher sends a payload upstream.
type Publisher interface {
	Publish(ctx context.Context, p telemetry.Payload) error
}

// SignalSource reports the link quality in dBm.
type SignalSource interface {
	RSSI() (int, error)
}

// Opts holds the configuration options for the station. Zero fields other
// than StartupDelay take the value from DefaultOpts.
type Opts struct {
	DeviceID string
	// Interval is the period of the acquisition loop.
	Interval time.Duration
	// StartupDelay is how long the startup screen stays up.
	StartupDelay time.Duration
	// PublishEvery is the number of cycles between publications.
	PublishEvery int
	// WarnAfter is the number of consecutive failed cycles that raise the
	// sensor error banner.
	WarnAfter int
	// RestartAfter is the number of consecutive failed cycles that stop Run
	// with ErrRestartRequired. A negative value never stops.
	RestartAfter int
	// LockTimeout bounds every wait on Latest.
	LockTimeout time.Duration
	// PublishTimeout bounds one publication.
	PublishTimeout time.Duration
	// Charset is passed to textdisplay.Fit for every string rendered.
	Charset string
	Logger  *slog.Logger
	Now     func() time.Time
}

// DefaultOpts holds the default configuration options for the station.
var DefaultOpts = Opts{
	DeviceID:       "dhtstation-01",
	Interval:       3 * time.Second,
	StartupDelay:   2 * time.Second,
	PublishEvery:   20,
	WarnAfter:      5,
	RestartAfter:   20,
	LockTimeout:    100 * time.Millisecond,
	PublishTimeout: 15 * time.Second,
	Charset:        textdisplay.DefaultCharset,
}

// Station is the acquisition loop and its collaborators.
type Station struct {
	opts    Opts
	sensor  Sensor
	display TextRenderer
	pub     Publisher
	signal  SignalSource
	latest  *Latest

	cycle    int
	failures int
	warned   bool
}

// New returns a Station reading s. display, pub and signal may be nil. The
// Opts can be nil.
func New(s Sensor, display TextRenderer, pub Publisher, signal SignalSource, opts *Opts) (*Station, error) {
	if s == nil {
		return nil, errors.New("station: sensor is nil")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	o.fill()
	return &Station{
		opts:    o,
		sensor:  s,
		display: display,
		pub:     pub,
		signal:  signal,
		latest:  NewLatest(),
	}, nil
}

func (o *Opts) fill() {
	if o.DeviceID == "" {
		o.DeviceID = DefaultOpts.DeviceID
	}
	if o.Interval <= 0 {
		o.Interval = DefaultOpts.Interval
	}
	if o.StartupDelay < 0 {
		o.StartupDelay = 0
	}
	if o.PublishEvery <= 0 {
		o.PublishEvery = DefaultOpts.PublishEvery
	}
	if o.WarnAfter <= 0 {
		o.WarnAfter = DefaultOpts.WarnAfter
	}
	if o.RestartAfter == 0 {
		o.RestartAfter = DefaultOpts.RestartAfter
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultOpts.LockTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultOpts.PublishTimeout
	}
	if o.Charset == "" {
		o.Charset = DefaultOpts.Charset
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Latest returns the snapshot hand-off of the loop.
func (s *Station) Latest() *Latest {
	return s.latest
}

// Run shows the startup screen, then runs one cycle every Interval until ctx
// is done, returning nil, or the sensor has failed RestartAfter times in a
// row, returning ErrRestartRequired. The stop screen is shown on the way out.
//
// Run must not be called concurrently.
func (s *Station) Run(ctx context.Context) error {
	log := s.opts.Logger
	log.Info("station starting", "device_id", s.opts.DeviceID, "interval", s.opts.Interval, "publish_every", s.opts.PublishEvery)
	s.show(screenStartup)
	defer s.show(screenStopped)

	due := make(chan struct{}, 1)
	pctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if s.pub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.publishLoop(pctx, due)
		}()
	}
	defer wg.Wait()
	// The publisher stops with the loop, whatever the reason.
	defer cancel()

	if !sleepCtx(ctx, s.opts.StartupDelay) {
		log.Info("station stopped before first cycle")
		return nil
	}
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if err := s.step(); err != nil {
			log.Error("station giving up", "failures", s.failures, "err", err)
			return err
		}
		if s.pub != nil && s.cycle%s.opts.PublishEvery == 0 {
			select {
			case due <- struct{}{}:
			default:
				log.Warn("publication still in flight, skipping", "cycle", s.cycle)
			}
		}
		select {
		case <-ctx.Done():
			log.Info("station stopped", "cycles", s.cycle)
			return nil
		case <-ticker.C:
		}
	}
}

// step runs one acquisition cycle.
func (s *Station) step() error {
	s.cycle++
	log := s.opts.Logger.With("cycle", s.cycle)
	r, err := s.sensor.Acquire()
	has := err == nil
	if has && !s.latest.Store(Snapshot{Reading: r, Has: true, Cycle: s.cycle}, s.opts.LockTimeout) {
		log.Warn("snapshot busy, not updated this cycle")
	}

	switch {
	case err != nil:
		log.Warn("no reading", "err", err)
	case !r.Valid:
		log.Warn("stale reading", "temperature", dht11.FormatTemperature(&r), "humidity", dht11.FormatHumidity(&r), "age", r.Age(s.opts.Now()))
	default:
		log.Info("reading", "temperature", dht11.FormatTemperature(&r), "humidity", dht11.FormatHumidity(&r))
	}

	if has && r.Valid {
		if s.warned {
			log.Info("sensor recovered", "after", s.failures)
		}
		s.failures = 0
		s.warned = false
	} else {
		s.failures++
		if s.failures >= s.opts.WarnAfter && !s.warned {
			log.Warn("sensor failing", "consecutive", s.failures)
			s.warned = true
		}
	}

	var shown *dht11.Reading
	if has {
		shown = &r
	}
	s.render(shown)

	if s.opts.RestartAfter > 0 && s.failures >= s.opts.RestartAfter {
		return fmt.Errorf("%w: %d consecutive failures", ErrRestartRequired, s.failures)
	}
	return nil
}

func (s *Station) publishLoop(ctx context.Context, due <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-due:
			s.publish(ctx)
		}
	}
}

// publish sends the current snapshot. Failures are logged and dropped.
func (s *Station) publish(ctx context.Context) {
	log := s.opts.Logger
	snap, ok := s.latest.Load(s.opts.LockTimeout)
	if !ok {
		log.Warn("snapshot busy, publication skipped")
		return
	}
	var r *dht11.Reading
	if snap.Has {
		r = &snap.Reading
	}
	rssi := 0
	if s.signal != nil {
		v, err := s.signal.RSSI()
		if err != nil {
			log.Debug("no signal strength", "err", err)
		} else {
			rssi = v
		}
	}
	p := telemetry.New(s.opts.DeviceID, r, s.opts.Now(), rssi)
	ctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	if err := s.pub.Publish(ctx, p); err != nil {
		log.Error("publish failed", "payload", p.String(), "err", err)
		return
	}
	log.Info("published", "payload", p.String())
}

// sleepCtx waits d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

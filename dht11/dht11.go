// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// MinSenseInterval is the shortest interval accepted by SenseContinuous. The
// sensor samples at 1Hz and needs time to settle between reads.
const MinSenseInterval = 2 * time.Second

// Opts holds the configuration options for the device. Zero fields take the
// value from DefaultOpts.
type Opts struct {
	// Retries is the number of full exchanges tried per Acquire.
	Retries int
	// StabilizationDelay is waited before every exchange.
	StabilizationDelay time.Duration
	// RetryDelay is waited after a failed exchange before the next one.
	RetryDelay time.Duration
	// ResponseTimeout bounds each half of the sensor acknowledgment.
	ResponseTimeout time.Duration
	// BitTimeout bounds each level transition while reading bits.
	BitTimeout time.Duration
	// Clock times the start sequence. Defaults to SystemClock.
	Clock Clock
	// Timer measures pulses. Defaults to a BusyTimer on the pin and Clock.
	Timer Timer
	// Guard wraps every exchange. Defaults to RuntimeGuard{}.
	Guard Guard
	// Logger receives retry and range warnings. Defaults to discarding them.
	Logger *slog.Logger
	// Now timestamps readings. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Retries:            3,
	StabilizationDelay: 200 * time.Millisecond,
	RetryDelay:         500 * time.Millisecond,
	ResponseTimeout:    500 * time.Microsecond,
	BitTimeout:         500 * time.Microsecond,
}

// Dev is a handle to a DHT11 sensor.
type Dev struct {
	opts  Opts
	pin   gpio.PinIO
	line  line
	cache *Cache

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Dev talking to the sensor on p, with the line initialized to
// its idle state.
//
// c holds the last good reading and may be shared with other devices. A nil
// c gives the device a private cache. The Opts can be nil.
func New(p gpio.PinIO, c *Cache, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("dht11: pin is nil")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	o.fill()
	if o.Timer == nil {
		o.Timer = &BusyTimer{Pin: p, Clock: o.Clock}
	}
	if c == nil {
		c = &Cache{}
	}
	d := &Dev{
		opts:  o,
		pin:   p,
		line:  line{pin: p, clock: o.Clock, timer: o.Timer},
		cache: c,
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (o *Opts) fill() {
	if o.Retries <= 0 {
		o.Retries = DefaultOpts.Retries
	}
	if o.StabilizationDelay <= 0 {
		o.StabilizationDelay = DefaultOpts.StabilizationDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultOpts.RetryDelay
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = DefaultOpts.ResponseTimeout
	}
	if o.BitTimeout <= 0 {
		o.BitTimeout = DefaultOpts.BitTimeout
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Guard == nil {
		o.Guard = RuntimeGuard{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Init drives the data line high, its idle state. It is called by New and may
// be called again at any time.
func (d *Dev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line.release()
}

// Acquire reads the sensor, trying up to Opts.Retries exchanges.
//
// A fresh reading is cached and returned with Valid set. When every attempt
// fails, the cached reading is returned with Valid cleared and a nil error.
// Only when nothing was ever cached does Acquire return an error, which
// matches ErrNoData and wraps the last attempt's failure.
//
// Acquire blocks for the whole cycle: worst case
// Retries×(StabilizationDelay+exchange) + (Retries-1)×RetryDelay.
func (d *Dev) Acquire() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquire()
}

func (d *Dev) acquire() (Reading, error) {
	var last error
	for i := range d.opts.Retries {
		if i > 0 {
			sleep(d.opts.RetryDelay)
		}
		sleep(d.opts.StabilizationDelay)
		r, err := d.attempt()
		if err == nil {
			if err := r.CheckRange(); err != nil {
				d.opts.Logger.Warn("reading outside rated range", "reading", r, "err", err)
			}
			d.cache.Store(r)
			return r, nil
		}
		last = err
		d.opts.Logger.Debug("dht11 attempt failed", "attempt", i+1, "of", d.opts.Retries, "err", err)
	}
	if r, ok := d.cache.Load(); ok {
		r.Valid = false
		d.opts.Logger.Warn("dht11 using cached reading", "reading", r, "err", last)
		return r, nil
	}
	return Reading{}, fmt.Errorf("%w after %d attempts: %w", ErrNoData, d.opts.Retries, last)
}

// attempt runs one exchange. The line is back in its idle state whatever the
// outcome.
func (d *Dev) attempt() (r Reading, err error) {
	defer func() {
		if rerr := d.line.release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	f, err := d.exchange()
	if err != nil {
		return Reading{}, err
	}
	return parseFrame(f, d.opts.Now())
}

// exchange is the timing critical section, from start sequence to last bit.
func (d *Dev) exchange() ([5]byte, error) {
	defer d.opts.Guard.Suspend()()
	if err := d.line.start(); err != nil {
		return [5]byte{}, err
	}
	if err := d.line.awaitAck(d.opts.ResponseTimeout); err != nil {
		return [5]byte{}, err
	}
	return readFrame(d.opts.Timer, d.opts.BitTimeout)
}

// TemperatureString acquires a reading and renders it for display, e.g.
// "22.5C". It returns TemperaturePlaceholder when no reading is available.
func (d *Dev) TemperatureString() string {
	r, err := d.Acquire()
	if err != nil {
		return FormatTemperature(nil)
	}
	return FormatTemperature(&r)
}

// HumidityString acquires a reading and renders it for display, e.g. "41%".
// It returns HumidityPlaceholder when no reading is available.
func (d *Dev) HumidityString() string {
	r, err := d.Acquire()
	if err != nil {
		return FormatHumidity(nil)
	}
	return FormatHumidity(&r)
}

// Sense implements physic.SenseEnv. It fills e from Acquire, stale or not;
// use Acquire to tell them apart. Pressure is always 0.
func (d *Dev) Sense(e *physic.Env) error {
	r, err := d.Acquire()
	if err != nil {
		return err
	}
	*e = r.Env()
	return nil
}

// SenseContinuous implements physic.SenseEnv. It returns a channel receiving
// every fresh reading taken at interval, which must be at least
// MinSenseInterval. Call Halt() to stop it.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < MinSenseInterval {
		return nil, fmt.Errorf("dht11: invalid interval %s, minimum %s", interval, MinSenseInterval)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("dht11: sense continuous already running")
	}
	d.stop = make(chan struct{})
	ch := make(chan physic.Env, 16)
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r, err := d.Acquire()
				if err != nil || !r.Valid {
					continue
				}
				select {
				case ch <- r.Env():
				case <-stop:
					return
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Celsius / 10
	e.Pressure = 0
	e.Humidity = physic.PercentRH / 10
}

// Halt implements conn.Resource. It stops SenseContinuous and leaves the
// line idle.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return d.Init()
}

func (d *Dev) String() string {
	return fmt.Sprintf("dht11{%s}", d.pin)
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Clock is the time source used while talking to the sensor.
type Clock interface {
	// Now returns the current time. Only differences between two calls are
	// used, so the value must carry a monotonic reading.
	Now() time.Time
	// Delay waits for d without yielding the processor.
	Delay(d time.Duration)
}

// SystemClock is the Clock backed by the runtime's monotonic clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Delay(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

// Timer measures how long the data line takes to reach a level.
//
// WaitForLevel returns the time elapsed since the call began once the line
// reads l, or ErrTimeout when that did not happen within timeout.
type Timer interface {
	WaitForLevel(l gpio.Level, timeout time.Duration) (time.Duration, error)
}

// BusyTimer is a Timer that polls Pin in a tight loop. It never sleeps, which
// is what gives it microsecond resolution.
type BusyTimer struct {
	Pin   gpio.PinIn
	Clock Clock
}

// WaitForLevel implements Timer.
func (b *BusyTimer) WaitForLevel(l gpio.Level, timeout time.Duration) (time.Duration, error) {
	start := b.Clock.Now()
	for b.Pin.Read() != l {
		if b.since(start) > timeout {
			return 0, ErrTimeout
		}
	}
	return b.since(start), nil
}

func (b *BusyTimer) since(start time.Time) time.Duration {
	if d := b.Clock.Now().Sub(start); d > 0 {
		return d
	}
	return 0
}

var _ Timer = &BusyTimer{}

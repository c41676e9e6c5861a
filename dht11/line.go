// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

const (
	// startLow is how long the host holds the line low to wake the sensor.
	startLow = 18 * time.Millisecond
	// startHigh is how long the host drives the line high before releasing
	// it. The datasheet allows 20-40µs.
	startHigh = 40 * time.Microsecond
)

// line owns the data pin. At rest it drives the line high; it only switches
// to input between start and release.
type line struct {
	pin   gpio.PinIO
	clock Clock
	timer Timer
}

// start sends the wake-up sequence and hands the line over to the sensor.
// Only errors from the GPIO driver are reported; whether the sensor heard
// the sequence is only known from awaitAck.
func (l *line) start() error {
	if err := l.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("dht11: drive low: %w", err)
	}
	l.clock.Delay(startLow)
	if err := l.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("dht11: drive high: %w", err)
	}
	l.clock.Delay(startHigh)
	if err := l.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("dht11: release line: %w", err)
	}
	return nil
}

// awaitAck waits for the sensor's 80µs low then 80µs high acknowledgment.
func (l *line) awaitAck(timeout time.Duration) error {
	if _, err := l.timer.WaitForLevel(gpio.Low, timeout); err != nil {
		return noResponse(err)
	}
	if _, err := l.timer.WaitForLevel(gpio.High, timeout); err != nil {
		return noResponse(err)
	}
	return nil
}

// release drives the line high again, the idle state between exchanges.
func (l *line) release() error {
	if err := l.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("dht11: idle line: %w", err)
	}
	return nil
}

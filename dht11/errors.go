// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

var (
	// ErrTimeout is returned when an expected transition on the data line did
	// not happen in time.
	ErrTimeout = errors.New("dht11: timed out waiting for pulse")
	// ErrNoResponse is returned when the sensor did not acknowledge the start
	// sequence. It also matches ErrTimeout.
	ErrNoResponse = errors.New("dht11: sensor did not acknowledge start")
	// ErrInvalidPulseWidth is matched by *PulseWidthError.
	ErrInvalidPulseWidth = errors.New("dht11: implausible pulse width")
	// ErrChecksumMismatch is matched by *ChecksumError.
	ErrChecksumMismatch = errors.New("dht11: checksum mismatch")
	// ErrNoData is returned by Acquire when every attempt failed and no
	// reading was ever cached.
	ErrNoData = errors.New("dht11: no reading available")
)

// PulseWidthError reports a high pulse that was measured but cannot encode a
// bit.
type PulseWidthError struct {
	Bit   int
	Width time.Duration
}

func (e *PulseWidthError) Error() string {
	return fmt.Sprintf("dht11: bit %d: implausible pulse width %s (want %s..%s)", e.Bit, e.Width, MinPulseWidth, MaxPulseWidth)
}

func (e *PulseWidthError) Is(target error) bool { return target == ErrInvalidPulseWidth }

// ChecksumError reports a complete frame whose checksum byte does not match
// its data bytes.
type ChecksumError struct {
	Frame [5]byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("dht11: checksum mismatch in frame % x", e.Frame[:])
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// RangeError reports a valid frame holding values outside the rated range of
// the sensor. It is advisory; Acquire logs it and still returns the reading.
type RangeError struct {
	Temperature physic.Temperature
	Humidity    physic.RelativeHumidity
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("dht11: reading %s %s outside rated range", e.Temperature, e.Humidity)
}

func noResponse(err error) error {
	return fmt.Errorf("%w: %w", ErrNoResponse, err)
}

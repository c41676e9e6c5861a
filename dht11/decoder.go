// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

const (
	// BitThreshold separates a 0 (26-28µs high) from a 1 (70µs high). Widths
	// at or below it decode to 0.
	BitThreshold = 50 * time.Microsecond
	// MinPulseWidth and MaxPulseWidth bound the high pulses considered a bit
	// at all. Anything outside is reported as a PulseWidthError.
	MinPulseWidth = 10 * time.Microsecond
	MaxPulseWidth = 100 * time.Microsecond
)

const frameBits = 40

// decodeWidth turns the width of a high pulse into a bit.
func decodeWidth(w time.Duration) (byte, error) {
	if w < MinPulseWidth || w > MaxPulseWidth {
		return 0, &PulseWidthError{Width: w}
	}
	if w > BitThreshold {
		return 1, nil
	}
	return 0, nil
}

// readBit waits for the 50µs low that starts a bit, then measures the high
// pulse that follows it.
func readBit(t Timer, timeout time.Duration) (byte, error) {
	if _, err := t.WaitForLevel(gpio.Low, timeout); err != nil {
		return 0, err
	}
	if _, err := t.WaitForLevel(gpio.High, timeout); err != nil {
		return 0, err
	}
	w, err := t.WaitForLevel(gpio.Low, timeout)
	if err != nil {
		return 0, err
	}
	return decodeWidth(w)
}

// readFrame reads the 40 data bits, most significant bit first. It returns
// the first error encountered and never a partial frame.
func readFrame(t Timer, timeout time.Duration) ([5]byte, error) {
	var f [5]byte
	for i := range frameBits {
		b, err := readBit(t, timeout)
		if err != nil {
			var pw *PulseWidthError
			if errors.As(err, &pw) {
				pw.Bit = i
				return [5]byte{}, pw
			}
			return [5]byte{}, fmt.Errorf("dht11: bit %d: %w", i, err)
		}
		f[i/8] |= b << (7 - uint(i%8))
	}
	return f, nil
}

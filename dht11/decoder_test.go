// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/dhtstation/dht11/dht11test"
)

func TestDecodeWidth(t *testing.T) {
	for w := time.Duration(0); w <= 2*MaxPulseWidth; w += 250 * time.Nanosecond {
		b, err := decodeWidth(w)
		if w < MinPulseWidth || w > MaxPulseWidth {
			var pw *PulseWidthError
			if !errors.As(err, &pw) || !errors.Is(err, ErrInvalidPulseWidth) {
				t.Fatalf("decodeWidth(%s): expected PulseWidthError, got %v", w, err)
			}
			if pw.Width != w {
				t.Errorf("decodeWidth(%s): error carries width %s", w, pw.Width)
			}
			continue
		}
		if err != nil {
			t.Fatalf("decodeWidth(%s): %v", w, err)
		}
		want := byte(0)
		if w > BitThreshold {
			want = 1
		}
		if b != want {
			t.Errorf("decodeWidth(%s) = %d, want %d", w, b, want)
		}
	}
}

// startedTimer returns a Timer positioned right after the acknowledgment of
// a sensor answering r.
func startedTimer(t *testing.T, r dht11test.Response) Timer {
	s := dht11test.New(r)
	l := line{pin: s, clock: s, timer: &BusyTimer{Pin: s, Clock: s}}
	if err := l.start(); err != nil {
		t.Fatal(err)
	}
	if err := l.awaitAck(DefaultOpts.ResponseTimeout); err != nil {
		t.Fatal(err)
	}
	return l.timer
}

func TestReadFrame(t *testing.T) {
	frames := [][5]byte{
		{41, 0, 22, 5, 68},
		{65, 0, 20, 0, 85},
		{0x00, 0x00, 0x00, 0x00, 0x00},
		{0xff, 0xff, 0xff, 0xff, 0xfc},
		{0xa5, 0x5a, 0x0f, 0xf0, 0x12},
	}
	for _, f := range frames {
		tm := startedTimer(t, dht11test.Response{Frame: f})
		got, err := readFrame(tm, DefaultOpts.BitTimeout)
		if err != nil {
			t.Fatalf("% x: %v", f[:], err)
		}
		if got != f {
			t.Errorf("expected % x, got % x", f[:], got[:])
		}
	}
}

func TestReadFrame_fault(t *testing.T) {
	var tests = []struct {
		fault dht11test.Fault
		bit   int
		err   error
	}{
		{fault: dht11test.Stall, bit: 0, err: ErrTimeout},
		{fault: dht11test.Stall, bit: 39, err: ErrTimeout},
		{fault: dht11test.ShortPulse, bit: 3, err: ErrInvalidPulseWidth},
		{fault: dht11test.LongPulse, bit: 17, err: ErrInvalidPulseWidth},
	}
	for _, test := range tests {
		t.Run(test.fault.String(), func(t *testing.T) {
			tm := startedTimer(t, dht11test.Response{Frame: dht11test.Frame(41, 0, 22, 5), Fault: test.fault, Bit: test.bit})
			f, err := readFrame(tm, DefaultOpts.BitTimeout)
			if !errors.Is(err, test.err) {
				t.Fatalf("expected %v, got %v", test.err, err)
			}
			if f != [5]byte{} {
				t.Errorf("partial frame returned: % x", f[:])
			}
			var pw *PulseWidthError
			if errors.As(err, &pw) && pw.Bit != test.bit {
				t.Errorf("expected bit %d, got %d", test.bit, pw.Bit)
			}
		})
	}
}

func TestAwaitAck_noResponse(t *testing.T) {
	s := dht11test.New(dht11test.Response{Fault: dht11test.NoResponse})
	l := line{pin: s, clock: s, timer: &BusyTimer{Pin: s, Clock: s}}
	if err := l.start(); err != nil {
		t.Fatal(err)
	}
	err := l.awaitAck(DefaultOpts.ResponseTimeout)
	if !errors.Is(err, ErrNoResponse) || !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected no response timeout, got %v", err)
	}
	if s.Starts() != 1 {
		t.Errorf("expected 1 start sequence, got %d", s.Starts())
	}
}

func TestLine_start(t *testing.T) {
	s := dht11test.New()
	l := line{pin: s, clock: s, timer: &BusyTimer{Pin: s, Clock: s}}
	before := s.Now()
	if err := l.start(); err != nil {
		t.Fatal(err)
	}
	if d := s.Now().Sub(before); d < startLow+startHigh {
		t.Errorf("start sequence took %s", d)
	}
	if _, driven := s.Driven(); driven {
		t.Error("line still driven after start")
	}
	if err := l.release(); err != nil {
		t.Fatal(err)
	}
	if lvl, driven := s.Driven(); !driven || lvl != gpio.High {
		t.Errorf("line not idle after release: %s driven=%t", lvl, driven)
	}
}

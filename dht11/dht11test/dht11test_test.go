// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11test

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// wake drives the start sequence the way a host would.
func wake(s *Sensor, low time.Duration) {
	_ = s.Out(gpio.Low)
	s.Delay(low)
	_ = s.Out(gpio.High)
	s.Delay(40 * time.Microsecond)
	_ = s.In(gpio.PullUp, gpio.NoEdge)
}

// pulses samples the line every tick and returns the width of each high
// pulse seen before the line settles high for more than settle.
func pulses(s *Sensor, settle time.Duration) []time.Duration {
	var out []time.Duration
	var high time.Duration
	for idle := time.Duration(0); idle < settle; {
		s.Now()
		if s.Read() == gpio.High {
			high += time.Microsecond
			idle += time.Microsecond
			continue
		}
		if high > 0 {
			out = append(out, high)
		}
		high, idle = 0, 0
	}
	return out
}

func TestFrame(t *testing.T) {
	if f := Frame(41, 0, 22, 5); f != [5]byte{41, 0, 22, 5, 68} {
		t.Fatalf("unexpected frame % x", f[:])
	}
	if f := Frame(200, 100, 0, 0); f[4] != 44 {
		t.Fatalf("checksum did not wrap: %d", f[4])
	}
}

func TestSensor_waveform(t *testing.T) {
	s := New(Response{Frame: [5]byte{0x80, 0, 0, 0, 0x80}})
	wake(s, WakeTime)
	if s.Starts() != 1 || s.Pending() != 0 {
		t.Fatalf("starts=%d pending=%d", s.Starts(), s.Pending())
	}
	if _, driven := s.Driven(); driven {
		t.Fatal("line still driven after In()")
	}
	got := pulses(s, 200*time.Microsecond)
	// ResponseWait, then the ack high, then 40 bits.
	if len(got) != 2+40 {
		t.Fatalf("expected 42 pulses, got %d: %v", len(got), got)
	}
	if d := got[1] - AckHigh; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("ack high %s, want %s", got[1], AckHigh)
	}
	for i, w := range got[2:] {
		want := ZeroWidth
		if i == 0 || i == 32 {
			want = OneWidth
		}
		// Sampling may lose one tick on either edge.
		if d := w - want; d < -time.Microsecond || d > time.Microsecond {
			t.Errorf("bit %d: width %s, want %s", i, w, want)
		}
	}
}

func TestSensor_shortWake(t *testing.T) {
	s := New(Response{Frame: Frame(1, 2, 3, 4)})
	wake(s, WakeTime-time.Millisecond)
	if s.Starts() != 0 || s.Pending() != 1 {
		t.Fatalf("starts=%d pending=%d", s.Starts(), s.Pending())
	}
	if l := s.Read(); l != gpio.High {
		t.Fatalf("expected idle high line, got %s", l)
	}
}

func TestSensor_faults(t *testing.T) {
	s := New(Response{Fault: Stall, Bit: 0})
	s.Default = &Response{Fault: NoResponse}
	wake(s, WakeTime)
	for range 1000 {
		s.Now()
	}
	if l := s.Read(); l != gpio.Low {
		t.Fatalf("stalled sensor released the line")
	}
	wake(s, WakeTime)
	if s.Starts() != 2 {
		t.Fatalf("starts=%d", s.Starts())
	}
	if got := pulses(s, 300*time.Microsecond); len(got) != 0 {
		t.Fatalf("silent sensor sent %v", got)
	}
}

func TestFault_String(t *testing.T) {
	if s := BadChecksum.String(); s != "BadChecksum" {
		t.Errorf("got %q", s)
	}
	if s := Fault(42).String(); s != "unknown" {
		t.Errorf("got %q", s)
	}
}

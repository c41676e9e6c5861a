// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht11test is meant to be used to test drivers talking to a DHT11.
//
// Sensor answers the start sequence on a virtual data line with the pulse
// train a real DHT11 would send. It is also the dht11.Clock of that line:
// every Now() call advances virtual time by one Tick, so a busy-polling
// reader sees pulses of the exact widths it would measure on hardware
// without any real waiting.
package dht11test

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/GermanBionicSystems/dhtstation/common"
)

// Protocol timings used by Sensor.
const (
	WakeTime     = 18 * time.Millisecond
	ResponseWait = 20 * time.Microsecond
	AckLow       = 80 * time.Microsecond
	AckHigh      = 80 * time.Microsecond
	BitLow       = 50 * time.Microsecond
	ZeroWidth    = 26 * time.Microsecond
	OneWidth     = 70 * time.Microsecond
	ShortWidth   = 4 * time.Microsecond
	LongWidth    = 150 * time.Microsecond
)

// Fault selects how the sensor misbehaves for one Response.
type Fault int

const (
	// None sends the frame as is.
	None Fault = iota
	// NoResponse never acknowledges the start sequence.
	NoResponse
	// Stall holds the line low forever instead of sending bit Bit.
	Stall
	// ShortPulse sends bit Bit as a ShortWidth high pulse.
	ShortPulse
	// LongPulse sends bit Bit as a LongWidth high pulse.
	LongPulse
	// BadChecksum sends the frame with its checksum byte inverted.
	BadChecksum
)

func (f Fault) String() string {
	switch f {
	case None:
		return "None"
	case NoResponse:
		return "NoResponse"
	case Stall:
		return "Stall"
	case ShortPulse:
		return "ShortPulse"
	case LongPulse:
		return "LongPulse"
	case BadChecksum:
		return "BadChecksum"
	default:
		return "unknown"
	}
}

// Response is what the sensor sends after one start sequence.
type Response struct {
	Frame [5]byte
	Fault Fault
	// Bit is the index of the bit affected by Stall, ShortPulse and
	// LongPulse.
	Bit int
}

// Frame returns the frame for the given readings with its checksum.
func Frame(humidity, humidityTenths, temperature, temperatureTenths byte) [5]byte {
	f := [5]byte{humidity, humidityTenths, temperature, temperatureTenths}
	f[4] = common.Sum8(f[:4])
	return f
}

// Sensor is a simulated DHT11 and the data line it is connected to.
//
// Responses are played in order, one per start sequence. Once they are
// exhausted Default is repeated; a nil Default behaves as NoResponse.
type Sensor struct {
	gpiotest.Pin
	Responses []Response
	Default   *Response
	// Tick is how much virtual time each Now() call takes. Defaults to 1µs.
	Tick time.Duration
	// Epoch is the virtual time origin.
	Epoch time.Time

	mu      sync.Mutex
	starts  int
	now     time.Duration
	driving bool
	level   gpio.Level
	lowAt   time.Duration
	lowFor  time.Duration
	wave    []segment
	waveAt  time.Duration
}

type segment struct {
	level gpio.Level
	d     time.Duration // negative means forever
}

// New returns a Sensor that plays r.
func New(r ...Response) *Sensor {
	return &Sensor{Pin: gpiotest.Pin{N: "DHT11", Num: -1}, Responses: r}
}

// Starts returns how many start sequences the sensor has seen.
func (s *Sensor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Pending returns how many scripted responses have not been played.
func (s *Sensor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Responses)
}

// Driven reports the level the host drives the line to, and false when the
// host has released it.
func (s *Sensor) Driven() (gpio.Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.driving
}

// Out implements gpio.PinOut. The host drives the line.
func (s *Sensor) Out(l gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasLow := s.driving && s.level == gpio.Low
	switch {
	case l == gpio.Low && !wasLow:
		s.lowAt = s.now
	case l == gpio.High && wasLow:
		s.lowFor = s.now - s.lowAt
	}
	s.driving = true
	s.level = l
	s.wave = nil
	return nil
}

// In implements gpio.PinIn. The host releases the line; if it was held low
// long enough the sensor starts answering.
func (s *Sensor) In(gpio.Pull, gpio.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driving = false
	if s.lowFor >= WakeTime {
		s.starts++
		s.respond(s.next())
	}
	s.lowFor = 0
	return nil
}

// Read implements gpio.PinIn.
func (s *Sensor) Read() gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driving {
		return s.level
	}
	t := s.now - s.waveAt
	for _, seg := range s.wave {
		if seg.d < 0 || t < seg.d {
			return seg.level
		}
		t -= seg.d
	}
	// Pulled up.
	return gpio.High
}

// Now implements dht11.Clock.
func (s *Sensor) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Tick > 0 {
		s.now += s.Tick
	} else {
		s.now += time.Microsecond
	}
	return s.Epoch.Add(s.now)
}

// Delay implements dht11.Clock.
func (s *Sensor) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now += d
}

func (s *Sensor) next() Response {
	if len(s.Responses) > 0 {
		r := s.Responses[0]
		s.Responses = s.Responses[1:]
		return r
	}
	if s.Default != nil {
		return *s.Default
	}
	return Response{Fault: NoResponse}
}

func (s *Sensor) respond(r Response) {
	s.wave = nil
	s.waveAt = s.now
	if r.Fault == NoResponse {
		return
	}
	f := r.Frame
	if r.Fault == BadChecksum {
		f[4] = ^f[4]
	}
	w := make([]segment, 0, 4+2*40)
	w = append(w, segment{gpio.High, ResponseWait}, segment{gpio.Low, AckLow}, segment{gpio.High, AckHigh})
	for i := range 40 {
		if i == r.Bit && r.Fault == Stall {
			s.wave = append(w, segment{gpio.Low, -1})
			return
		}
		width := ZeroWidth
		if f[i/8]&(0x80>>uint(i%8)) != 0 {
			width = OneWidth
		}
		if i == r.Bit {
			switch r.Fault {
			case ShortPulse:
				width = ShortWidth
			case LongPulse:
				width = LongWidth
			}
		}
		w = append(w, segment{gpio.Low, BitLow}, segment{gpio.High, width})
	}
	s.wave = append(w, segment{gpio.Low, BitLow})
}

var _ gpio.PinIO = &Sensor{}

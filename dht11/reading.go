// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/dhtstation/common"
)

// Placeholders rendered by the string accessors when no reading exists.
const (
	TemperaturePlaceholder = "--.-C"
	HumidityPlaceholder    = "--%"
)

// Rated measurement range of the DHT11.
const (
	MinTemperature = physic.ZeroCelsius
	MaxTemperature = physic.ZeroCelsius + 50*physic.Celsius
	MinHumidity    = 20 * physic.PercentRH
	MaxHumidity    = 95 * physic.PercentRH
)

// Reading is the result of one acquisition.
type Reading struct {
	Temperature physic.Temperature
	Humidity    physic.RelativeHumidity
	// Valid is true only when the frame passed its checksum during the
	// acquisition that returned it. A false value marks a cached reading
	// handed out again because the fresh attempts failed.
	Valid bool
	// Time is when the frame was received. A stale reading keeps the time of
	// its original frame.
	Time time.Time
}

// parseFrame converts a checksummed frame. Each quantity is sent as an
// integral byte followed by tenths.
func parseFrame(f [5]byte, at time.Time) (Reading, error) {
	if common.Sum8(f[:4]) != f[4] {
		return Reading{}, &ChecksumError{Frame: f}
	}
	return Reading{
		Humidity:    physic.RelativeHumidity(f[0])*physic.PercentRH + physic.RelativeHumidity(f[1])*(physic.PercentRH/10),
		Temperature: physic.ZeroCelsius + physic.Temperature(f[2])*physic.Celsius + physic.Temperature(f[3])*100*physic.MilliKelvin,
		Valid:       true,
		Time:        at,
	}, nil
}

// Celsius returns the temperature in degrees Celsius.
func (r Reading) Celsius() float64 {
	return r.Temperature.Celsius()
}

// Percent returns the relative humidity in percent.
func (r Reading) Percent() float64 {
	return float64(r.Humidity) / float64(physic.PercentRH)
}

// Age returns how long ago the reading was taken.
func (r Reading) Age(now time.Time) time.Duration {
	if r.Time.IsZero() {
		return 0
	}
	return now.Sub(r.Time)
}

// CheckRange returns a *RangeError when the reading lies outside the rated
// range of the sensor.
func (r Reading) CheckRange() error {
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature ||
		r.Humidity < MinHumidity || r.Humidity > MaxHumidity {
		return &RangeError{Temperature: r.Temperature, Humidity: r.Humidity}
	}
	return nil
}

// Env returns the reading as a physic.Env. Pressure is always 0.
func (r Reading) Env() physic.Env {
	return physic.Env{Temperature: r.Temperature, Humidity: r.Humidity}
}

func (r Reading) String() string {
	s := fmt.Sprintf("%s %s", r.Temperature, r.Humidity)
	if !r.Valid {
		s += " (stale)"
	}
	return s
}

// FormatTemperature renders r with one decimal and a C suffix, or
// TemperaturePlaceholder when r is nil.
func FormatTemperature(r *Reading) string {
	if r == nil {
		return TemperaturePlaceholder
	}
	return fmt.Sprintf("%.1fC", r.Celsius())
}

// FormatHumidity renders r as whole percent, or HumidityPlaceholder when r is
// nil.
func FormatHumidity(r *Reading) string {
	if r == nil {
		return HumidityPlaceholder
	}
	return fmt.Sprintf("%.0f%%", r.Percent())
}

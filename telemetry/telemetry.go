// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry defines the record a station publishes upstream.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/GermanBionicSystems/dhtstation/dht11"
)

// Sentinel stands in for temperature and humidity when no reading exists.
const Sentinel = -999.0

// Payload is the fixed-shape record sent to the collector.
type Payload struct {
	DeviceID    string  `json:"device_id"`
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	RSSI        int     `json:"rssi"`
	// Valid is false for stale readings and for the sentinel values.
	Valid bool `json:"valid"`
}

// New builds the payload for r taken by deviceID, stamped at at.
//
// A nil r yields Sentinel in both numeric fields. Values are rounded to one
// decimal, the resolution of the sensor.
func New(deviceID string, r *dht11.Reading, at time.Time, rssi int) Payload {
	p := Payload{
		DeviceID:    deviceID,
		Timestamp:   at.Unix(),
		Temperature: Sentinel,
		Humidity:    Sentinel,
		RSSI:        rssi,
	}
	if r != nil {
		p.Temperature = round1(r.Celsius())
		p.Humidity = round1(r.Percent())
		p.Valid = r.Valid
	}
	return p
}

// HasReading reports whether p carries measured values rather than the
// sentinel.
func (p *Payload) HasReading() bool {
	return p.Temperature != Sentinel || p.Humidity != Sentinel
}

// Time returns the timestamp as a time.Time.
func (p *Payload) Time() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// Marshal encodes p as JSON.
func (p *Payload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("telemetry: marshal: %w", err)
	}
	return b, nil
}

func (p *Payload) String() string {
	if !p.HasReading() {
		return fmt.Sprintf("%s@%d: no reading", p.DeviceID, p.Timestamp)
	}
	s := fmt.Sprintf("%s@%d: %.1f°C %.0f%%RH rssi=%d", p.DeviceID, p.Timestamp, p.Temperature, p.Humidity, p.RSSI)
	if !p.Valid {
		s += " (stale)"
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

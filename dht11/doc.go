// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht11 controls an AOSONG DHT11 temperature and humidity sensor over
// its single-wire data line.
//
// The host pulls the line low for 18ms to wake the sensor, releases it and
// then measures the width of the pulses the sensor drives back: an 80µs
// low/high acknowledgment followed by 40 bits, each a 50µs low followed by a
// 26-28µs (0) or 70µs (1) high. The five bytes are humidity integral and
// decimal parts, temperature integral and decimal parts and an additive
// checksum.
//
// Pulse widths are measured by busy-polling the pin, so the exchange runs
// inside a Guard that keeps the goroutine on its thread and the garbage
// collector off. Spurious timings still happen on a loaded host; Acquire
// retries and falls back to the last good reading, flagged as stale.
//
// The dht11.Dev type implements the physic.SenseEnv interface.
//
// # Datasheet
//
// https://www.mouser.com/datasheet/2/758/DHT11-Technical-Data-Sheet-Translated-Version-1143054.pdf
package dht11

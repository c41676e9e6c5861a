// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dhtstation is a container for a DHT11 weather station: the sensor
// driver in dht11, the acquisition loop in station and the display and
// network collaborators it drives.
//
// The dhtstation command in cmd/dhtstation wires them together.
package dhtstation

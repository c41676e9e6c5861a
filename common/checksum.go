// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the additive checksum of a DHT11 frame.
package common

// Sum8 returns the sum of bytes modulo 256. Single-wire humidity sensors of
// the DHT family append it to every frame.
func Sum8(bytes []byte) byte {
	var sum byte
	for _, val := range bytes {
		sum += val
	}
	return sum
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import "sync"

// Cache holds the last reading that passed checksum validation.
//
// The zero value is empty and ready to use. It is safe for concurrent use.
type Cache struct {
	mu sync.Mutex
	r  Reading
	ok bool
}

// Store replaces the cached reading.
func (c *Cache) Store(r Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.r = r
	c.ok = true
}

// Load returns a copy of the cached reading, if any.
func (c *Cache) Load() (Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r, c.ok
}

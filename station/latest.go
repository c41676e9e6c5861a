// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package station

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/GermanBionicSystems/dhtstation/dht11"
)

// Snapshot is the most recent outcome of the acquisition loop.
type Snapshot struct {
	Reading dht11.Reading
	// Has is false until a reading, fresh or stale, was stored.
	Has bool
	// Cycle is the loop iteration that stored the snapshot.
	Cycle int
}

// Latest hands the last snapshot from the acquisition loop to its readers.
//
// Both sides wait a bounded time for the lock; failing to get it means no
// update, or no read, this time around. Readers always see a snapshot as a
// whole.
type Latest struct {
	sem *semaphore.Weighted
	s   Snapshot
}

// NewLatest returns an empty Latest.
func NewLatest() *Latest {
	return &Latest{sem: semaphore.NewWeighted(1)}
}

// Store records s. It returns false if the lock could not be taken within
// timeout.
func (l *Latest) Store(s Snapshot, timeout time.Duration) bool {
	if !l.lock(timeout) {
		return false
	}
	defer l.unlock()
	l.s = s
	return true
}

// Load returns the last stored snapshot. ok is false if the lock could not be
// taken within timeout.
func (l *Latest) Load(timeout time.Duration) (s Snapshot, ok bool) {
	if !l.lock(timeout) {
		return Snapshot{}, false
	}
	defer l.unlock()
	return l.s, true
}

func (l *Latest) lock(timeout time.Duration) bool {
	if l.sem.TryAcquire(1) {
		return true
	}
	if timeout <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.sem.Acquire(ctx, 1) == nil
}

func (l *Latest) unlock() {
	l.sem.Release(1)
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Guard keeps the calling goroutine from being interrupted while a frame is
// exchanged.
//
// Suspend returns the function that undoes it. The returned function must be
// called on every exit path, typically as
//
//	defer g.Suspend()()
type Guard interface {
	Suspend() (resume func())
}

// NoGuard is a Guard that does nothing. It is meant for simulated lines,
// where timing does not depend on scheduling.
var NoGuard Guard = noGuard{}

type noGuard struct{}

func (noGuard) Suspend() func() { return func() {} }

// RuntimeGuard locks the goroutine to its OS thread and turns the garbage
// collector off for the duration of the exchange. On linux, a Priority above
// zero also moves the thread to the SCHED_FIFO real-time class; this needs
// CAP_SYS_NICE and is skipped silently without it.
type RuntimeGuard struct {
	Priority int
}

// Suspend implements Guard.
//
// The collector setting is process wide: it is turned off by the first of
// overlapping Suspend calls and restored by the last resume.
func (g RuntimeGuard) Suspend() func() {
	runtime.LockOSThread()
	gcOff()
	restorePriority := raisePriority(g.Priority)
	return sync.OnceFunc(func() {
		restorePriority()
		gcOn()
		runtime.UnlockOSThread()
	})
}

var gc struct {
	mu      sync.Mutex
	holders int
	percent int
}

func gcOff() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.holders == 0 {
		gc.percent = debug.SetGCPercent(-1)
	}
	gc.holders++
}

func gcOn() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.holders--; gc.holders == 0 {
		debug.SetGCPercent(gc.percent)
	}
}

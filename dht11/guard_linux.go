// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import "golang.org/x/sys/unix"

// raisePriority switches the calling thread to SCHED_FIFO and returns the
// function restoring its previous scheduling attributes.
func raisePriority(priority int) func() {
	if priority <= 0 {
		return func() {}
	}
	prev, err := unix.SchedGetAttr(0, 0)
	if err != nil {
		return func() {}
	}
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return func() {}
	}
	return func() {
		_ = unix.SchedSetAttr(0, prev, 0)
	}
}

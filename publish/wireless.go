// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrNoInterface is returned when the wireless interface is not listed.
var ErrNoInterface = errors.New("publish: wireless interface not found")

// WirelessSignal reads the signal level of a Linux wireless interface from
// /proc/net/wireless.
type WirelessSignal struct {
	Interface string
	// Path defaults to /proc/net/wireless.
	Path string
}

// RSSI implements station.SignalSource. It returns the signal level in dBm.
func (w *WirelessSignal) RSSI() (int, error) {
	p := w.Path
	if p == "" {
		p = "/proc/net/wireless"
	}
	f, err := os.Open(p)
	if err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}
	defer f.Close()
	return parseWireless(f, w.Interface)
}

// parseWireless returns the level column of iface. Lines look like:
//
//	wlan0: 0000   54.  -56.  -256        0      0      0      0     87        0
func parseWireless(r io.Reader, iface string) (int, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		name, rest, ok := strings.Cut(s.Text(), ":")
		if !ok || strings.TrimSpace(name) != iface {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, fmt.Errorf("publish: short line for %s: %q", iface, s.Text())
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("publish: level of %s: %w", iface, err)
		}
		return int(v), nil
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}
	return 0, fmt.Errorf("%w: %s", ErrNoInterface, iface)
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// dhtstation reads a DHT11 sensor, shows the reading and publishes it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/dhtstation/station"
)

var version = "dev"

const appName = "dhtstation"

// exitRestart asks the supervisor to start the process again.
const exitRestart = 75

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, station.ErrRestartRequired):
		slog.Error("restart required", "err", err)
		stop()
		os.Exit(exitRestart)
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		stop()
		os.Exit(1)
	}
}

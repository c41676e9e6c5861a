// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/GermanBionicSystems/dhtstation/internal/config"
)

// New returns a colourised text logger in dev and a JSON logger otherwise,
// both writing to w. A nil w is stderr.
func New(cfg config.Config, w io.Writer, version, appName string) *slog.Logger {
	if cfg.AppEnv == "dev" {
		noColor := false
		if w == nil {
			w = colorable.NewColorableStderr()
			noColor = !isatty.IsTerminal(os.Stderr.Fd())
		}
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  cfg.LogLevel <= slog.LevelDebug,
			TimeFormat: time.Kitchen,
			NoColor:    noColor,
		})
		return slog.New(h).With("app", appName)
	}
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}

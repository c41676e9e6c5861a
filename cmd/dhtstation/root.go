// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GermanBionicSystems/dhtstation/dht11"
	"github.com/GermanBionicSystems/dhtstation/internal/app"
	"github.com/GermanBionicSystems/dhtstation/internal/config"
	"github.com/GermanBionicSystems/dhtstation/internal/logging"
)

type globals struct {
	configPath string
	simulate   bool
	noColor    bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "DHT11 weather station",
		Long:          "dhtstation reads a DHT11 on a GPIO line, shows the reading on a panel or the terminal\nand publishes it over HTTP or MQTT.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.noColor {
				color.NoColor = true
			}
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.simulate {
				cfg.Sensor.Simulate = true
			}
			g.cfg = cfg
			g.logger = logging.New(cfg, nil, version, appName)
			slog.SetDefault(g.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "TOML configuration file")
	root.PersistentFlags().BoolVar(&g.simulate, "simulate", false, "use a simulated sensor instead of the GPIO line")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored output")
	root.AddCommand(newRunCmd(g), newReadCmd(g))
	return root
}

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the acquisition loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g.logger.Info("starting", "version", version, "env", g.cfg.AppEnv, "log_level", g.cfg.LogLevel.String())
			err := app.Run(cmd.Context(), g.cfg, g.logger)
			g.logger.Info("shutting down")
			return err
		},
	}
}

func newReadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Take one reading and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := app.Read(cmd.Context(), g.cfg, g.logger)
			if err != nil {
				return err
			}
			return printReading(cmd.OutOrStdout(), &r)
		},
	}
}

var (
	colorFresh = color.New(color.FgHiGreen, color.Bold)
	colorStale = color.New(color.FgHiYellow)
)

func printReading(w io.Writer, r *dht11.Reading) error {
	line := fmt.Sprintf("%s %s", dht11.FormatTemperature(r), dht11.FormatHumidity(r))
	if !r.Valid {
		_, err := colorStale.Fprintln(w, line, "(stale)")
		return err
	}
	_, err := colorFresh.Fprintln(w, line)
	return err
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/dhtstation/dht11"
)

func TestPrintReading(t *testing.T) {
	color.NoColor = true
	r := dht11.Reading{Temperature: physic.ZeroCelsius + 22500*physic.MilliKelvin, Humidity: 41 * physic.PercentRH, Valid: true}
	var buf bytes.Buffer
	if err := printReading(&buf, &r); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "22.5C 41%\n" {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	r.Valid = false
	if err := printReading(&buf, &r); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "22.5C 41% (stale)\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestReadCmd_simulated(t *testing.T) {
	t.Chdir(t.TempDir())
	color.NoColor = true
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"read", "--simulate"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if s := out.String(); s != "23.0C 45%\n" {
		t.Errorf("got %q", s)
	}
}

func TestRootCmd_badConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	root := newRootCmd()
	root.SetArgs([]string{"read", "--config", "missing.toml"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "missing.toml") {
		t.Fatalf("expected config error, got %v", err)
	}
}

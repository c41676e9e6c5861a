// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package station

import (
	"image"
	"image/color"

	"github.com/GermanBionicSystems/dhtstation/dht11"
	"github.com/GermanBionicSystems/dhtstation/textdisplay"
)

// Colours of the panel.
var (
	Black  = color.NRGBA{A: 0xFF}
	White  = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	Red    = color.NRGBA{R: 0xFF, A: 0xFF}
	Green  = color.NRGBA{G: 0xFF, A: 0xFF}
	Blue   = color.NRGBA{B: 0xFF, A: 0xFF}
	Cyan   = color.NRGBA{G: 0xFF, B: 0xFF, A: 0xFF}
	Yellow = color.NRGBA{R: 0xFF, G: 0xFF, A: 0xFF}
)

// Text is one string of a screen.
type Text struct {
	X, Y int
	S    string
	FG   color.Color
}

var (
	screenStartup = []Text{
		{20, 60, "SYSTEM", Cyan},
		{20, 100, "READY", Green},
	}
	screenStopped = []Text{
		{20, 100, "STOPPED", Red},
	}
)

// Layout of the reading screen.
const (
	labelX  = 10
	valueX  = 120
	tempY   = 80
	humdY   = 140
	bannerY = 200
)

// Screen returns the reading screen for r, nil meaning no reading. banner
// adds the sensor error line.
func Screen(r *dht11.Reading, banner bool) []Text {
	t := []Text{
		{labelX, tempY, "TEMP:", White},
		{valueX, tempY, dht11.FormatTemperature(r), Red},
		{labelX, humdY, "HUMD:", White},
		{valueX, humdY, dht11.FormatHumidity(r), Blue},
	}
	if banner {
		t = append(t, Text{labelX, bannerY, "SENSOR ERR", Yellow})
	}
	return t
}

func (s *Station) render(r *dht11.Reading) {
	s.show(Screen(r, s.warned))
}

// show replaces the screen with texts. Display errors are logged and
// otherwise ignored.
func (s *Station) show(texts []Text) {
	if s.display == nil {
		return
	}
	log := s.opts.Logger
	if err := s.display.Clear(image.Rectangle{}, Black); err != nil {
		log.Warn("display clear failed", "err", err)
		return
	}
	for _, t := range texts {
		if err := s.display.DrawText(t.X, t.Y, textdisplay.Fit(t.S, s.opts.Charset), t.FG, Black); err != nil {
			log.Warn("display draw failed", "text", t.S, "err", err)
		}
	}
	if f, ok := s.display.(Flusher); ok {
		if err := f.Flush(); err != nil {
			log.Warn("display flush failed", "err", err)
		}
	}
}

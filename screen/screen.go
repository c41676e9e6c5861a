// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package screen implements a 2D display.Drawer that outputs to terminal
// (stdout) using ANSI color codes.
//
// Each pixel, after downscaling, is one coloured block. Useful to run the
// station on a host with no panel attached.
package screen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this display.
type Opts struct {
	W, H int
	// Scale keeps one pixel out of Scale in each direction. Defaults to 1.
	Scale   int
	Palette *ansi256.Palette
	// Out defaults to a colour-capable stdout.
	Out io.Writer

	_ struct{}
}

// Dev is a small panel emulator that outputs to the console.
type Dev struct {
	w       io.Writer
	scale   int
	palette ansi256.Palette

	img *image.NRGBA
	buf bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.Out
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	s := opts.Scale
	if s < 1 {
		s = 1
	}
	return &Dev{
		w:       w,
		scale:   s,
		palette: *p,
		img:     image.NewNRGBA(image.Rect(0, 0, opts.W, opts.H)),
	}
}

func (d *Dev) String() string {
	b := d.img.Bounds()
	return fmt.Sprintf("Screen{%dx%d}", b.Dx(), b.Dy())
}

// Halt implements conn.Resource.
//
// It resets the terminal colours so the console is not left corrupted.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\033[0m\n"))
	return err
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return d.img.Bounds()
}

// Draw implements display.Drawer.
//
// The console is redrawn from its top-left corner on every call.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	draw.Draw(d.img, r.Intersect(d.Bounds()), src, sp, draw.Src)
	return d.refresh()
}

func (d *Dev) refresh() error {
	// Reuse the buffer to keep allocations per frame down.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\033[H\033[0m")
	b := d.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += d.scale {
		for x := b.Min.X; x < b.Max.X; x += d.scale {
			_, _ = io.WriteString(&d.buf, d.palette.Block(d.img.NRGBAAt(x, y)))
		}
		_, _ = d.buf.WriteString("\033[0m\n")
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}

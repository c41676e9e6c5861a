// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package textdisplay draws short strings at pixel positions on any
// display.Drawer.
//
// Text is composed into an in-memory frame with gg and pushed to the device
// by Flush. Positions are the top-left corner of the text box.
package textdisplay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"periph.io/x/conn/v3/display"
)

// DefaultCharset is the glyph set of the small panel fonts the station is
// designed for.
const DefaultCharset = " -.0123456789:%ACDEHIMNPRSTUY"

// ErrUnsupportedGlyph is matched by *GlyphError.
var ErrUnsupportedGlyph = errors.New("textdisplay: unsupported glyph")

// GlyphError is returned by DrawText for text the charset cannot render.
type GlyphError struct {
	Glyph rune
	Text  string
}

func (e *GlyphError) Error() string {
	return fmt.Sprintf("textdisplay: glyph %q in %q is not in the charset", e.Glyph, e.Text)
}

// Is reports whether target is ErrUnsupportedGlyph.
func (e *GlyphError) Is(target error) bool {
	return target == ErrUnsupportedGlyph
}

// Fit maps s onto charset: letters are upper-cased, 'O' becomes '0' and any
// other rune outside charset becomes a space. An empty charset is
// DefaultCharset.
func Fit(s, charset string) string {
	if charset == "" {
		charset = DefaultCharset
	}
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		switch {
		case strings.ContainsRune(charset, r):
			return r
		case r == 'O' && strings.ContainsRune(charset, '0'):
			return '0'
		default:
			return ' '
		}
	}, s)
}

// LoadFace parses a TrueType font and returns a face of the given size in
// points at 72 DPI.
func LoadFace(ttf []byte, size float64) (font.Face, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("textdisplay: parse font: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull}), nil
}

// Opts holds the configuration options for the renderer.
type Opts struct {
	// Face defaults to basicfont.Face7x13.
	Face font.Face
	// Charset lists the runes DrawText accepts. Defaults to DefaultCharset.
	Charset string
}

// Renderer composes text for a display.Drawer.
type Renderer struct {
	mu      sync.Mutex
	dst     display.Drawer
	dc      *gg.Context
	charset string
}

// New returns a Renderer with a frame the size of dst. The Opts can be nil.
func New(dst display.Drawer, opts *Opts) (*Renderer, error) {
	if dst == nil {
		return nil, errors.New("textdisplay: drawer is nil")
	}
	b := dst.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("textdisplay: %s has empty bounds %v", dst, b)
	}
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.Face == nil {
		o.Face = basicfont.Face7x13
	}
	if o.Charset == "" {
		o.Charset = DefaultCharset
	}
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetFontFace(o.Face)
	return &Renderer{dst: dst, dc: dc, charset: o.Charset}, nil
}

// Bounds returns the frame size.
func (r *Renderer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.dc.Width(), r.dc.Height())
}

// Clear fills area with c. An empty area is the whole frame.
func (r *Renderer) Clear(area image.Rectangle, c color.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if area.Empty() {
		area = r.Bounds()
	}
	r.dc.SetColor(c)
	r.dc.DrawRectangle(float64(area.Min.X), float64(area.Min.Y), float64(area.Dx()), float64(area.Dy()))
	r.dc.Fill()
	return nil
}

// DrawText draws s with its top-left corner at x, y in fg over a box of bg.
// A nil bg leaves the background untouched.
func (r *Renderer) DrawText(x, y int, s string, fg, bg color.Color) error {
	for _, g := range s {
		if !strings.ContainsRune(r.charset, g) {
			return &GlyphError{Glyph: g, Text: s}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, h := r.dc.MeasureString(s)
	if bg != nil {
		r.dc.SetColor(bg)
		r.dc.DrawRectangle(float64(x), float64(y), w, h)
		r.dc.Fill()
	}
	r.dc.SetColor(fg)
	r.dc.DrawStringAnchored(s, float64(x), float64(y), 0, 1)
	return nil
}

// Measure returns the size of the box DrawText would fill for s.
func (r *Renderer) Measure(s string) (w, h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fw, fh := r.dc.MeasureString(s)
	return int(fw + 0.5), int(fh + 0.5)
}

// Image returns the composed frame.
func (r *Renderer) Image() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dc.Image()
}

// Flush pushes the frame to the device.
func (r *Renderer) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.dst.Draw(r.dst.Bounds(), r.dc.Image(), image.Point{}); err != nil {
		return fmt.Errorf("textdisplay: flush to %s: %w", r.dst, err)
	}
	return nil
}

func (r *Renderer) String() string {
	return fmt.Sprintf("textdisplay{%s}", r.dst)
}

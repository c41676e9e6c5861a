// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panelstream mirrors a station panel to web browsers.
//
// Sink is a display.Drawer and an http.Handler. Every GET request receives an
// endless multipart/x-mixed-replace stream ("MJPEG") carrying the current
// frame, then a new one on every Draw and at least once per KeepAlive.
// Frames are PNG unless Opts.Format or the "format" URL parameter asks for
// JPEG.
package panelstream

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"mime"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"
)

// Opts holds the configuration options for the sink.
type Opts struct {
	W, H   int
	Format Format
	// KeepAlive resends the frame when nothing was drawn for this long.
	// Defaults to 10s.
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// Sink is a frame buffer streamed to HTTP clients.
type Sink struct {
	format    Format
	keepAlive time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	frame   *image.RGBA
	cache   map[Format][]byte
	viewers map[*viewer]struct{}
}

type viewer struct {
	refresh chan struct{}
	stop    chan struct{}
}

// New returns a Sink with an opaque black frame of the given size.
func New(opts *Opts) *Sink {
	frame := image.NewRGBA(image.Rect(0, 0, opts.W, opts.H))
	draw.Draw(frame, frame.Bounds(), image.Black, image.Point{}, draw.Src)
	k := opts.KeepAlive
	if k <= 0 {
		k = 10 * time.Second
	}
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Sink{
		format:    opts.Format,
		keepAlive: k,
		logger:    l,
		frame:     frame,
		cache:     map[Format][]byte{},
		viewers:   map[*viewer]struct{}{},
	}
}

func (s *Sink) String() string {
	return "PanelStream"
}

// Halt implements conn.Resource. It ends every running stream.
func (s *Sink) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.viewers {
		select {
		case v.stop <- struct{}{}:
		default:
		}
	}
	return nil
}

// ColorModel implements display.Drawer.
func (s *Sink) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements display.Drawer.
func (s *Sink) Bounds() image.Rectangle {
	return s.frame.Bounds()
}

// Draw implements display.Drawer.
func (s *Sink) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draw.Draw(s.frame, r.Intersect(s.frame.Bounds()), src, sp, draw.Src)
	clear(s.cache)
	for v := range s.viewers {
		select {
		case v.refresh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Viewers returns the number of open streams.
func (s *Sink) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// snapshot returns the encoded current frame. The slice is shared and must
// not be modified.
func (s *Sink) snapshot(f Format) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.cache[f]; ok {
		return b, nil
	}
	b, err := f.encode(s.frame)
	if err != nil {
		return nil, err
	}
	s.cache[f] = b
	return b, nil
}

// ServeHTTP implements http.Handler.
func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	f := s.format
	if v := r.URL.Query().Get("format"); v != "" {
		var err error
		if f, err = ParseFormat(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	pw := newPartWriter(w)
	w.Header().Set("Content-Type", mime.FormatMediaType("multipart/x-mixed-replace", map[string]string{"boundary": pw.boundary}))

	v := &viewer{refresh: make(chan struct{}, 1), stop: make(chan struct{}, 1)}
	s.mu.Lock()
	s.viewers[v] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.viewers, v)
		s.mu.Unlock()
	}()
	s.logger.Debug("panel viewer connected", "remote", r.RemoteAddr, "format", f)

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", f.mimeType())
	header.Set("Content-Transfer-Encoding", "binary")
	t := time.NewTimer(s.keepAlive)
	defer t.Stop()
	for {
		b, err := s.snapshot(f)
		if err != nil {
			s.logger.Error("panel frame encoding failed", "format", f, "err", err)
			return
		}
		// There is no way to report an error in the middle of a stream.
		if err := pw.writePart(header, b); err != nil {
			s.logger.Debug("panel viewer gone", "remote", r.RemoteAddr, "err", err)
			return
		}
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		t.Reset(s.keepAlive)
		select {
		case <-v.refresh:
		case <-t.C:
		case <-v.stop:
			return
		case <-r.Context().Done():
			return
		}
	}
}

var _ display.Drawer = &Sink{}
var _ http.Handler = &Sink{}
var _ fmt.Stringer = &Sink{}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package station

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/dhtstation/dht11"
	"github.com/GermanBionicSystems/dhtstation/telemetry"
)

var at = time.Unix(1760000000, 0)

var good = dht11.Reading{
	Temperature: physic.ZeroCelsius + 22500*physic.MilliKelvin,
	Humidity:    41 * physic.PercentRH,
	Valid:       true,
	Time:        at,
}

type result struct {
	r   dht11.Reading
	err error
}

// script plays results in order and repeats the last one.
type script struct {
	mu    sync.Mutex
	calls int
	res   []result
}

func (s *script) Acquire() (dht11.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.res)-1)
	s.calls++
	return s.res[i].r, s.res[i].err
}

func (s *script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// panel records every screen as the list of strings drawn after a Clear.
type panel struct {
	mu      sync.Mutex
	screens [][]string
	flushes int
}

func (p *panel) Clear(image.Rectangle, color.Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screens = append(p.screens, nil)
	return nil
}

func (p *panel) DrawText(x, y int, s string, fg, bg color.Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.screens) - 1
	p.screens[i] = append(p.screens[i], s)
	return nil
}

func (p *panel) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *panel) last() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.screens) == 0 {
		return nil
	}
	return p.screens[len(p.screens)-1]
}

type sink struct {
	got chan telemetry.Payload
	err error
}

func (s *sink) Publish(ctx context.Context, p telemetry.Payload) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	select {
	case s.got <- p:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type signal struct {
	rssi int
	err  error
}

func (s signal) RSSI() (int, error) { return s.rssi, s.err }

func getStation(t *testing.T, s Sensor, d TextRenderer, p Publisher, sig SignalSource, o Opts) *Station {
	if o.Now == nil {
		o.Now = func() time.Time { return at }
	}
	st, err := New(s, d, p, sig, &o)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestNew(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, nil); err == nil {
		t.Error("New accepted a nil sensor")
	}
	st, err := New(&script{res: []result{{r: good}}}, nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.opts.Interval != 3*time.Second || st.opts.PublishEvery != 20 || st.opts.StartupDelay != 2*time.Second {
		t.Errorf("unexpected defaults %+v", st.opts)
	}
	if st.opts.WarnAfter != 5 || st.opts.RestartAfter != 20 || st.opts.DeviceID != "dhtstation-01" {
		t.Errorf("unexpected defaults %+v", st.opts)
	}
}

func TestStation_step(t *testing.T) {
	d := &panel{}
	st := getStation(t, &script{res: []result{{r: good}}}, d, nil, nil, Opts{})
	if err := st.step(); err != nil {
		t.Fatal(err)
	}
	snap, ok := st.Latest().Load(0)
	if !ok {
		t.Fatal("snapshot locked")
	}
	if diff := cmp.Diff(Snapshot{Reading: good, Has: true, Cycle: 1}, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	want := []string{"TEMP:", "22.5C", "HUMD:", "41%"}
	if diff := cmp.Diff(want, d.last()); diff != "" {
		t.Errorf("screen mismatch (-want +got):\n%s", diff)
	}
	if d.flushes != 1 {
		t.Errorf("expected 1 flush, got %d", d.flushes)
	}
}

func TestStation_step_noReading(t *testing.T) {
	d := &panel{}
	st := getStation(t, &script{res: []result{{err: dht11.ErrNoData}}}, d, nil, nil, Opts{})
	if err := st.step(); err != nil {
		t.Fatal(err)
	}
	if snap, _ := st.Latest().Load(0); snap.Has {
		t.Errorf("failed cycle stored %+v", snap)
	}
	want := []string{"TEMP:", "--.-C", "HUMD:", "--%"}
	if diff := cmp.Diff(want, d.last()); diff != "" {
		t.Errorf("screen mismatch (-want +got):\n%s", diff)
	}
}

func TestStation_failures(t *testing.T) {
	stale := good
	stale.Valid = false
	res := []result{{r: good}}
	for range 4 {
		res = append(res, result{r: stale})
	}
	res = append(res, result{err: dht11.ErrNoData}, result{r: good}, result{err: dht11.ErrNoData})
	var buf bytes.Buffer
	d := &panel{}
	st := getStation(t, &script{res: res}, d, nil, nil, Opts{
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	banner := func() bool {
		l := d.last()
		return len(l) == 5 && l[4] == "SENS0R ERR"
	}

	for i := range 5 {
		if err := st.step(); err != nil {
			t.Fatal(err)
		}
		if banner() {
			t.Fatalf("banner shown after %d cycles", i+1)
		}
	}
	// The stale readings are still handed out.
	if snap, _ := st.Latest().Load(0); !snap.Has || snap.Reading != stale || snap.Cycle != 5 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if err := st.step(); err != nil {
		t.Fatal(err)
	}
	if !banner() || st.failures != 5 {
		t.Fatalf("no banner after 5 failures: %v", d.last())
	}
	if !strings.Contains(buf.String(), "sensor failing") {
		t.Errorf("no warning logged: %s", buf.String())
	}
	if err := st.step(); err != nil {
		t.Fatal(err)
	}
	if banner() || st.failures != 0 {
		t.Errorf("banner kept after recovery: %v", d.last())
	}
	if !strings.Contains(buf.String(), "sensor recovered") {
		t.Errorf("no recovery logged: %s", buf.String())
	}
}

func TestStation_restart(t *testing.T) {
	sensor := &script{res: []result{{err: dht11.ErrNoData}}}
	st := getStation(t, sensor, nil, nil, nil, Opts{RestartAfter: 3})
	for range 2 {
		if err := st.step(); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.step(); !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("expected ErrRestartRequired, got %v", err)
	}

	never := getStation(t, sensor, nil, nil, nil, Opts{RestartAfter: -1})
	for range 50 {
		if err := never.step(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStation_Run(t *testing.T) {
	d := &panel{}
	pub := &sink{got: make(chan telemetry.Payload, 4)}
	sensor := &script{res: []result{{r: good}}}
	st := getStation(t, sensor, d, pub, signal{rssi: -61}, Opts{
		DeviceID:     "st1",
		Interval:     time.Millisecond,
		PublishEvery: 2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- st.Run(ctx) }()

	select {
	case p := <-pub.got:
		want := telemetry.Payload{DeviceID: "st1", Timestamp: at.Unix(), Temperature: 22.5, Humidity: 41, RSSI: -61, Valid: true}
		if diff := cmp.Diff(want, p); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("nothing published")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if n := sensor.Calls(); n < 2 {
		t.Errorf("expected at least 2 cycles, got %d", n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if diff := cmp.Diff([]string{"SYSTEM", "READY"}, d.screens[0]); diff != "" {
		t.Errorf("startup screen mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ST0PPED"}, d.screens[len(d.screens)-1]); diff != "" {
		t.Errorf("stop screen mismatch (-want +got):\n%s", diff)
	}
}

func TestStation_Run_restart(t *testing.T) {
	d := &panel{}
	st := getStation(t, &script{res: []result{{err: dht11.ErrNoData}}}, d, nil, nil, Opts{
		Interval:     time.Millisecond,
		RestartAfter: 3,
	})
	if err := st.Run(context.Background()); !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("expected ErrRestartRequired, got %v", err)
	}
	if diff := cmp.Diff([]string{"ST0PPED"}, d.last()); diff != "" {
		t.Errorf("stop screen mismatch (-want +got):\n%s", diff)
	}
}

func TestStation_Run_restartWithPublisher(t *testing.T) {
	d := &panel{}
	pub := &sink{got: make(chan telemetry.Payload)}
	st := getStation(t, &script{res: []result{{err: dht11.ErrNoData}}}, d, pub, nil, Opts{
		Interval:     time.Millisecond,
		PublishEvery: 1,
		RestartAfter: 3,
	})
	done := make(chan error)
	go func() { done <- st.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrRestartRequired) {
			t.Fatalf("expected ErrRestartRequired, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return while the publisher was running")
	}
	if diff := cmp.Diff([]string{"ST0PPED"}, d.last()); diff != "" {
		t.Errorf("stop screen mismatch (-want +got):\n%s", diff)
	}
}

func TestStation_Run_cancelledDuringStartup(t *testing.T) {
	sensor := &script{res: []result{{r: good}}}
	st := getStation(t, sensor, nil, nil, nil, Opts{StartupDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if sensor.Calls() != 0 {
		t.Errorf("sensor read %d times", sensor.Calls())
	}
}

func TestStation_publish(t *testing.T) {
	pub := &sink{got: make(chan telemetry.Payload, 1)}
	st := getStation(t, &script{res: []result{{r: good}}}, nil, pub, signal{err: errors.New("no wifi")}, Opts{})

	st.publish(context.Background())
	p := <-pub.got
	want := telemetry.Payload{DeviceID: "dhtstation-01", Timestamp: at.Unix(), Temperature: telemetry.Sentinel, Humidity: telemetry.Sentinel}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	st.latest.lock(0)
	st.publish(context.Background())
	st.latest.unlock()
	select {
	case p := <-pub.got:
		t.Errorf("published %v while the snapshot was locked", p)
	default:
	}
}

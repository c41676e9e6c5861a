// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/GermanBionicSystems/dhtstation/telemetry"
)

// ErrNotConnected is returned by MQTT.Publish while the broker is
// unreachable.
var ErrNotConnected = errors.New("publish: mqtt client not connected")

// ErrStopped is returned once MQTT.Disconnect was called.
var ErrStopped = errors.New("publish: mqtt client stopped")

// MQTTOpts holds the configuration of the MQTT publisher.
type MQTTOpts struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string
	// QoS of publications. Zero means 1.
	QoS byte
	// Timeout bounds the wait for one publication. Defaults to 5s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Topic returns the topic telemetry of deviceID is published on.
func Topic(deviceID string) string {
	return fmt.Sprintf("stations/%s/telemetry", deviceID)
}

// MQTT publishes payloads to a broker.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMQTT returns a publisher for the broker in o. Call Connect before
// publishing.
func NewMQTT(o MQTTOpts) (*MQTT, error) {
	if o.Broker == "" {
		return nil, errors.New("publish: empty mqtt broker")
	}
	if o.ClientID == "" {
		return nil, errors.New("publish: empty mqtt client id")
	}
	m := newMQTT(nil, o)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.setConnected(true)
		m.logger.Info("mqtt connected", "broker", o.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.setConnected(false)
		m.logger.Warn("mqtt connection lost", "err", err)
	})
	m.client = mqtt.NewClient(opts)
	return m, nil
}

func newMQTT(c mqtt.Client, o MQTTOpts) *MQTT {
	if o.QoS == 0 {
		o.QoS = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return &MQTT{
		client:  c,
		qos:     o.QoS,
		timeout: o.Timeout,
		logger:  o.Logger,
		stopCh:  make(chan struct{}),
	}
}

// Connect waits for the first connection to the broker. The client keeps
// reconnecting on its own afterwards.
func (m *MQTT) Connect(ctx context.Context) error {
	select {
	case <-m.stopCh:
		return ErrStopped
	default:
	}
	if m.IsConnected() {
		return nil
	}
	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish: mqtt connect: %w", err)
		}
		m.setConnected(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopCh:
		return ErrStopped
	}
}

// Publish implements station.Publisher.
func (m *MQTT) Publish(ctx context.Context, p telemetry.Payload) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	topic := Topic(p.DeviceID)
	token := m.client.Publish(topic, m.qos, false, data)
	t := time.NewTimer(m.timeout)
	defer t.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return fmt.Errorf("publish: timeout on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: topic %s: %w", topic, err)
	}
	m.logger.Debug("published telemetry", "topic", topic)
	return nil
}

// IsConnected returns whether the client is connected.
func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected && m.client.IsConnected()
}

// Disconnect stops the client. It is safe to call more than once.
func (m *MQTT) Disconnect() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.client.Disconnect(250)
	m.setConnected(false)
	m.logger.Info("mqtt disconnected")
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

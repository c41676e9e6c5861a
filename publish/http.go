// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GermanBionicSystems/dhtstation/telemetry"
)

// DefaultHTTPTimeout bounds a whole request.
const DefaultHTTPTimeout = 10 * time.Second

// StatusError is returned for a non-2xx reply.
type StatusError struct {
	Code int
	// Body holds the start of the reply.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("publish: server replied %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("publish: server replied %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// HTTP posts payloads to a collector.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP returns an HTTP publisher posting to url. A nil client gets one
// with DefaultHTTPTimeout.
func NewHTTP(url string, client *http.Client) (*HTTP, error) {
	if url == "" {
		return nil, errors.New("publish: empty collector url")
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTP{url: url, client: client}, nil
}

// Publish implements station.Publisher.
func (h *HTTP) Publish(ctx context.Context, p telemetry.Payload) error {
	body, err := p.Marshal()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("publish: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish: post %s: %w", h.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (h *HTTP) String() string {
	return "http{" + h.url + "}"
}

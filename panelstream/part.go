// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panelstream

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
)

// partWriter writes an unbounded multipart body, one flushed part at a time.
// mime/multipart.Writer only closes a part when the next one starts.
type partWriter struct {
	w        io.Writer
	boundary string
	started  bool
}

func newPartWriter(w io.Writer) *partWriter {
	// RFC 2046 5.1.1 allows up to 70 characters.
	var b [34]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return &partWriter{w: w, boundary: hex.EncodeToString(b[:])}
}

// writePart sends one part followed by the boundary that ends it. header
// gets its Content-Length set.
func (p *partWriter) writePart(header textproto.MIMEHeader, body []byte) error {
	header.Set("Content-Length", strconv.Itoa(len(body)))
	var buf bytes.Buffer
	if !p.started {
		fmt.Fprintf(&buf, "--%s\r\n", p.boundary)
		p.started = true
	}
	for k, vs := range header {
		for _, v := range vs {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	fmt.Fprintf(&buf, "\r\n--%s\r\n", p.boundary)
	_, err := buf.WriteTo(p.w)
	return err
}

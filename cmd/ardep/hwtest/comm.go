// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package hwtest

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	BaudRate    = 115200
	ReadTimeout = 2 * time.Second
)

var ErrReadTimeout = errors.New("timed out waiting for the message delimiter")

// Port is the part of a serial port the harness needs.
type Port interface {
	io.ReadWriter
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Drain() error
	Close() error
}

// Comm exchanges delimited frames with one bench device.
type Comm struct {
	Device    string
	delimiter byte
	port      Port
	pending   []byte
	logger    *zap.Logger
}

// Open opens device at 115200 baud and resets its buffers.
func Open(device string, delimiter byte, logger *zap.Logger) (*Comm, error) {
	dev, err := serial.Open(device, &serial.Mode{BaudRate: BaudRate})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("the port '%s' was not found", device)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", device, err)
	}
	if err := dev.SetReadTimeout(ReadTimeout); err != nil {
		dev.Close()
		return nil, err
	}
	c, err := NewComm(device, &serialPort{dev}, delimiter, logger)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return c, nil
}

// NewComm wraps an already opened port.
func NewComm(device string, port Port, delimiter byte, logger *zap.Logger) (*Comm, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, err
	}
	if err := port.ResetOutputBuffer(); err != nil {
		return nil, err
	}
	return &Comm{
		Device:    device,
		delimiter: delimiter,
		port:      port,
		logger:    logger.With(zap.String("device", device)),
	}, nil
}

func (c *Comm) Close() error {
	return c.port.Close()
}

// Transmit writes a raw frame and returns the raw answer including its
// delimiter.
func (c *Comm) Transmit(ctx context.Context, msg []byte) ([]byte, error) {
	c.logger.Debug("transmitting message", zap.String("data", hexDump(msg)))

	c.pending = nil
	if err := c.port.ResetInputBuffer(); err != nil {
		return nil, err
	}
	if _, err := c.port.Write(msg); err != nil {
		return nil, fmt.Errorf("failed to write to '%s': %w", c.Device, err)
	}
	if err := c.port.Drain(); err != nil {
		return nil, err
	}
	return c.Receive(ctx)
}

// Receive reads until the delimiter.
func (c *Comm) Receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 256)
	for {
		if idx := bytes.IndexByte(c.pending, c.delimiter); idx >= 0 {
			msg := c.pending[:idx+1]
			c.pending = append([]byte(nil), c.pending[idx+1:]...)
			c.logger.Debug("received message", zap.String("data", hexDump(msg)))
			return msg, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.port.Read(buf)
		c.pending = append(c.pending, buf[:n]...)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				return nil, fmt.Errorf("%w on '%s' (%d bytes received)", err, c.Device, len(c.pending))
			}
			return nil, err
		}
	}
}

// Request encodes and sends req, then decodes the answer.
func (c *Comm) Request(ctx context.Context, req Request) (*Response, error) {
	raw, err := c.Transmit(ctx, EncodeFrame(req.Marshal(), 0x00))
	if err != nil {
		return nil, err
	}
	payload, err := DecodeFrame(raw, c.delimiter)
	if err != nil {
		return nil, fmt.Errorf("invalid frame from '%s': %w", c.Device, err)
	}
	resp, err := UnmarshalResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid response from '%s': %w", c.Device, err)
	}
	return resp, nil
}

func hexDump(b []byte) string {
	var buf bytes.Buffer
	for i, x := range b {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(hex.EncodeToString([]byte{x}))
	}
	return buf.String()
}

type serialPort struct {
	serial.Port
}

// Read reports a read timeout as ErrReadTimeout instead of an empty read.
func (s serialPort) Read(buf []byte) (n int, err error) {
	n, err = s.Port.Read(buf)
	if err == nil && n == 0 {
		return 0, ErrReadTimeout
	}
	return n, err
}

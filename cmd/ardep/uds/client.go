// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package uds is a small UDS (ISO 14229) client covering the services the
// ardep tools need.
package uds

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
	"go.uber.org/zap"
)

// ErrTimeout is returned when the server does not answer in time.
var ErrTimeout = isotp.ErrTimeout

const (
	DefaultRequestTimeout = 2 * time.Second
	DefaultPendingTimeout = 5 * time.Second
)

// Conn carries whole UDS messages. Recv returns an error wrapping
// ErrTimeout when nothing arrives in time.
type Conn interface {
	Send(payload []byte) error
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

type Client struct {
	conn Conn
	// RequestTimeout bounds the wait for the first answer.
	RequestTimeout time.Duration
	// PendingTimeout is the extended wait after a response-pending answer.
	PendingTimeout time.Duration
	logger         *zap.Logger
}

func NewClient(conn Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:           conn,
		RequestTimeout: DefaultRequestTimeout,
		PendingTimeout: DefaultPendingTimeout,
		logger:         logger,
	}
}

// Dial opens an ISO-TP connection on iface and wraps it in a client.
func Dial(iface string, addr isotp.Address, logger *zap.Logger) (*Client, error) {
	conn, err := isotp.Dial(iface, addr)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With(zap.Stringer("address", addr))
	}
	return NewClient(conn, logger), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends req and returns the positive response. If req sets the
// suppress-positive-response bit, a missing answer counts as success and
// the returned response is nil.
func (c *Client) Request(ctx context.Context, req []byte) ([]byte, error) {
	if len(req) == 0 {
		return nil, errors.New("empty UDS request")
	}
	sid := req[0]
	suppress := subFunctionServices[sid] && len(req) > 1 && req[1]&suppressBit != 0

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("sending request", zap.String("service", ServiceName(sid)), zap.String("data", hex.EncodeToString(req)))
	if err := c.conn.Send(req); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.RequestTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.timedOut(sid, suppress)
		}
		resp, err := c.conn.Recv(remaining)
		if errors.Is(err, ErrTimeout) {
			return c.timedOut(sid, suppress)
		} else if err != nil {
			return nil, err
		}
		c.logger.Debug("received response", zap.String("data", hex.EncodeToString(resp)))

		if len(resp) == 0 {
			return nil, fmt.Errorf("empty response to %s", ServiceName(sid))
		}
		if resp[0] == negativeResponseSID {
			if len(resp) < 3 {
				return nil, fmt.Errorf("truncated negative response to %s", ServiceName(sid))
			}
			if resp[1] != sid {
				return nil, fmt.Errorf("negative response for service %s while waiting for %s", ServiceName(resp[1]), ServiceName(sid))
			}
			if resp[2] == NRCResponsePending {
				deadline = time.Now().Add(c.PendingTimeout)
				continue
			}
			return nil, &NegativeResponseError{Service: sid, Code: resp[2]}
		}
		if resp[0] != sid+positiveResponseBit {
			return nil, fmt.Errorf("unexpected response SID 0x%02X to %s", resp[0], ServiceName(sid))
		}
		return resp, nil
	}
}

func (c *Client) timedOut(sid byte, suppress bool) ([]byte, error) {
	if suppress {
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w", ServiceName(sid), ErrTimeout)
}

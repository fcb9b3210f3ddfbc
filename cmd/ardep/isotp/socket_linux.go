// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

//go:build linux

package isotp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Conn is a bound CAN_ISOTP socket.
type Conn struct {
	fd      int
	addr    Address
	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

// Dial opens a CAN_ISOTP socket on iface.
func Dial(iface string, addr Address) (*Conn, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to find CAN interface '%s': %w", iface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_DGRAM, unix.CAN_ISOTP)
	if err != nil {
		return nil, fmt.Errorf("failed to open ISO-TP socket: %w", err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index, RxID: addr.RxID, TxID: addr.TxID}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind ISO-TP socket to '%s' (%s): %w", iface, addr, err)
	}
	return &Conn{fd: fd, addr: addr, timeout: -1}, nil
}

func (c *Conn) Address() Address {
	return c.addr
}

// Send transmits one datagram.
func (c *Conn) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds ISO-TP limit of %d", len(payload), MaxPayload)
	}
	_, err := unix.Write(c.fd, payload)
	if err != nil {
		return fmt.Errorf("failed to send ISO-TP frame: %w", err)
	}
	return nil
}

// Recv waits up to timeout for one datagram.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	if err := c.setTimeout(timeout); err != nil {
		return nil, err
	}
	buf := make([]byte, MaxPayload)
	for {
		n, err := unix.Read(c.fd, buf)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return nil, ErrTimeout
		case err != nil:
			return nil, fmt.Errorf("failed to receive ISO-TP frame: %w", err)
		}
		return buf[:n], nil
	}
}

func (c *Conn) setTimeout(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout == timeout {
		return nil
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("failed to set receive timeout: %w", err)
	}
	c.timeout = timeout
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

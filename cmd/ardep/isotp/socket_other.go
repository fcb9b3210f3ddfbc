// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

//go:build !linux

package isotp

import (
	"time"
)

type Conn struct{}

func Dial(iface string, addr Address) (*Conn, error) {
	return nil, ErrUnsupported
}

func (c *Conn) Address() Address                           { return Address{} }
func (c *Conn) Send(payload []byte) error                  { return ErrUnsupported }
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) { return nil, ErrUnsupported }
func (c *Conn) Close() error                               { return nil }

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package isotp sends and receives ISO 15765-2 datagrams through the Linux
// kernel CAN_ISOTP socket. Segmentation and flow control happen in the
// kernel.
package isotp

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout     = errors.New("timed out waiting for an ISO-TP frame")
	ErrUnsupported = errors.New("ISO-TP sockets are only supported on Linux")
)

// MaxPayload is the largest ISO-TP payload with 12-bit lengths.
const MaxPayload = 4095

// Address is a Normal 11-bit addressing pair. RxID is the CAN id the tester
// listens on, TxID the one it sends on.
type Address struct {
	RxID uint32 `json:"rx_id" yaml:"rx_id"`
	TxID uint32 `json:"tx_id" yaml:"tx_id"`
}

func (a Address) String() string {
	return fmt.Sprintf("RXID: 0x%03X, TXID: 0x%03X", a.RxID, a.TxID)
}

// Validate checks that both ids are 11-bit standard identifiers.
func (a Address) Validate() error {
	if a.RxID > 0x7FF || a.TxID > 0x7FF {
		return fmt.Errorf("invalid ISO-TP address (%s): ids must be 11-bit", a)
	}
	if a.RxID == a.TxID {
		return fmt.Errorf("invalid ISO-TP address (%s): rx and tx ids must differ", a)
	}
	return nil
}

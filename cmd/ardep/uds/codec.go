// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package uds

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
)

// Codec converts a data identifier record to a value and back.
type Codec interface {
	Len() int
	Encode(v uint16) []byte
	Decode(b []byte) (uint16, error)
}

type uint16Codec struct {
	order binary.ByteOrder
}

var (
	Uint16BE Codec = uint16Codec{binary.BigEndian}
	Uint16LE Codec = uint16Codec{binary.LittleEndian}
)

func (c uint16Codec) Len() int { return 2 }

func (c uint16Codec) Encode(v uint16) []byte {
	b := make([]byte, 2)
	c.order.PutUint16(b, v)
	return b
}

func (c uint16Codec) Decode(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("expected 2 bytes, got %d", len(b))
	}
	return c.order.Uint16(b), nil
}

// Gearshift addressing places up to eight boards on fixed id pairs.
const (
	GearshiftRxBase = 0x7E0
	GearshiftTxBase = 0x7E8
	MaxGearshift    = 7
)

// GearshiftAddress returns the address of board g.
func GearshiftAddress(g int) (isotp.Address, error) {
	if g < 0 || g > MaxGearshift {
		return isotp.Address{}, fmt.Errorf("gearshift must be between 0 and %d, got %d", MaxGearshift, g)
	}
	return isotp.Address{RxID: uint32(GearshiftRxBase + g), TxID: uint32(GearshiftTxBase + g)}, nil
}

// ParseID parses a CAN id like "0x7E0". Decimal and octal prefixes work too.
func ParseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid CAN id '%s': %w", s, err)
	}
	return uint32(v), nil
}

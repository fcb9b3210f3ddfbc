// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package uds

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Diagnostic sessions.
const (
	DefaultSession     = 0x01
	ProgrammingSession = 0x02
	ExtendedSession    = 0x03
)

// ECU reset types.
const (
	HardReset = 0x01
	SoftReset = 0x03
)

// Link control types.
const (
	VerifyFixedBaudrate    = 0x01
	VerifySpecificBaudrate = 0x02
	TransitionBaudrate     = 0x03
)

// Routine control sub-functions.
const (
	startRoutine         = 0x01
	requestRoutineResult = 0x03
)

var fixedBaudrates = map[uint32]byte{
	9600:    0x01,
	19200:   0x02,
	38400:   0x03,
	57600:   0x04,
	115200:  0x05,
	125000:  0x10,
	250000:  0x11,
	500000:  0x12,
	1000000: 0x13,
}

func expectLen(resp []byte, n int, sid byte) error {
	if len(resp) < n {
		return fmt.Errorf("response to %s too short: %d bytes", ServiceName(sid), len(resp))
	}
	return nil
}

func (c *Client) TesterPresent(ctx context.Context) error {
	_, err := c.Request(ctx, []byte{SIDTesterPresent, 0x00})
	return err
}

// ChangeSession switches the diagnostic session and returns the session
// parameter record.
func (c *Client) ChangeSession(ctx context.Context, session byte) ([]byte, error) {
	resp, err := c.Request(ctx, []byte{SIDDiagnosticSessionControl, session})
	if err != nil {
		return nil, err
	}
	if err := expectLen(resp, 2, SIDDiagnosticSessionControl); err != nil {
		return nil, err
	}
	if resp[1] != session {
		return nil, fmt.Errorf("server switched to session 0x%02X instead of 0x%02X", resp[1], session)
	}
	return resp[2:], nil
}

func (c *Client) ECUReset(ctx context.Context, resetType byte) error {
	resp, err := c.Request(ctx, []byte{SIDECUReset, resetType})
	if err != nil {
		return err
	}
	if err := expectLen(resp, 2, SIDECUReset); err != nil {
		return err
	}
	if resp[1] != resetType {
		return fmt.Errorf("server echoed reset type 0x%02X instead of 0x%02X", resp[1], resetType)
	}
	return nil
}

// ReadDataByIdentifier reads did and decodes its value with codec.
func (c *Client) ReadDataByIdentifier(ctx context.Context, did uint16, codec Codec) (uint16, error) {
	data, err := c.ReadDataByIdentifierRaw(ctx, did)
	if err != nil {
		return 0, err
	}
	if len(data) < codec.Len() {
		return 0, fmt.Errorf("data identifier 0x%04X: expected %d bytes, got %d", did, codec.Len(), len(data))
	}
	return codec.Decode(data[:codec.Len()])
}

// ReadDataByIdentifierRaw returns the record of did.
func (c *Client) ReadDataByIdentifierRaw(ctx context.Context, did uint16) ([]byte, error) {
	req := binary.BigEndian.AppendUint16([]byte{SIDReadDataByIdentifier}, did)
	resp, err := c.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectLen(resp, 3, SIDReadDataByIdentifier); err != nil {
		return nil, err
	}
	if got := binary.BigEndian.Uint16(resp[1:3]); got != did {
		return nil, fmt.Errorf("server answered data identifier 0x%04X instead of 0x%04X", got, did)
	}
	return resp[3:], nil
}

func (c *Client) WriteDataByIdentifier(ctx context.Context, did uint16, codec Codec, value uint16) error {
	req := binary.BigEndian.AppendUint16([]byte{SIDWriteDataByIdentifier}, did)
	req = append(req, codec.Encode(value)...)
	resp, err := c.Request(ctx, req)
	if err != nil {
		return err
	}
	if err := expectLen(resp, 3, SIDWriteDataByIdentifier); err != nil {
		return err
	}
	if got := binary.BigEndian.Uint16(resp[1:3]); got != did {
		return fmt.Errorf("server confirmed data identifier 0x%04X instead of 0x%04X", got, did)
	}
	return nil
}

// StartRoutine starts routine id and returns its status record.
func (c *Client) StartRoutine(ctx context.Context, id uint16, data []byte) ([]byte, error) {
	return c.routineControl(ctx, startRoutine, id, data)
}

// RoutineResult returns the status record of routine id.
func (c *Client) RoutineResult(ctx context.Context, id uint16) ([]byte, error) {
	return c.routineControl(ctx, requestRoutineResult, id, nil)
}

func (c *Client) routineControl(ctx context.Context, control byte, id uint16, data []byte) ([]byte, error) {
	req := binary.BigEndian.AppendUint16([]byte{SIDRoutineControl, control}, id)
	req = append(req, data...)
	resp, err := c.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectLen(resp, 4, SIDRoutineControl); err != nil {
		return nil, err
	}
	if resp[1] != control {
		return nil, fmt.Errorf("server echoed routine control type 0x%02X instead of 0x%02X", resp[1], control)
	}
	if got := binary.BigEndian.Uint16(resp[2:4]); got != id {
		return nil, fmt.Errorf("server answered routine 0x%04X instead of 0x%04X", got, id)
	}
	return resp[4:], nil
}

// MemoryLocation describes a download target. Formats are in bits and must
// be a multiple of 8 up to 40.
type MemoryLocation struct {
	Address       uint64
	Size          uint64
	AddressFormat int
	SizeFormat    int
}

// NewMemoryLocation uses 32-bit address and size fields.
func NewMemoryLocation(address, size uint64) MemoryLocation {
	return MemoryLocation{Address: address, Size: size, AddressFormat: 32, SizeFormat: 32}
}

func (m MemoryLocation) encode() ([]byte, error) {
	addrLen, err := formatBytes(m.AddressFormat, m.Address, "address")
	if err != nil {
		return nil, err
	}
	sizeLen, err := formatBytes(m.SizeFormat, m.Size, "memory size")
	if err != nil {
		return nil, err
	}
	out := []byte{byte(sizeLen<<4 | addrLen)}
	out = appendBigEndian(out, m.Address, addrLen)
	return appendBigEndian(out, m.Size, sizeLen), nil
}

func formatBytes(bits int, value uint64, what string) (int, error) {
	if bits <= 0 || bits > 40 || bits%8 != 0 {
		return 0, fmt.Errorf("invalid %s format %d", what, bits)
	}
	n := bits / 8
	if n < 8 && value >= 1<<(8*n) {
		return 0, fmt.Errorf("%s 0x%X does not fit in %d bits", what, value, bits)
	}
	return n, nil
}

func appendBigEndian(b []byte, v uint64, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// RequestDownload announces a download and returns the maximum block length
// the server accepts, including the service id and sequence counter.
func (c *Client) RequestDownload(ctx context.Context, loc MemoryLocation) (int, error) {
	encoded, err := loc.encode()
	if err != nil {
		return 0, err
	}
	// Data format 0x00: no compression, no encryption.
	req := append([]byte{SIDRequestDownload, 0x00}, encoded...)
	resp, err := c.Request(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := expectLen(resp, 2, SIDRequestDownload); err != nil {
		return 0, err
	}
	n := int(resp[1] >> 4)
	if n == 0 || n > 8 || len(resp) < 2+n {
		return 0, fmt.Errorf("invalid max block length in response to %s", ServiceName(SIDRequestDownload))
	}
	var maxLen uint64
	for _, b := range resp[2 : 2+n] {
		maxLen = maxLen<<8 | uint64(b)
	}
	return int(maxLen), nil
}

// TransferData sends one block with sequence counter seq.
func (c *Client) TransferData(ctx context.Context, seq byte, data []byte) ([]byte, error) {
	req := append([]byte{SIDTransferData, seq}, data...)
	resp, err := c.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectLen(resp, 2, SIDTransferData); err != nil {
		return nil, err
	}
	if resp[1] != seq {
		return nil, fmt.Errorf("server acknowledged block %d instead of %d", resp[1], seq)
	}
	return resp[2:], nil
}

func (c *Client) RequestTransferExit(ctx context.Context) error {
	_, err := c.Request(ctx, []byte{SIDRequestTransferExit})
	return err
}

// LinkControl verifies a baudrate transition. Fixed baudrates use their
// standard identifier, specific ones are sent as 24-bit values.
func (c *Client) LinkControl(ctx context.Context, controlType byte, baudrate uint32) error {
	req := []byte{SIDLinkControl, controlType}
	switch controlType {
	case VerifyFixedBaudrate:
		id, ok := fixedBaudrates[baudrate]
		if !ok {
			return fmt.Errorf("baudrate %d has no fixed identifier", baudrate)
		}
		req = append(req, id)
	case VerifySpecificBaudrate:
		if baudrate > 0xFFFFFF {
			return fmt.Errorf("baudrate %d does not fit in 24 bits", baudrate)
		}
		req = appendBigEndian(req, uint64(baudrate), 3)
	default:
		return fmt.Errorf("link control type 0x%02X takes no baudrate", controlType)
	}
	resp, err := c.Request(ctx, req)
	if err != nil {
		return err
	}
	if err := expectLen(resp, 2, SIDLinkControl); err != nil {
		return err
	}
	if resp[1] != controlType {
		return fmt.Errorf("server echoed link control type 0x%02X instead of 0x%02X", resp[1], controlType)
	}
	return nil
}

// TransitionLinkBaudrate applies a previously verified baudrate. The
// positive response is suppressed, so only a negative answer is reported.
func (c *Client) TransitionLinkBaudrate(ctx context.Context) error {
	_, err := c.Request(ctx, []byte{SIDLinkControl, TransitionBaudrate | suppressBit})
	return err
}

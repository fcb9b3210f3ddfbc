// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package hwtest

import (
	"encoding/hex"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

type RequestType int32

const (
	GetDeviceInfo RequestType = iota
	SetupGPIOTest
	ExecuteGPIOTest
	StopGPIOTest
	SetupUARTTest
	ExecuteUARTTest
	StopUARTTest
)

var requestTypeNames = map[RequestType]string{
	GetDeviceInfo:   "GET_DEVICE_INFO",
	SetupGPIOTest:   "SETUP_GPIO_TEST",
	ExecuteGPIOTest: "EXECUTE_GPIO_TEST",
	StopGPIOTest:    "STOP_GPIO_TEST",
	SetupUARTTest:   "SETUP_UART_TEST",
	ExecuteUARTTest: "EXECUTE_UART_TEST",
	StopUARTTest:    "STOP_UART_TEST",
}

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RequestType(%d)", int32(t))
}

type DeviceRole int32

const (
	RoleTester DeviceRole = 0
	RoleSUT    DeviceRole = 1
)

func (r DeviceRole) String() string {
	switch r {
	case RoleTester:
		return "TESTER"
	case RoleSUT:
		return "SUT"
	}
	return fmt.Sprintf("DeviceRole(%d)", int32(r))
}

func (r DeviceRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Field numbers of the messages exchanged with the bench firmware.
const (
	requestTypeField protowire.Number = 1

	responseResultCodeField   protowire.Number = 1
	responseRoleField         protowire.Number = 2
	responseDeviceInfoField   protowire.Number = 3
	responseGPIOResponseField protowire.Number = 4
	responseUARTResponseField protowire.Number = 5

	deviceInfoDeviceIDField protowire.Number = 1

	gpioErrorsField protowire.Number = 1

	uartResponseUARTsField protowire.Number = 1

	uartDeviceField      protowire.Number = 1
	uartReceiveDataField protowire.Number = 2
	uartSendDataField    protowire.Number = 3
)

type Request struct {
	Type RequestType
}

func (r Request) Marshal() []byte {
	var b []byte
	// proto3 omits default values.
	if r.Type != 0 {
		b = protowire.AppendTag(b, requestTypeField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Type))
	}
	return b
}

func (r Request) String() string {
	return fmt.Sprintf("Request(type=%s)", r.Type)
}

type DeviceInfo struct {
	DeviceID HexBytes `json:"device_id" yaml:"device_id"`
}

func (d *DeviceInfo) String() string {
	return fmt.Sprintf("DeviceInfo(device_id=0x%s)", hex.EncodeToString(d.DeviceID))
}

type GPIOResponse struct {
	Errors []string `json:"errors" yaml:"errors"`
}

func (g *GPIOResponse) String() string {
	return fmt.Sprintf("GPIOResponse(errors=%q)", g.Errors)
}

type UART struct {
	Device      string   `json:"device" yaml:"device"`
	ReceiveData HexBytes `json:"receive_data" yaml:"receive_data"`
	SendData    HexBytes `json:"send_data" yaml:"send_data"`
}

func (u UART) String() string {
	return fmt.Sprintf("UART(device=%s, receive_data=0x%s, send_data=0x%s)",
		u.Device, hex.EncodeToString(u.ReceiveData), hex.EncodeToString(u.SendData))
}

type UARTResponse struct {
	UARTs []UART `json:"uarts" yaml:"uarts"`
}

func (u *UARTResponse) String() string {
	parts := make([]string, len(u.UARTs))
	for i, uart := range u.UARTs {
		parts[i] = uart.String()
	}
	return fmt.Sprintf("UARTResponse(uarts=[%s])", strings.Join(parts, ", "))
}

// Response is the answer of a device to a Request. At most one of the
// payload fields is set.
type Response struct {
	ResultCode   int32         `json:"result_code" yaml:"result_code"`
	Role         DeviceRole    `json:"role" yaml:"role"`
	DeviceInfo   *DeviceInfo   `json:"device_info,omitempty" yaml:"device_info,omitempty"`
	GPIOResponse *GPIOResponse `json:"gpio_response,omitempty" yaml:"gpio_response,omitempty"`
	UARTResponse *UARTResponse `json:"uart_response,omitempty" yaml:"uart_response,omitempty"`
}

func (r *Response) String() string {
	parts := []string{
		fmt.Sprintf("result_code=%d", r.ResultCode),
		fmt.Sprintf("role=%s", r.Role),
	}
	if r.DeviceInfo != nil {
		parts = append(parts, fmt.Sprintf("device_info=%s", r.DeviceInfo))
	}
	if r.GPIOResponse != nil {
		parts = append(parts, fmt.Sprintf("gpio_response=%s", r.GPIOResponse))
	}
	if r.UARTResponse != nil {
		parts = append(parts, fmt.Sprintf("uart_response=%s", r.UARTResponse))
	}
	return fmt.Sprintf("Response(%s)", strings.Join(parts, ", "))
}

// UnmarshalResponse decodes a Response. Unknown fields are skipped.
func UnmarshalResponse(b []byte) (*Response, error) {
	r := &Response{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == responseResultCodeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}
			r.ResultCode = int32(protowire.DecodeZigZag(v))
			return n, nil
		case num == responseRoleField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}
			r.Role = DeviceRole(int32(v))
			return n, nil
		case num == responseDeviceInfoField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			info, err := unmarshalDeviceInfo(v)
			if err != nil {
				return 0, fmt.Errorf("device_info: %w", err)
			}
			r.DeviceInfo, r.GPIOResponse, r.UARTResponse = info, nil, nil
			return n, nil
		case num == responseGPIOResponseField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			gpio, err := unmarshalGPIOResponse(v)
			if err != nil {
				return 0, fmt.Errorf("gpio_response: %w", err)
			}
			r.DeviceInfo, r.GPIOResponse, r.UARTResponse = nil, gpio, nil
			return n, nil
		case num == responseUARTResponseField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			uart, err := unmarshalUARTResponse(v)
			if err != nil {
				return 0, fmt.Errorf("uart_response: %w", err)
			}
			r.DeviceInfo, r.GPIOResponse, r.UARTResponse = nil, nil, uart
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func unmarshalDeviceInfo(b []byte) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == deviceInfoDeviceIDField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				info.DeviceID = append(HexBytes(nil), v...)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return info, err
}

func unmarshalGPIOResponse(b []byte) (*GPIOResponse, error) {
	gpio := &GPIOResponse{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == gpioErrorsField && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				gpio.Errors = splitErrors(v)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return gpio, err
}

func splitErrors(payload string) []string {
	var errs []string
	for _, line := range strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n") {
		if line != "" {
			errs = append(errs, line)
		}
	}
	return errs
}

func unmarshalUARTResponse(b []byte) (*UARTResponse, error) {
	resp := &UARTResponse{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == uartResponseUARTsField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			uart, err := unmarshalUART(v)
			if err != nil {
				return 0, err
			}
			resp.UARTs = append(resp.UARTs, uart)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return resp, err
}

func unmarshalUART(b []byte) (UART, error) {
	var uart UART
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		switch num {
		case uartDeviceField:
			uart.Device = string(v)
		case uartReceiveDataField:
			uart.ReceiveData = append(HexBytes(nil), v...)
		case uartSendDataField:
			uart.SendData = append(HexBytes(nil), v...)
		}
		return n, nil
	})
	return uart, err
}

// walkFields calls fn for every field in b. fn returns the number of bytes
// consumed from the field value, or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

// HexBytes renders as a hex string in JSON and YAML documents.
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(h)), nil
}

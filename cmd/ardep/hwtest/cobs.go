// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package hwtest

import (
	"errors"
	"fmt"
)

var ErrZeroInFrame = errors.New("unexpected zero byte in COBS frame")

// EncodeCOBS stuffs data so that it contains no zero bytes. The result does
// not include a frame delimiter.
func EncodeCOBS(data []byte) []byte {
	out := make([]byte, 1, len(data)+len(data)/254+2)
	codeIdx := 0
	code := byte(1)
	for _, b := range data {
		if b != 0 {
			out = append(out, b)
			code++
		}
		if b == 0 || code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codeIdx] = code
	return out
}

// DecodeCOBS reverses EncodeCOBS.
func DecodeCOBS(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		code := int(data[i])
		if code == 0 {
			return nil, fmt.Errorf("%w at offset %d", ErrZeroInFrame, i)
		}
		i++
		end := i + code - 1
		if end > len(data) {
			return nil, fmt.Errorf("truncated COBS block at offset %d", i-1)
		}
		for _, b := range data[i:end] {
			if b == 0 {
				return nil, ErrZeroInFrame
			}
		}
		out = append(out, data[i:end]...)
		i = end
		if code < 0xFF && i < len(data) {
			out = append(out, 0)
		}
	}
	return out, nil
}

// EncodeFrame COBS-encodes data and terminates it with delimiter. The
// encoding only removes zero bytes, so any other delimiter must not appear in
// the stuffed payload.
func EncodeFrame(data []byte, delimiter byte) []byte {
	return append(EncodeCOBS(data), delimiter)
}

// DecodeFrame strips a single trailing delimiter and decodes the rest.
func DecodeFrame(frame []byte, delimiter byte) ([]byte, error) {
	if n := len(frame); n > 0 && frame[n-1] == delimiter {
		frame = frame[:n-1]
	}
	return DecodeCOBS(frame)
}

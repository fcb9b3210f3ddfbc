// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package firmware

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
)

var ErrNoHexFile = errors.New("no hex file provided")

// Padding fills gaps between the segments of a hex file.
const Padding = 0xFF

// Image is a contiguous firmware image starting at Base.
type Image struct {
	Base uint32
	Data []byte
}

// Load reads an Intel HEX file.
func Load(path string) (*Image, error) {
	if path == "" {
		return nil, ErrNoHexFile
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse '%s': %w", path, err)
	}
	return img, nil
}

// Parse reads Intel HEX records from r. The image spans from the lowest to
// the highest data address.
func Parse(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, err
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, errors.New("hex file contains no data")
	}

	base := segments[0].Address
	end := base
	for _, s := range segments {
		if s.Address < base {
			base = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}
	return &Image{
		Base: base,
		Data: mem.ToBinary(base, end-base, Padding),
	}, nil
}

// Blocks splits the image into chunks of size bytes. The last chunk may be
// shorter.
func (img *Image) Blocks(size int) ([][]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", size)
	}
	var blocks [][]byte
	for i := 0; i < len(img.Data); i += size {
		end := i + size
		if end > len(img.Data) {
			end = len(img.Data)
		}
		blocks = append(blocks, img.Data[i:end])
	}
	return blocks, nil
}

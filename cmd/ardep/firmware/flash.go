// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package firmware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/toitlang/ardep-tools/cmd/ardep/uds"
	"go.uber.org/zap"
)

const (
	DefaultBlockSize = 512

	// EraseSlot0Routine erases the application slot before a download.
	EraseSlot0Routine = 0xFF00
)

// Client is the subset of the UDS client the flasher uses.
type Client interface {
	TesterPresent(ctx context.Context) error
	ChangeSession(ctx context.Context, session byte) ([]byte, error)
	StartRoutine(ctx context.Context, id uint16, data []byte) ([]byte, error)
	RoutineResult(ctx context.Context, id uint16) ([]byte, error)
	RequestDownload(ctx context.Context, loc uds.MemoryLocation) (int, error)
	TransferData(ctx context.Context, seq byte, data []byte) ([]byte, error)
	RequestTransferExit(ctx context.Context) error
	ECUReset(ctx context.Context, resetType byte) error
}

type Flasher struct {
	BlockSize int
	// Out receives progress messages. Defaults to os.Stdout.
	Out io.Writer
	// Progress shows a progress bar for the transfer.
	Progress bool
	Logger   *zap.Logger
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

func (f *Flasher) out() io.Writer {
	if f.Out == nil {
		return os.Stdout
	}
	return f.Out
}

func (f *Flasher) sleep(d time.Duration) {
	if f.Sleep != nil {
		f.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (f *Flasher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Flash erases slot0, downloads img and resets the board.
func (f *Flasher) Flash(ctx context.Context, client Client, img *Image) error {
	blockSize := f.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	blocks, err := img.Blocks(blockSize)
	if err != nil {
		return err
	}

	fmt.Fprintln(f.out(), "Testing communication with ECU...")
	if err := client.TesterPresent(ctx); err != nil {
		return fmt.Errorf("ECU does not respond: %w", err)
	}

	if err := f.switchToProgrammingSession(ctx, client); err != nil {
		return err
	}
	if err := f.eraseSlot0(ctx, client); err != nil {
		return err
	}
	if err := f.upload(ctx, client, blocks, blockSize, img.Base); err != nil {
		return err
	}

	if err := client.ECUReset(ctx, uds.HardReset); err != nil {
		return fmt.Errorf("failed to reset the ECU: %w", err)
	}
	fmt.Fprintln(f.out(), "Firmware transfer complete")
	return nil
}

func (f *Flasher) switchToProgrammingSession(ctx context.Context, client Client) error {
	fmt.Fprintln(f.out(), "Switching to programming session...")
	if _, err := client.ChangeSession(ctx, uds.ProgrammingSession); err != nil {
		return fmt.Errorf("failed to enter the programming session: %w", err)
	}

	fmt.Fprintln(f.out(), "Waiting for the device to come back online...")
	for i := 0; i < 10; i++ {
		f.sleep(time.Second)
		err := client.TesterPresent(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, uds.ErrTimeout) {
			return err
		}
		f.logger().Debug("device not back yet", zap.Int("attempt", i+1))
	}
	return nil
}

func (f *Flasher) eraseSlot0(ctx context.Context, client Client) error {
	fmt.Fprintln(f.out(), "Erasing slot0 ...")
	if _, err := client.StartRoutine(ctx, EraseSlot0Routine, nil); err != nil {
		return fmt.Errorf("failed to start erasing slot0: %w", err)
	}

	f.sleep(3 * time.Second)

	for i := 0; i < 5; i++ {
		err := client.TesterPresent(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, uds.ErrTimeout) {
			return err
		}
		f.sleep(time.Second)
	}

	status, err := client.RoutineResult(ctx, EraseSlot0Routine)
	if err != nil {
		return fmt.Errorf("failed to read the erase result: %w", err)
	}
	if len(status) != 4 {
		return fmt.Errorf("erase slot0 routine returned %d status bytes, expected 4", len(status))
	}
	if code := binary.BigEndian.Uint32(status); code != 0 {
		return fmt.Errorf("erase slot0 routine failed with code 0x%08X", code)
	}
	fmt.Fprintln(f.out(), "Slot0 erased successfully.")
	return nil
}

func (f *Flasher) upload(ctx context.Context, client Client, blocks [][]byte, blockSize int, base uint32) error {
	fmt.Fprintln(f.out(), "Starting firmware transfer...")
	fmt.Fprintf(f.out(), "Requesting download of %d blocks starting at address 0x%08X...\n", len(blocks), base)

	loc := uds.NewMemoryLocation(uint64(base), uint64(len(blocks)*blockSize))
	maxLen, err := client.RequestDownload(ctx, loc)
	if err != nil {
		return fmt.Errorf("download request rejected: %w", err)
	}
	f.logger().Debug("download accepted", zap.Int("max_block_length", maxLen))

	var bar *pb.ProgressBar
	if f.Progress {
		bar = pb.New(len(blocks))
		bar.SetWriter(f.out())
		bar.Start()
		defer bar.Finish()
	}

	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bar == nil {
			fmt.Fprintf(f.out(), "Transferring block %d/%d...\n", i+1, len(blocks))
		}
		if _, err := client.TransferData(ctx, byte((i+1)%256), block); err != nil {
			return fmt.Errorf("failed to transfer block %d: %w", i+1, err)
		}
		if err := client.TesterPresent(ctx); err != nil {
			return err
		}
		if bar != nil {
			bar.Increment()
		}
		f.sleep(50 * time.Millisecond)
	}

	if err := client.RequestTransferExit(ctx); err != nil {
		return fmt.Errorf("failed to finish the transfer: %w", err)
	}
	return nil
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package udssample

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
	"github.com/toitlang/ardep-tools/cmd/ardep/uds"
	"go.uber.org/zap"
)

// Data identifiers and routine of the bus sample firmware.
const (
	ReceiveAddressDID = 0x1100
	SendAddressDID    = 0x1101
	ControllerRoutine = 0x0000

	// FirstReceiveAddress is where the first responder listens for the
	// controller.
	FirstReceiveAddress = 0x001
	// LastSendAddress sends the final frame back to the controller.
	LastSendAddress = 0x000

	RequestTimeout = 2 * time.Second
	PollAttempts   = 5
	PollInterval   = 250 * time.Millisecond
)

// Routine status bytes.
const (
	routineDone    = 0x00
	routineRunning = 0xFF
)

var (
	ErrNoClients    = errors.New("no clients discovered")
	ErrNoFinalFrame = errors.New("did not receive final frame from controller routine")
)

// SignatureMismatchError reports the first client whose signature byte in
// the final frame is wrong.
type SignatureMismatchError struct {
	Client   int
	Expected byte
	Got      byte
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch on client %d: expected 0x%02X, got 0x%02X", e.Client, e.Expected, e.Got)
}

// WestBuildArgs returns the command line that builds the sample firmware.
func WestBuildArgs(pristine bool, board string) []string {
	args := []string{"west", "build"}
	if pristine {
		args = append(args, "-p", "auto", "samples/uds_bus_sample", "-b", board)
	}
	return args
}

// Link is the address configuration of one responder.
type Link struct {
	Receive uint16
	Send    uint16
}

// ChainLinks returns the configuration of clients 1..n-1. Client 0 is the
// controller and is not configured.
func ChainLinks(n int) []Link {
	var links []Link
	for i := 1; i < n; i++ {
		link := Link{Receive: uint16(i + 1), Send: uint16(i + 2)}
		if i == 1 {
			link.Receive = FirstReceiveAddress
		}
		if i == n-1 {
			link.Send = LastSendAddress
		}
		links = append(links, link)
	}
	return links
}

// VerifySignatures checks that every responder XORed the controller's byte
// with the low byte of its tx id.
func VerifySignatures(frame []byte, addrs []isotp.Address) error {
	if len(frame) < len(addrs) {
		return fmt.Errorf("final frame has %d bytes, expected at least %d", len(frame), len(addrs))
	}
	toSign := frame[0]
	for i := 1; i < len(addrs); i++ {
		expected := toSign ^ byte(addrs[i].TxID&0xFF)
		if frame[i] != expected {
			return &SignatureMismatchError{Client: i, Expected: expected, Got: frame[i]}
		}
	}
	return nil
}

// Bus runs the chained signing sample across all discovered boards.
type Bus struct {
	Dial DialFunc
	Out  io.Writer
	// Upgrade flashes the board at addr. Nil skips upgrading.
	Upgrade func(ctx context.Context, addr isotp.Address) error
	// Shuffle reorders the boards. Defaults to math/rand.
	Shuffle func(addrs []isotp.Address)
	// Sleep defaults to time.Sleep.
	Sleep  func(time.Duration)
	Logger *zap.Logger
}

func (b *Bus) out() io.Writer {
	if b.Out == nil {
		return os.Stdout
	}
	return b.Out
}

func (b *Bus) sleep(d time.Duration) {
	if b.Sleep != nil {
		b.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (b *Bus) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func (b *Bus) shuffle(addrs []isotp.Address) {
	if b.Shuffle != nil {
		b.Shuffle(addrs)
		return
	}
	rand.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })
}

func (b *Bus) Run(ctx context.Context) error {
	addrs := Discover(ctx, b.Dial, b.out())
	fmt.Fprintf(b.out(), "Discovered %d clients\n", len(addrs))
	if len(addrs) == 0 {
		return ErrNoClients
	}

	if b.Upgrade != nil {
		fmt.Fprintln(b.out(), "Upgrading clients")
		for _, addr := range addrs {
			fmt.Fprintf(b.out(), "\n--- Upgrading client on %s ---\n", addr)
			if err := b.Upgrade(ctx, addr); err != nil {
				return fmt.Errorf("failed to upgrade client on %s: %w", addr, err)
			}
		}
		fmt.Fprintln(b.out(), "\nAll clients upgraded")
		b.sleep(time.Second)
	}

	b.shuffle(addrs)

	if err := b.configureChain(ctx, addrs); err != nil {
		return err
	}

	frame, err := b.runController(ctx, addrs[0])
	if err != nil {
		return err
	}
	if err := VerifySignatures(frame, addrs); err != nil {
		return err
	}
	fmt.Fprintln(b.out(), "All signatures verified successfully")
	return nil
}

func (b *Bus) configureChain(ctx context.Context, addrs []isotp.Address) error {
	fmt.Fprintln(b.out(), "Configuring client chain")
	for i, link := range ChainLinks(len(addrs)) {
		addr := addrs[i+1]
		b.logger().Debug("configuring client",
			zap.Stringer("address", addr),
			zap.Uint16("receive", link.Receive),
			zap.Uint16("send", link.Send))
		err := withClient(b.Dial, addr, RequestTimeout, func(c Client) error {
			if err := c.WriteDataByIdentifier(ctx, ReceiveAddressDID, uds.Uint16LE, link.Receive); err != nil {
				return err
			}
			return c.WriteDataByIdentifier(ctx, SendAddressDID, uds.Uint16LE, link.Send)
		})
		if err != nil {
			return fmt.Errorf("failed to configure client on %s: %w", addr, err)
		}
	}
	fmt.Fprintln(b.out(), "Client chain configured successfully")
	return nil
}

// runController starts the controller routine and polls for the final frame.
func (b *Bus) runController(ctx context.Context, addr isotp.Address) ([]byte, error) {
	var frame []byte
	err := withClient(b.Dial, addr, RequestTimeout, func(c Client) error {
		fmt.Fprintln(b.out(), "Starting controller routine...")
		if _, err := c.StartRoutine(ctx, ControllerRoutine, nil); err != nil {
			return err
		}

		for i := 0; i < PollAttempts; i++ {
			status, err := c.RoutineResult(ctx, ControllerRoutine)
			if err != nil {
				return err
			}
			if len(status) == 0 {
				return fmt.Errorf("controller routine returned an empty status record")
			}
			switch status[0] {
			case routineRunning:
				fmt.Fprintln(b.out(), "Routine still running...")
			case routineDone:
				fmt.Fprintln(b.out(), "Routine completed successfully")
				frame = status[1:]
				return nil
			default:
				return fmt.Errorf("routine failed with code: 0x%02X", status[0])
			}
			b.sleep(PollInterval)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, ErrNoFinalFrame
	}
	return frame, nil
}

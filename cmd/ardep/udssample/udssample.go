// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package udssample

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
	"github.com/toitlang/ardep-tools/cmd/ardep/uds"
	"golang.org/x/sync/errgroup"
)

const (
	// ProbeTimeout bounds the TesterPresent used to find boards.
	ProbeTimeout = 500 * time.Millisecond

	// LinkControlDID holds the value the link control sample reads first.
	LinkControlDID = 0x0050
	// LinkControlBaudrate is the fixed baudrate the sample switches to.
	LinkControlBaudrate = 250000
)

// Client is the part of *uds.Client the samples use.
type Client interface {
	TesterPresent(ctx context.Context) error
	ReadDataByIdentifier(ctx context.Context, did uint16, codec uds.Codec) (uint16, error)
	WriteDataByIdentifier(ctx context.Context, did uint16, codec uds.Codec, value uint16) error
	LinkControl(ctx context.Context, controlType byte, baudrate uint32) error
	TransitionLinkBaudrate(ctx context.Context) error
	StartRoutine(ctx context.Context, id uint16, data []byte) ([]byte, error)
	RoutineResult(ctx context.Context, id uint16) ([]byte, error)
	Close() error
}

// DialFunc connects to the board at addr. Requests time out after timeout.
type DialFunc func(addr isotp.Address, timeout time.Duration) (Client, error)

// UDSDialer returns a DialFunc that opens ISO-TP sockets on iface.
func UDSDialer(iface string, dial func(iface string, addr isotp.Address) (*uds.Client, error)) DialFunc {
	return func(addr isotp.Address, timeout time.Duration) (Client, error) {
		client, err := dial(iface, addr)
		if err != nil {
			return nil, err
		}
		client.RequestTimeout = timeout
		return client, nil
	}
}

// withClient dials addr, runs fn and closes the connection again.
func withClient(dial DialFunc, addr isotp.Address, timeout time.Duration, fn func(Client) error) error {
	client, err := dial(addr, timeout)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// Discover tries all gearshift positions and returns the addresses that
// answered, up to the first one that did not.
func Discover(ctx context.Context, dial DialFunc, out io.Writer) []isotp.Address {
	n := uds.MaxGearshift + 1
	addrs := make([]isotp.Address, n)
	errs := make([]error, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		addrs[i], _ = uds.GearshiftAddress(i)
		g.Go(func() error {
			errs[i] = withClient(dial, addrs[i], ProbeTimeout, func(c Client) error {
				return c.TesterPresent(ctx)
			})
			return nil
		})
	}
	g.Wait()

	var found []isotp.Address
	for i, addr := range addrs {
		if errs[i] != nil {
			fmt.Fprintf(out, "Connection %d failed (%s)\n", i, addr)
			break
		}
		fmt.Fprintf(out, "Connection %d successful (%s)\n", i, addr)
		found = append(found, addr)
	}
	return found
}

// LinkControl reads a DID, verifies the fixed 250 kbit/s baudrate and then
// applies it. A negative response is reported on out and ends the sample
// without an error.
func LinkControl(ctx context.Context, client Client, out io.Writer) error {
	err := linkControl(ctx, client, out)
	var nrc *uds.NegativeResponseError
	if errors.As(err, &nrc) {
		fmt.Fprintln(out, nrc.Error())
		return nil
	}
	return err
}

func linkControl(ctx context.Context, client Client, out io.Writer) error {
	value, err := client.ReadDataByIdentifier(ctx, LinkControlDID, uds.Uint16BE)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\tReading data from identifier\t0x%04X:\t0x%04X\n", LinkControlDID, value)

	fmt.Fprintln(out, "Requesting baudrate")
	if err := client.LinkControl(ctx, uds.VerifyFixedBaudrate, LinkControlBaudrate); err != nil {
		return err
	}

	fmt.Fprintln(out, "Applying baudrate")
	return client.TransitionLinkBaudrate(ctx)
}

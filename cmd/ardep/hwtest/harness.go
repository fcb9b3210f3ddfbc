// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package hwtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Device answers requests. *Comm is the serial implementation.
type Device interface {
	Request(ctx context.Context, req Request) (*Response, error)
}

// Pair holds the answers of both devices to the same request.
type Pair struct {
	SUT    *Response `json:"sut" yaml:"sut"`
	Tester *Response `json:"tester" yaml:"tester"`
}

// Results is the document produced by one iteration.
type Results struct {
	RunID       string `json:"run_id" yaml:"run_id"`
	Iteration   int    `json:"iteration" yaml:"iteration"`
	Device      Pair   `json:"device" yaml:"device"`
	UARTSetup   Pair   `json:"uart_setup" yaml:"uart_setup"`
	UARTExecute Pair   `json:"uart_execute" yaml:"uart_execute"`
	UARTStop    Pair   `json:"uart_stop" yaml:"uart_stop"`
}

type Harness struct {
	Device1 Device
	Device2 Device
	// Interval is the pause between iterations.
	Interval time.Duration
	// Iterations stops the loop after that many runs. Zero runs forever.
	Iterations int
	// Report is called with the results of every iteration.
	Report func(*Results) error
	Logger *zap.Logger
	// Sleep defaults to a context aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (h *Harness) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Harness) sleep(ctx context.Context, d time.Duration) error {
	if h.Sleep != nil {
		return h.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run repeats RunOnce until ctx is done or the iteration limit is reached.
func (h *Harness) Run(ctx context.Context) error {
	runID := uuid.NewString()
	for i := 1; h.Iterations == 0 || i <= h.Iterations; i++ {
		results, err := h.RunOnce(ctx)
		if err != nil {
			return err
		}
		results.RunID = runID
		results.Iteration = i
		if h.Report != nil {
			if err := h.Report(results); err != nil {
				return err
			}
		}
		if h.Iterations != 0 && i == h.Iterations {
			break
		}
		if err := h.sleep(ctx, h.Interval); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce identifies the devices and runs one UART test cycle.
func (h *Harness) RunOnce(ctx context.Context) (*Results, error) {
	log := h.logger()

	var info1, info2 *Response
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info1, err = h.Device1.Request(gctx, Request{Type: GetDeviceInfo})
		if err != nil {
			return fmt.Errorf("device 1: %w", err)
		}
		log.Info("device 1 answered", zap.Stringer("response", info1))
		return nil
	})
	g.Go(func() error {
		var err error
		info2, err = h.Device2.Request(gctx, Request{Type: GetDeviceInfo})
		if err != nil {
			return fmt.Errorf("device 2: %w", err)
		}
		log.Info("device 2 answered", zap.Stringer("response", info2))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if info1.Role == info2.Role {
		return nil, fmt.Errorf("both devices report the role %s", info1.Role)
	}

	results := &Results{}
	sut, tester := h.Device1, h.Device2
	results.Device = Pair{SUT: info1, Tester: info2}
	if info1.Role != RoleSUT {
		sut, tester = tester, sut
		results.Device = Pair{SUT: info2, Tester: info1}
	}

	steps := []struct {
		typ    RequestType
		target *Pair
	}{
		{typ: SetupUARTTest, target: &results.UARTSetup},
		{typ: ExecuteUARTTest, target: &results.UARTExecute},
		{typ: StopUARTTest, target: &results.UARTStop},
	}
	for _, step := range steps {
		resp, err := sut.Request(ctx, Request{Type: step.typ})
		if err != nil {
			return nil, fmt.Errorf("%s on SUT: %w", step.typ, err)
		}
		log.Info("SUT answered", zap.Stringer("request", step.typ), zap.Stringer("response", resp))
		step.target.SUT = resp

		resp, err = tester.Request(ctx, Request{Type: step.typ})
		if err != nil {
			return nil, fmt.Errorf("%s on tester: %w", step.typ, err)
		}
		log.Info("tester answered", zap.Stringer("request", step.typ), zap.Stringer("response", resp))
		step.target.Tester = resp
	}
	return results, nil
}

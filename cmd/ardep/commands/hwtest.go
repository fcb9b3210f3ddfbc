// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"github.com/toitlang/ardep-tools/cmd/ardep/hwtest"
	"go.uber.org/zap"
)

func HwtestCmd() *cobra.Command {
	var delimiter byte

	cmd := &cobra.Command{
		Use:   "hwtest",
		Short: "Run the hardware-in-the-loop UART test on the test bench",
		Long: "Talk to the two test bench devices over serial, find out which one is the\n" +
			"system under test and which one is the tester, and run the UART test cycle\n" +
			"on both. The results of every iteration are printed as a JSON or YAML\n" +
			"document. Runs until interrupted unless --iterations is given.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}

			device1, err := cmd.Flags().GetString("device1")
			if err != nil {
				return err
			}
			device2, err := cmd.Flags().GetString("device2")
			if err != nil {
				return err
			}
			pick, err := cmd.Flags().GetBool("pick")
			if err != nil {
				return err
			}
			interval, err := cmd.Flags().GetDuration("interval")
			if err != nil {
				return err
			}
			iterations, err := cmd.Flags().GetInt("iterations")
			if err != nil {
				return err
			}
			if iterations < 0 {
				return fmt.Errorf("--iterations must not be negative")
			}
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			switch strings.ToLower(output) {
			case "json", "yaml":
			default:
				return fmt.Errorf("--output must be json or yaml, got '%s'", output)
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			if pick {
				if device1, err = pickPort("Choose the serial port of device 1", false); err != nil {
					return err
				}
				if device2, err = pickPort("Choose the serial port of device 2", false); err != nil {
					return err
				}
			}
			if device1 == "" {
				device1 = cfg.GetString(directory.HwtestDevice1Key)
			}
			if device2 == "" {
				device2 = cfg.GetString(directory.HwtestDevice2Key)
			}
			if device1 == device2 {
				return fmt.Errorf("both devices use the port '%s'", device1)
			}

			logger := GetLogger(cmd.Context())
			com1, err := openDevice(device1, delimiter, logger)
			if err != nil {
				return err
			}
			defer com1.Close()
			com2, err := openDevice(device2, delimiter, logger)
			if err != nil {
				return err
			}
			defer com2.Close()

			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			harness := &hwtest.Harness{
				Device1:    com1,
				Device2:    com2,
				Interval:   interval,
				Iterations: iterations,
				Logger:     logger,
				Report: func(results *hwtest.Results) error {
					return enc.Encode(results)
				},
			}
			if err := harness.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringP("device1", "1", "", "first serial device path (default from 'ardep config get "+directory.HwtestDevice1Key+"')")
	cmd.Flags().StringP("device2", "2", "", "second serial device path (default from 'ardep config get "+directory.HwtestDevice2Key+"')")
	cmd.Flags().VarP(newByteValue(0x00, &delimiter), "delimiter", "e", "message delimiter in hex")
	cmd.Flags().Bool("pick", false, "choose both serial ports interactively")
	cmd.Flags().Duration("interval", 5*time.Second, "pause between iterations")
	cmd.Flags().Int("iterations", 0, "stop after that many iterations, 0 runs until interrupted")
	cmd.Flags().StringP("output", "o", "json", "set output format to json or yaml")
	return cmd
}

func openDevice(device string, delimiter byte, logger *zap.Logger) (*hwtest.Comm, error) {
	exists, err := PortExists(device)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("serial port '%s' does not exist. Use 'ardep port' to list the available ports", device)
	}
	return hwtest.Open(device, delimiter, logger)
}

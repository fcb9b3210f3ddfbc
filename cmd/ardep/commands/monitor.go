// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"go.bug.st/serial"
)

func MonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "monitor",
		Short:        "Monitor the serial console of a board",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := cmd.Flags().GetString("port")
			if err != nil {
				return err
			}
			if port == "" {
				if port, err = directory.ConfigString(directory.HwtestDevice1Key); err != nil {
					return err
				}
			}
			baud, err := cmd.Flags().GetUint("baud")
			if err != nil {
				return err
			}
			timestamps, err := cmd.Flags().GetBool("timestamps")
			if err != nil {
				return err
			}

			fmt.Printf("Starting serial monitor of port '%s' ...\n", port)
			dev, err := serialOpen(port, &serial.Mode{
				BaudRate: int(baud),
			})
			if err != nil {
				return err
			}
			defer dev.Close()

			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()
			go func() {
				<-ctx.Done()
				dev.Close()
			}()

			err = copyLines(ctx, os.Stdout, dev, timestamps, time.Now)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringP("port", "p", "", "port to monitor (default from 'ardep config get "+directory.HwtestDevice1Key+"')")
	cmd.Flags().Uint("baud", 115200, "the baud rate for serial monitoring")
	cmd.Flags().BoolP("timestamps", "t", false, "prefix every line with the time it arrived")
	return cmd
}

func serialOpen(port string, mode *serial.Mode) (serial.Port, error) {
	dev, err := serial.Open(port, mode)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("the port '%s' was not found", port)
	}
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// copyLines copies r to w line by line until r ends or ctx is done.
func copyLines(ctx context.Context, w io.Writer, r io.Reader, timestamps bool, now func() time.Time) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if timestamps {
			fmt.Fprintf(w, "[%s] %s\n", now().Format("15:04:05.000"), scanner.Text())
		} else {
			fmt.Fprintln(w, scanner.Text())
		}
	}
	return scanner.Err()
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"github.com/toitlang/ardep-tools/cmd/ardep/firmware"
	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
	"github.com/toitlang/ardep-tools/cmd/ardep/uds"
	"github.com/toitlang/ardep-tools/cmd/ardep/udssample"
	"go.uber.org/zap"
)

const defaultHexFile = "build/zephyr/zephyr.hex"

func UDSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uds",
		Short: "Sample UDS clients for ARDEP boards on a CAN bus",
	}

	cmd.PersistentFlags().StringP("can", "c", "", "CAN interface (default from 'ardep config get "+directory.CanInterfaceKey+"')")
	cmd.AddCommand(
		UDSLinkControlCmd(),
		UDSDiscoverCmd(),
		UDSBusCmd(),
	)
	return cmd
}

func udsDialer(iface string, logger *zap.Logger) udssample.DialFunc {
	return udssample.UDSDialer(iface, func(iface string, addr isotp.Address) (*uds.Client, error) {
		return uds.Dial(iface, addr, logger)
	})
}

func UDSLinkControlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link-control",
		Short: "Read a data identifier and switch the board to 250 kbit/s",
		Long: "Connect to the board on gearshift position 0, read data identifier 0x0050,\n" +
			"verify the fixed 250 kbit/s baudrate with LinkControl and then apply it.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := canInterface(cmd, "can")
			if err != nil {
				return err
			}
			addr, err := uds.GearshiftAddress(0)
			if err != nil {
				return err
			}

			fmt.Println("=== UDS Link Control Sample Client ===")
			fmt.Println()
			client, err := udsDialer(iface, GetLogger(cmd.Context()))(addr, uds.DefaultRequestTimeout)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := udssample.LinkControl(cmd.Context(), client, os.Stdout); err != nil {
				return err
			}
			fmt.Println()
			fmt.Println("=== Demo finished ===")
			return nil
		},
	}
	return cmd
}

// discoveredAddresses is the -o view of the boards found on the bus.
type discoveredAddresses []isotp.Address

func (d discoveredAddresses) Elements() []Short {
	var res []Short
	for _, addr := range d {
		res = append(res, shortString(addr.String()))
	}
	return res
}

func UDSDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "discover",
		Short:        "Find the boards on the bus by their gearshift position",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := canInterface(cmd, "can")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			out := os.Stdout
			if enc != nil {
				out = os.Stderr
			}
			found := udssample.Discover(cmd.Context(), udsDialer(iface, GetLogger(cmd.Context())), out)
			if enc == nil {
				fmt.Printf("Discovered %d clients\n", len(found))
				return nil
			}
			return enc.Encode(discoveredAddresses(found))
		},
	}

	cmd.Flags().StringP("output", "o", "", "list the found addresses as json, yaml or short")
	return cmd
}

func UDSBusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bus",
		Short: "Run the chained signing sample across all boards on the bus",
		Long: "Discover the boards, optionally build and flash the bus sample firmware,\n" +
			"chain the boards in random order and let the first one send a frame\n" +
			"through the chain. Every board signs the frame, and the signatures are\n" +
			"verified when it comes back.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := canInterface(cmd, "can")
			if err != nil {
				return err
			}
			upgrade, err := cmd.Flags().GetBool("upgrade")
			if err != nil {
				return err
			}
			pristine, err := cmd.Flags().GetBool("pristine")
			if err != nil {
				return err
			}
			board, err := cmd.Flags().GetString("board")
			if err != nil {
				return err
			}
			blockSize, err := cmd.Flags().GetInt("flash-blocksize")
			if err != nil {
				return err
			}
			hexFile, err := cmd.Flags().GetString("hex-file")
			if err != nil {
				return err
			}

			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()
			logger := GetLogger(ctx)

			bus := &udssample.Bus{
				Dial:   udsDialer(iface, logger),
				Logger: logger,
			}

			if upgrade {
				fmt.Println("Building client firmware")
				if err := runCommand(ctx, udssample.WestBuildArgs(pristine, board)); err != nil {
					return fmt.Errorf("west build failed: %w", err)
				}
				img, err := firmware.Load(hexFile)
				if err != nil {
					return err
				}
				bus.Upgrade = func(ctx context.Context, addr isotp.Address) error {
					return flashBoard(ctx, iface, addr, img, blockSize, logger)
				}
			}

			return bus.Run(ctx)
		},
	}

	cmd.Flags().BoolP("upgrade", "u", false, "build and flash the sample firmware first")
	cmd.Flags().BoolP("pristine", "p", false, "build pristine, only used with --upgrade")
	cmd.Flags().StringP("board", "b", "ardep", "board name, e.g. ardep@1 or ardep, only used with --upgrade")
	cmd.Flags().Int("flash-blocksize", firmware.DefaultBlockSize, "bytes per TransferData request when flashing")
	cmd.Flags().String("hex-file", defaultHexFile, "image to flash, only used with --upgrade")
	return cmd
}

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
	"go.uber.org/zap"
	"golang.org/x/term"
)

func FlashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Flash firmware to an ARDEP board over UDS on CAN",
		Long: "Download an Intel HEX image to the board with the UDS RequestDownload and\n" +
			"TransferData services. The board's slot0 is erased first and the board is\n" +
			"reset when the transfer is complete.\n\n" +
			"The ISO-TP ids are given with --uds-source-id and --uds-target-id, or\n" +
			"derived from the board's gearshift position with --gearshift.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hexFile, err := cmd.Flags().GetString("hex-file")
			if err != nil {
				return err
			}
			iface, err := canInterface(cmd, "iface")
			if err != nil {
				return err
			}
			blockSize, err := cmd.Flags().GetInt("block-size")
			if err != nil {
				return err
			}
			if blockSize <= 0 {
				return fmt.Errorf("--block-size must be positive, got %d", blockSize)
			}
			addr, err := flashAddress(cmd)
			if err != nil {
				return err
			}

			img, err := firmware.Load(hexFile)
			if err != nil {
				return err
			}

			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()
			return flashBoard(ctx, iface, addr, img, blockSize, GetLogger(ctx))
		},
	}

	cmd.Flags().String("hex-file", "", "Intel HEX image to flash")
	cmd.Flags().String("iface", "", "CAN interface (default from 'ardep config get "+directory.CanInterfaceKey+"')")
	cmd.Flags().String("uds-source-id", "0x7E0", "ISO-TP id the board listens on")
	cmd.Flags().String("uds-target-id", "0x7E8", "ISO-TP id the board answers on")
	cmd.Flags().IntP("gearshift", "g", -1, "gearshift position of the board, overrides the ids")
	cmd.Flags().IntP("block-size", "b", firmware.DefaultBlockSize, "bytes per TransferData request")
	return cmd
}

// canInterface returns the interface given by flag, or the configured one.
func canInterface(cmd *cobra.Command, flag string) (string, error) {
	iface, err := cmd.Flags().GetString(flag)
	if err != nil {
		return "", err
	}
	if iface == "" {
		return directory.ConfigString(directory.CanInterfaceKey)
	}
	return iface, nil
}

func flashAddress(cmd *cobra.Command) (isotp.Address, error) {
	gearshift, err := cmd.Flags().GetInt("gearshift")
	if err != nil {
		return isotp.Address{}, err
	}
	if cmd.Flags().Changed("gearshift") {
		return uds.GearshiftAddress(gearshift)
	}

	source, err := cmd.Flags().GetString("uds-source-id")
	if err != nil {
		return isotp.Address{}, err
	}
	target, err := cmd.Flags().GetString("uds-target-id")
	if err != nil {
		return isotp.Address{}, err
	}
	rx, err := uds.ParseID(source)
	if err != nil {
		return isotp.Address{}, err
	}
	tx, err := uds.ParseID(target)
	if err != nil {
		return isotp.Address{}, err
	}
	addr := isotp.Address{RxID: rx, TxID: tx}
	return addr, addr.Validate()
}

// flashBoard downloads img to the board at addr.
func flashBoard(ctx context.Context, iface string, addr isotp.Address, img *firmware.Image, blockSize int, logger *zap.Logger) error {
	client, err := uds.Dial(iface, addr, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Flashing %d bytes to %s on %s\n", len(img.Data), addr, iface)
	flasher := &firmware.Flasher{
		BlockSize: blockSize,
		Progress:  term.IsTerminal(int(os.Stdout.Fd())),
		Logger:    logger,
	}
	return flasher.Flash(ctx, client, img)
}

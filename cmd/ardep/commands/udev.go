// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"github.com/spf13/cobra"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"github.com/toitlang/ardep-tools/cmd/ardep/udev"
)

func CreateUdevRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-udev-rule",
		Short: "Install the udev rule that gives users access to the board",
		Long: "Write a udev rules file that lets dfu-util and libusb access the board\n" +
			"without root, both in its runtime and in its DFU mode. The file is moved\n" +
			"into place with 'mv', using sudo when the directory is not writable.\n\n" +
			"Exit codes: 1 if the directory does not exist, 2 if the rule exists\n" +
			"and --force is not given, 3 if moving the file failed.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cmd.Flags().GetString("directory")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			userCfg, err := directory.DecodeUserConfig(cfg)
			if err != nil {
				return err
			}

			rule := udev.Rule{
				Command: cmd.Root().Name(),
				Board:   userCfg.Udev.Board,
				VID:     userCfg.Udev.VID,
				PID:     userCfg.Udev.PID,
				PIDDFU:  userCfg.Udev.PIDDFU,
			}
			installer := &udev.Installer{
				Dir:    dir,
				Force:  force,
				Logger: GetLogger(cmd.Context()),
			}
			if _, err := installer.Install(rule); err != nil {
				return &ExitError{Code: udev.ExitCode(err), Err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringP("directory", "d", udev.DefaultDirectory, "destination directory for the rule")
	cmd.Flags().BoolP("force", "f", false, "overwrite an existing rule")
	return cmd
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

const developmentVersion = "development"

func VersionCmd(info Info) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the version of ardep",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			version := info.Version
			if version == developmentVersion {
				version = getGitVersion()
			}
			if enc != nil {
				return enc.Encode(Info{Version: version, Date: info.Date})
			}

			fmt.Printf("ardep version:\t%s\n", version)
			fmt.Printf("Build date:\t%s\n", info.Date)
			if info.Version == developmentVersion {
				fmt.Println("Build type:\tdevelopment")
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "set output format to json or yaml")
	return cmd
}

// getGitVersion tries to determine a useful version string from git.
func getGitVersion() string {
	if tag, err := exec.Command("git", "describe", "--tags", "--exact-match").Output(); err == nil {
		return strings.TrimSpace(string(tag))
	}

	if desc, err := exec.Command("git", "describe", "--tags", "--dirty").Output(); err == nil {
		return strings.TrimSpace(string(desc))
	}

	if rev, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		return "dev-" + strings.TrimSpace(string(rev))
	}

	return "dev-unknown"
}

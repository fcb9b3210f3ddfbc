// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"go.bug.st/serial"
)

func PortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "port",
		Short:        "List the serial ports the test bench devices may use",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			if enc == nil {
				enc = newShortEncoder(os.Stdout)
			}

			ports, err := listPorts(all)
			if err != nil {
				return err
			}
			return enc.Encode(ports)
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	cmd.Flags().StringP("output", "o", "", "set output format to json, yaml or short")
	cmd.AddCommand(SetPortCmd())
	return cmd
}

func SetPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set <1|2>",
		Short:        "Select the serial port of a test bench device",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			switch args[0] {
			case "1":
				key = directory.HwtestDevice1Key
			case "2":
				key = directory.HwtestDevice2Key
			default:
				return fmt.Errorf("device must be 1 or 2, got '%s'", args[0])
			}
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}

			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			port, err := pickPort(fmt.Sprintf("Choose the serial port of device %s", args[0]), all)
			if err != nil {
				return err
			}
			cfg.Set(key, port)
			return directory.WriteConfig(cfg)
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	return cmd
}

type serialPorts []string

func (p serialPorts) Elements() []Short {
	var res []Short
	for _, port := range p {
		res = append(res, shortString(port))
	}
	return res
}

func listPorts(all bool) (serialPorts, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	if !all {
		ports = filterPorts(ports)
	}
	return serialPorts(ports), nil
}

func PortExists(port string) (bool, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return false, err
	}
	for _, p := range ports {
		if p == port {
			return true, nil
		}
	}
	return false, nil
}

func pickPort(label string, all bool) (string, error) {
	ports, err := listPorts(all)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports detected. Is the test bench connected?")
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     []string(ports),
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}

	return ports[i], nil
}

func filterPorts(ports []string) []string {
	switch runtime.GOOS {
	case "darwin":
		return darwinFilterPaths(ports)
	case "linux":
		return linuxFilterPaths(ports)
	default:
		return ports
	}
}

func darwinFilterPaths(paths []string) []string {
	existing := map[string]struct{}{}
	for _, p := range paths {
		existing[p] = struct{}{}
	}
	var res []string
	for _, path := range paths {
		if strings.HasPrefix(path, "/dev/cu") && !strings.Contains(path, "Bluetooth") {
			res = append(res, path)
		} else if strings.HasPrefix(path, "/dev/tty") && !strings.Contains(path, "Bluetooth") {
			candidate := "/dev/cu" + strings.TrimPrefix(path, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, path)
			}
		}
	}
	return res
}

// linuxFilterPaths keeps USB serial adapters and CDC ACM devices, which is
// how the ARDEP board enumerates.
func linuxFilterPaths(paths []string) []string {
	res := []string(nil)
	for _, path := range paths {
		if strings.Contains(path, "tty") {
			if strings.Contains(path, "USB") || strings.Contains(path, "ACM") {
				res = append(res, path)
			}
		}
	}
	return res
}

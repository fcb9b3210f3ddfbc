// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toitlang/ardep-tools/cmd/ardep/copyright"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure ardep",
		Long: "Configure the defaults of the ardep command line tool.\n\n" +
			"Known keys:\n  " + strings.Join(configKeys(), "\n  "),
	}

	cmd.AddCommand(
		ConfigSetCmd(),
		ConfigGetCmd(),
		ConfigListCmd(),
	)
	return cmd
}

func configKeys() []string {
	var keys []string
	for k := range directory.Defaults() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkConfigKey(key string) error {
	if _, ok := directory.Defaults()[key]; !ok {
		return fmt.Errorf("unknown config key '%s', must be one of %s", key, strings.Join(configKeys(), ", "))
	}
	return nil
}

func ConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set <key> <value>",
		Short:        "Set a config value",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := checkConfigKey(key); err != nil {
				return err
			}
			if key == directory.CopyrightStyleKey {
				if _, err := copyright.ParseStyle(value); err != nil {
					return err
				}
			}

			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			cfg.Set(key, value)
			return directory.WriteConfig(cfg)
		},
	}
	return cmd
}

func ConfigGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "get <key>",
		Short:        "Print a config value",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfigKey(args[0]); err != nil {
				return err
			}
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			fmt.Println(cfg.GetString(args[0]))
			return nil
		},
	}
	return cmd
}

// configEntries is the flattened user config.
type configEntries map[string]string

func (c configEntries) Elements() []Short {
	var res []Short
	for _, k := range sortedKeys(c) {
		res = append(res, configEntry{Key: k, Value: c[k]})
	}
	return res
}

type configEntry struct {
	Key   string
	Value string
}

func (e configEntry) Short() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func readConfigEntries(cfg *viper.Viper) configEntries {
	res := configEntries{}
	for _, k := range configKeys() {
		res[k] = cfg.GetString(k)
	}
	return res
}

func ConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "Print all config values",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			if _, ok := enc.(*shortEncoder); enc == nil || ok {
				return newShortEncoder(os.Stdout).Encode(readConfigEntries(cfg))
			}

			userCfg, err := directory.DecodeUserConfig(cfg)
			if err != nil {
				return err
			}
			return enc.Encode(userCfg)
		},
	}

	cmd.Flags().StringP("output", "o", "", "set output format to json, yaml or short")
	return cmd
}

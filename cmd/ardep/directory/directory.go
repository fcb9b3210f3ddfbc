// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// UserConfigPathEnv if set, will load the user config from that path.
	UserConfigPathEnv = "ARDEP_USER_CONFIG_PATH"
	// CanInterfaceEnv if set, is the default CAN interface for the UDS commands.
	CanInterfaceEnv = "ARDEP_CAN_INTERFACE"
)

// Keys in the user config.
const (
	CopyrightCompanyKey = "copyright.company"
	CopyrightLicenseKey = "copyright.license"
	CopyrightStyleKey   = "copyright.style"
	CanInterfaceKey     = "can.interface"
	HwtestDevice1Key    = "hwtest.device1"
	HwtestDevice2Key    = "hwtest.device2"
	UdevBoardKey        = "udev.board"
	UdevVIDKey          = "udev.vid"
	UdevPIDKey          = "udev.pid"
	UdevPIDDFUKey       = "udev.pid-dfu"
)

// Defaults returns the built-in value for every known config key.
func Defaults() map[string]string {
	return map[string]string{
		CopyrightCompanyKey: "Frickly Systems GmbH",
		CopyrightLicenseKey: "Apache-2.0",
		CopyrightStyleKey:   "spdx-year",
		CanInterfaceKey:     "can0",
		HwtestDevice1Key:    "/dev/ttyACM1",
		HwtestDevice2Key:    "/dev/ttyACM3",
		UdevBoardKey:        "ardep",
		UdevVIDKey:          "2fe3",
		UdevPIDKey:          "0100",
		UdevPIDDFUKey:       "ffff",
	}
}

func GetUserConfigPath() (string, error) {
	if path, ok := os.LookupEnv(UserConfigPathEnv); ok {
		return path, nil
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".config", "ardep", "config.yaml"), nil
}

func GetUserConfig() (*viper.Viper, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config path: %w", err)
	}

	cfg := viper.New()
	cfg.SetConfigType("yaml")
	cfg.SetConfigFile(path)
	for k, v := range Defaults() {
		cfg.SetDefault(k, v)
	}
	if v, ok := os.LookupEnv(CanInterfaceEnv); ok {
		cfg.SetDefault(CanInterfaceKey, v)
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read user config: %w", err)
		}
	}
	return cfg, nil
}

type UserConfig struct {
	Copyright CopyrightConfig `mapstructure:"copyright" yaml:"copyright" json:"copyright"`
	Can       CanConfig       `mapstructure:"can" yaml:"can" json:"can"`
	Hwtest    HwtestConfig    `mapstructure:"hwtest" yaml:"hwtest" json:"hwtest"`
	Udev      UdevConfig      `mapstructure:"udev" yaml:"udev" json:"udev"`
}

type CopyrightConfig struct {
	Company string `mapstructure:"company" yaml:"company" json:"company"`
	License string `mapstructure:"license" yaml:"license" json:"license"`
	Style   string `mapstructure:"style" yaml:"style" json:"style"`
}

type CanConfig struct {
	Interface string `mapstructure:"interface" yaml:"interface" json:"interface"`
}

type HwtestConfig struct {
	Device1 string `mapstructure:"device1" yaml:"device1" json:"device1"`
	Device2 string `mapstructure:"device2" yaml:"device2" json:"device2"`
}

type UdevConfig struct {
	Board  string `mapstructure:"board" yaml:"board" json:"board"`
	VID    string `mapstructure:"vid" yaml:"vid" json:"vid"`
	PID    string `mapstructure:"pid" yaml:"pid" json:"pid"`
	PIDDFU string `mapstructure:"pid-dfu" yaml:"pid-dfu" json:"pid-dfu"`
}

// DecodeUserConfig returns the typed view of cfg, defaults included.
func DecodeUserConfig(cfg *viper.Viper) (UserConfig, error) {
	var res UserConfig
	if err := mapstructure.WeakDecode(cfg.AllSettings(), &res); err != nil {
		return UserConfig{}, fmt.Errorf("invalid user config: %w", err)
	}
	return res, nil
}

// ConfigString returns the configured value for key.
func ConfigString(key string) (string, error) {
	cfg, err := GetUserConfig()
	if err != nil {
		return "", err
	}
	return cfg.GetString(key), nil
}

func WriteConfig(cfg *viper.Viper) error {
	file := cfg.ConfigFileUsed()
	dir := filepath.Dir(file)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmpFile := filepath.Join(filepath.Dir(file), ".config.tmp.yaml")
	if err := cfg.WriteConfigAs(tmpFile); err != nil {
		return err
	}
	defer os.Remove(tmpFile)

	return os.Rename(tmpFile, file)
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type ctxKey string

const (
	ctxKeyInfo   ctxKey = "info"
	ctxKeyLogger ctxKey = "logger"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	return ctx.Value(ctxKeyInfo).(Info)
}

func SetLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLogger returns the logger of the running command, or a no-op logger.
func GetLogger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKeyLogger).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

func newLogger(verbose bool, level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid --log-level '%s': %w", level, err)
		}
		config.Level = lvl
	}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func ArdepCmd(info Info) *cobra.Command {
	var logger *zap.Logger

	cmd := &cobra.Command{
		Use:   "ardep",
		Short: "Developer tooling for the ARDEP board",
		Long: "ardep bundles the developer tools of the ARDEP board ecosystem.\n\n" +
			"It keeps license headers consistent, drives the hardware-in-the-loop\n" +
			"test bench over serial, flashes firmware over UDS on CAN, and installs\n" +
			"the udev rule needed to access the board without root.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				color.NoColor = true
			}

			verbose, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return err
			}
			level, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			logger, err = newLogger(verbose, level)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = logger.With(zap.String("command", cmd.Name()))
			cmd.SetContext(SetLogger(cmd.Context(), logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		CopyrightCmd(),
		HwtestCmd(),
		PortCmd(),
		MonitorCmd(),
		FlashCmd(),
		UDSCmd(),
		CanCmd(),
		CreateUdevRuleCmd(),
		ConfigCmd(),
		VersionCmd(info),
	)
	return cmd
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/brutella/can"
	"github.com/spf13/cobra"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"github.com/toitlang/ardep-tools/cmd/ardep/uds"
	"go.uber.org/zap"
)

// Bits of a SocketCAN id.
const (
	canEFFFlag = 0x80000000
	canRTRFlag = 0x40000000
	canEFFMask = 0x1FFFFFFF
	canSFFMask = 0x000007FF
)

func CanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "can",
		Short: "Inspect the CAN bus",
	}
	cmd.AddCommand(CanDumpCmd())
	return cmd
}

func CanDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dump",
		Short:        "Print the raw CAN frames on an interface until interrupted",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, err := canInterface(cmd, "can")
			if err != nil {
				return err
			}
			idStrings, err := cmd.Flags().GetStringSlice("id")
			if err != nil {
				return err
			}
			filter := map[uint32]struct{}{}
			for _, s := range idStrings {
				id, err := uds.ParseID(s)
				if err != nil {
					return err
				}
				filter[id] = struct{}{}
			}

			bus, err := can.NewBusForInterfaceWithName(iface)
			if err != nil {
				return fmt.Errorf("failed to open CAN interface '%s': %w", iface, err)
			}
			logger := GetLogger(cmd.Context())
			bus.Subscribe(&frameDumper{w: os.Stdout, filter: filter})

			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()
			go func() {
				<-ctx.Done()
				if err := bus.Disconnect(); err != nil {
					logger.Debug("disconnect failed", zap.Error(err))
				}
			}()

			logger.Debug("listening", zap.String("interface", iface))
			if err := bus.ConnectAndPublish(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringP("can", "c", "", "CAN interface (default from 'ardep config get "+directory.CanInterfaceKey+"')")
	cmd.Flags().StringSlice("id", nil, "only print frames with these ids, e.g. 0x7E0,0x7E8")
	return cmd
}

// frameDumper is a can.Handler that prints every frame.
type frameDumper struct {
	mu     sync.Mutex
	w      io.Writer
	filter map[uint32]struct{}
}

func (d *frameDumper) Handle(frame can.Frame) {
	if len(d.filter) > 0 {
		if _, ok := d.filter[frameID(frame)]; !ok {
			return
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.w, formatFrame(frame))
}

func frameID(frame can.Frame) uint32 {
	if frame.ID&canEFFFlag != 0 {
		return frame.ID & canEFFMask
	}
	return frame.ID & canSFFMask
}

// formatFrame renders a frame like candump: "7E0       [3]  02 3E 00".
func formatFrame(frame can.Frame) string {
	id := fmt.Sprintf("%03X", frameID(frame))
	if frame.ID&canEFFFlag != 0 {
		id = fmt.Sprintf("%08X", frameID(frame))
	}
	length := int(frame.Length)
	if length > len(frame.Data) {
		length = len(frame.Data)
	}
	if frame.ID&canRTRFlag != 0 {
		return fmt.Sprintf("%-8s  [%d]  remote request", id, length)
	}
	data := make([]string, length)
	for i := 0; i < length; i++ {
		data[i] = fmt.Sprintf("%02X", frame.Data[i])
	}
	return strings.TrimRight(fmt.Sprintf("%-8s  [%d]  %s", id, length, strings.Join(data, " ")), " ")
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// ExitError makes the process exit with Code instead of 1.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// interruptContext is cancelled on Ctrl-C or SIGTERM.
func interruptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// runCommand runs an external tool with the terminal attached.
func runCommand(ctx context.Context, args []string) error {
	fmt.Println("Running command:", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

type encoder interface {
	Encode(interface{}) error
}

// parseOutputFlag returns the encoder selected by --output, or nil if the
// flag is empty.
func parseOutputFlag(cmd *cobra.Command) (encoder, error) {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}
	return newEncoder(output, os.Stdout)
}

func newEncoder(output string, w io.Writer) (encoder, error) {
	switch strings.ToLower(output) {
	case "":
		return nil, nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc, nil
	case "yaml":
		return &yamlEncoder{w: w}, nil
	case "short":
		return newShortEncoder(w), nil
	default:
		return nil, fmt.Errorf("--output flag '%s' was not recognized. Must be either json, yaml or short", output)
	}
}

// yamlEncoder starts every document on a fresh encoder so consecutive
// results are separated by '---'.
type yamlEncoder struct {
	w     io.Writer
	count int
}

func (y *yamlEncoder) Encode(v interface{}) error {
	if y.count > 0 {
		if _, err := io.WriteString(y.w, "---\n"); err != nil {
			return err
		}
	}
	y.count++
	enc := yaml.NewEncoder(y.w)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type shortEncoder struct {
	w io.Writer
}

func newShortEncoder(w io.Writer) *shortEncoder {
	return &shortEncoder{
		w: w,
	}
}

type Elements interface {
	Elements() []Short
}

type Short interface {
	Short() string
}

type shortString string

func (s shortString) Short() string {
	return string(s)
}

func (s *shortEncoder) Encode(v interface{}) error {
	if sh, ok := v.(Short); ok {
		fmt.Fprintln(s.w, sh.Short())
		return nil
	}
	es, ok := v.(Elements)
	if !ok {
		return fmt.Errorf("value type %T was not compatible with the Elements interface", v)
	}
	for _, e := range es.Elements() {
		fmt.Fprintln(s.w, e.Short())
	}
	return nil
}

// byteValue is a pflag.Value for a single byte given in hex, like 0x00.
type byteValue byte

var _ pflag.Value = (*byteValue)(nil)

func newByteValue(val byte, p *byte) *byteValue {
	*p = val
	return (*byteValue)(p)
}

func (b *byteValue) String() string {
	return fmt.Sprintf("0x%02x", byte(*b))
}

func (b *byteValue) Set(s string) error {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("'%s' is not a hex number", s)
	}
	if v > 0xFF {
		return fmt.Errorf("0x%x does not fit in a byte, must be between 0x00 and 0xff", v)
	}
	*b = byteValue(v)
	return nil
}

func (b *byteValue) Type() string {
	return "hexbyte"
}

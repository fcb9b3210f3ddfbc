// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package udev

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
)

const (
	DefaultDirectory = "/etc/udev/rules.d"
	DefaultCommand   = "ardep"
)

var (
	ErrNoDirectory = errors.New("destination directory does not exist")
	ErrExists      = errors.New("rule file already exists")
	ErrMove        = errors.New("failed to move the rule into place")
)

// ExitCode maps an Install error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoDirectory):
		return 1
	case errors.Is(err, ErrExists):
		return 2
	case errors.Is(err, ErrMove):
		return 3
	}
	return 1
}

// Rule grants dfu-util and libusb access to a board in both its runtime
// and DFU mode.
type Rule struct {
	Command string
	Board   string
	VID     string
	PID     string
	PIDDFU  string
}

func (r Rule) FileName() string {
	return fmt.Sprintf("99-%s.rules", r.Command)
}

var ruleTemplate = template.Must(template.New("rule").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`# {{.Board}}: Allow dfu-util/libusb access to ZEPHYR {{upper .Board}} devices
#
# Group selection:
# - First rule sets ASSIGN_GROUP to a suitable system group present on the host:
#     * "uucp" (common on Arch-like distros), otherwise
#     * "plugdev" (common on Ubuntu/Debian)
# - Following rules use GROUP="%E{ASSIGN_GROUP}" plus TAG+="uaccess".
#
# Action/match keys used below:
#   ACTION=="add"               → run when the device is added (hotplug event)
#   SUBSYSTEM=="usb"            → act only on devices in the USB subsystem
#   ENV{DEVTYPE}=="usb_device"  → target the USB *device* node (/dev/bus/usb/BUS/DEV), not interfaces
#   ATTR{idVendor}/idProduct    → match the specific board VID/PIDs
#   MODE:="0660"                → set permissions (rw for owner+group)
#   GROUP:="%E{ASSIGN_GROUP}"   → set the node's group to the selected group from the first rule
#   TAG+="uaccess"              → grant an ACL to the active logged-in user via systemd-logind

ACTION=="add", SUBSYSTEM=="usb", ENV{DEVTYPE}=="usb_device", \
  IMPORT{program}="/bin/sh -c 'if getent group plugdev >/dev/null && [ $(getent group plugdev | cut -d: -f3) -lt 1000 ]; then echo ASSIGN_GROUP=plugdev; elif getent group uucp >/dev/null && [ $(getent group uucp | cut -d: -f3) -lt 1000 ]; then echo ASSIGN_GROUP=uucp; else echo ASSIGN_GROUP=plugdev; fi'"

ACTION=="add", SUBSYSTEM=="usb", ENV{DEVTYPE}=="usb_device", ATTR{idVendor}=="{{.VID}}", ATTR{idProduct}=="{{.PID}}", \
  MODE:="0660", GROUP:="%E{ASSIGN_GROUP}", TAG+="uaccess"

ACTION=="add", SUBSYSTEM=="usb", ENV{DEVTYPE}=="usb_device", ATTR{idVendor}=="{{.VID}}", ATTR{idProduct}=="{{.PIDDFU}}", \
  MODE:="0660", GROUP:="%E{ASSIGN_GROUP}", TAG+="uaccess"
`))

// Render returns the content of the rules file.
func (r Rule) Render() (string, error) {
	var buf bytes.Buffer
	if err := ruleTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Installer writes a rule into a rules directory.
type Installer struct {
	Dir   string
	Force bool
	Out   io.Writer
	// Run executes a command. Defaults to exec.Command with the terminal
	// attached so sudo can prompt.
	Run    func(name string, args ...string) error
	Logger *zap.Logger
}

func (in *Installer) out() io.Writer {
	if in.Out == nil {
		return os.Stdout
	}
	return in.Out
}

func (in *Installer) run(name string, args ...string) error {
	if in.Run != nil {
		return in.Run(name, args...)
	}
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Install writes the rule and returns its final path.
func (in *Installer) Install(rule Rule) (string, error) {
	dir := in.Dir
	if dir == "" {
		dir = DefaultDirectory
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNoDirectory, dir)
	}

	rulePath := filepath.Join(dir, rule.FileName())
	if _, err := os.Stat(rulePath); err == nil && !in.Force {
		return "", fmt.Errorf("%w at: %s\nuse --force to overwrite", ErrExists, rulePath)
	}

	content, err := rule.Render()
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "ardep-udev-*.rules")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	// Rules must be readable by udevd.
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	args := []string{"mv", tmpPath, rulePath}
	if !writable(dir) {
		args = append([]string{"sudo"}, args...)
	}
	if in.Logger != nil {
		in.Logger.Debug("moving udev rule", zap.Strings("command", args))
	}
	if err := in.run(args[0], args[1:]...); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w at %s: %v", ErrMove, rulePath, err)
	}

	fmt.Fprintln(in.out(), "New rule was successfully created")
	if strings.HasPrefix(dir, DefaultDirectory) {
		fmt.Fprintf(in.out(), "To activate the new rule, unplug the %s and run:\n    sudo udevadm control --reload-rules && sudo udevadm trigger\n", rule.Board)
	}
	return rulePath, nil
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".ardep-write-test-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

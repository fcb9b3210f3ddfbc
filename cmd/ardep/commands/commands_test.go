package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brutella/can"
	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toitlang/ardep-tools/cmd/ardep/copyright"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
)

func executeArdep(t *testing.T, args ...string) error {
	t.Helper()
	info := Info{Version: "v0.0.0-test", Date: "today"}
	cmd := ArdepCmd(info)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(SetInfo(context.Background(), info))
}

func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ardep", "config.yaml")
	t.Setenv(directory.UserConfigPathEnv, path)
	return path
}

func Test_ConfigSet(t *testing.T) {
	path := useTempConfig(t)

	require.NoError(t, executeArdep(t, "config", "set", directory.CanInterfaceKey, "vcan0"))
	require.NoError(t, executeArdep(t, "config", "set", directory.CopyrightStyleKey, "SPDX"))
	assert.FileExists(t, path)

	cfg, err := directory.GetUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "vcan0", cfg.GetString(directory.CanInterfaceKey))
	assert.Equal(t, "SPDX", cfg.GetString(directory.CopyrightStyleKey))
	assert.Equal(t, "ardep", cfg.GetString(directory.UdevBoardKey))

	entries := readConfigEntries(cfg)
	assert.Equal(t, "vcan0", entries[directory.CanInterfaceKey])
	assert.Len(t, entries, len(directory.Defaults()))
	assert.Equal(t, "can.interface: vcan0", entries.Elements()[0].Short())
}

func Test_ConfigSetRejects(t *testing.T) {
	useTempConfig(t)

	assert.ErrorContains(t, executeArdep(t, "config", "set", "wifi.ssid", "x"), "unknown config key 'wifi.ssid'")
	assert.Error(t, executeArdep(t, "config", "set", directory.CopyrightStyleKey, "fancy"))
}

func Test_FlashAddress(t *testing.T) {
	tests := []struct {
		name string
		args []string
		addr isotp.Address
		err  bool
	}{
		{name: "defaults", addr: isotp.Address{RxID: 0x7E0, TxID: 0x7E8}},
		{name: "explicit", args: []string{"--uds-source-id", "0x7E2", "--uds-target-id", "0x7EA"}, addr: isotp.Address{RxID: 0x7E2, TxID: 0x7EA}},
		{name: "gearshift wins", args: []string{"--uds-source-id", "0x123", "-g", "3"}, addr: isotp.Address{RxID: 0x7E3, TxID: 0x7EB}},
		{name: "gearshift zero", args: []string{"--gearshift", "0"}, addr: isotp.Address{RxID: 0x7E0, TxID: 0x7E8}},
		{name: "gearshift out of range", args: []string{"-g", "8"}, err: true},
		{name: "bad id", args: []string{"--uds-source-id", "nope"}, err: true},
		{name: "same ids", args: []string{"--uds-source-id", "0x7E0", "--uds-target-id", "0x7E0"}, err: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd := FlashCmd()
			require.NoError(t, cmd.ParseFlags(test.args))
			addr, err := flashAddress(cmd)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.addr, addr)
		})
	}
}

func Test_FlashWithoutHexFile(t *testing.T) {
	useTempConfig(t)
	assert.EqualError(t, executeArdep(t, "flash", "--iface", "vcan0"), "no hex file provided")
}

func Test_FlashMalformedConfig(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("can: [interface\n"), 0644))

	err := executeArdep(t, "flash", "--hex-file", filepath.Join(t.TempDir(), "zephyr.hex"))
	assert.ErrorContains(t, err, "failed to read user config")
}

func Test_FormatFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    can.Frame
		expected string
	}{
		{
			name:     "standard",
			frame:    can.Frame{ID: 0x7E0, Length: 3, Data: [8]uint8{0x02, 0x3E, 0x00}},
			expected: "7E0       [3]  02 3E 00",
		},
		{
			name:     "extended",
			frame:    can.Frame{ID: canEFFFlag | 0x18DA00F1, Length: 1, Data: [8]uint8{0xAA}},
			expected: "18DA00F1  [1]  AA",
		},
		{
			name:     "empty",
			frame:    can.Frame{ID: 0x100},
			expected: "100       [0]",
		},
		{
			name:     "remote",
			frame:    can.Frame{ID: canRTRFlag | 0x123, Length: 2},
			expected: "123       [2]  remote request",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, formatFrame(test.frame))
		})
	}
}

func Test_FrameDumperFilter(t *testing.T) {
	var buf bytes.Buffer
	d := &frameDumper{w: &buf, filter: map[uint32]struct{}{0x7E8: {}}}
	d.Handle(can.Frame{ID: 0x7E0, Length: 1})
	d.Handle(can.Frame{ID: 0x7E8, Length: 1, Data: [8]uint8{0x7E}})
	assert.Equal(t, "7E8       [1]  7E\n", buf.String())
}

func Test_CopyrightCommand(t *testing.T) {
	useTempConfig(t)
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	source := filepath.Join(root, "main.c")
	require.NoError(t, os.WriteFile(source, []byte("int main(void) { return 0; }\n"), 0644))

	err = executeArdep(t, "copyright", root, "--check")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)

	content, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, "int main(void) { return 0; }\n", string(content))

	require.NoError(t, executeArdep(t, "copyright", root, "--company", "ACME Corp", "--license", "MIT"))
	content, err = os.ReadFile(source)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ACME Corp")
	assert.Contains(t, string(content), "SPDX-License-Identifier: MIT")
	assert.Contains(t, string(content), "int main(void) { return 0; }\n")

	require.NoError(t, executeArdep(t, "copyright", root, "--check", "--company", "ACME Corp", "--license", "MIT"))
}

func Test_CopyrightCommandRejectsFlags(t *testing.T) {
	useTempConfig(t)
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	assert.Error(t, executeArdep(t, "copyright", root, "--style", "fancy"))
	assert.Error(t, executeArdep(t, "copyright", root, "-c", "rust"))
	assert.Error(t, executeArdep(t, "copyright", root, "--check", "--watch"))
}

func Test_CopyrightOptions(t *testing.T) {
	useTempConfig(t)
	require.NoError(t, executeArdep(t, "config", "set", directory.CopyrightCompanyKey, "Frickly Systems GmbH; ACME, Inc.;"))
	require.NoError(t, executeArdep(t, "config", "set", directory.CopyrightLicenseKey, "MIT"))
	cfg, err := directory.GetUserConfig()
	require.NoError(t, err)

	tests := []struct {
		name      string
		args      []string
		companies []string
		license   string
	}{
		{name: "config", companies: []string{"Frickly Systems GmbH", "ACME, Inc."}, license: "MIT"},
		{name: "flags", args: []string{"--company", "Foo, Ltd.", "--company", "Bar", "--license", "BSD-3-Clause"}, companies: []string{"Foo, Ltd.", "Bar"}, license: "BSD-3-Clause"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd := CopyrightCmd()
			require.NoError(t, cmd.ParseFlags(test.args))
			opts, err := copyrightOptions(cmd, cfg)
			require.NoError(t, err)
			assert.Equal(t, test.companies, opts.Companies)
			assert.Equal(t, test.license, opts.License)
		})
	}
}

func Test_WatchFiles(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.c")
	const body = "int a;\n"
	require.NoError(t, os.WriteFile(source, []byte(body), 0644))
	if resolved, err := filepath.EvalSymlinks(source); err == nil {
		source = resolved
	}

	runner := &copyright.Runner{
		Options: copyright.Options{Companies: []string{"ACME Corp"}, License: "MIT"},
		Out:     &bytes.Buffer{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchFiles(ctx, runner, []string{source})
	}()

	// Keep writing until the watcher is installed and has fixed the file.
	require.Eventually(t, func() bool {
		content, err := os.ReadFile(source)
		if err != nil {
			return false
		}
		if strings.Contains(string(content), "SPDX-License-Identifier: MIT") {
			return true
		}
		_ = os.WriteFile(source, []byte(body), 0644)
		return false
	}, 5*time.Second, 2*watchSettleTime)

	content, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ACME Corp")
	assert.True(t, strings.HasSuffix(string(content), body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watchFiles did not return after cancel")
	}
}

func Test_VersionCommand(t *testing.T) {
	assert.NoError(t, executeArdep(t, "version", "-o", "json"))
}

func Test_CopyLines(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 3, 4, 12, 30, 15, 250e6, time.UTC) }
	input := "*** Booting Zephyr OS ***\r\nuart:~$ \nlast"

	var plain bytes.Buffer
	require.NoError(t, copyLines(context.Background(), &plain, strings.NewReader(input), false, now))
	assert.Equal(t, "*** Booting Zephyr OS ***\nuart:~$ \nlast\n", plain.String())

	var stamped bytes.Buffer
	require.NoError(t, copyLines(context.Background(), &stamped, strings.NewReader("a\nb\n"), true, now))
	assert.Equal(t, "[12:30:15.250] a\n[12:30:15.250] b\n", stamped.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var none bytes.Buffer
	require.NoError(t, copyLines(ctx, &none, strings.NewReader("a\n"), false, now))
	assert.Empty(t, none.String())
}

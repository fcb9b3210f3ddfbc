package commands

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ExitError(t *testing.T) {
	inner := errors.New("rule exists")
	err := fmt.Errorf("install: %w", &ExitError{Code: 2, Err: inner})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "install: rule exists", err.Error())
}

type testElements []string

func (e testElements) Elements() []Short {
	var res []Short
	for _, s := range e {
		res = append(res, shortString(s))
	}
	return res
}

func Test_NewEncoder(t *testing.T) {
	tests := []struct {
		output   string
		value    interface{}
		expected string
	}{
		{"json", map[string]int{"a": 1}, "{\n  \"a\": 1\n}\n"},
		{"JSON", []int{1}, "[\n  1\n]\n"},
		{"yaml", map[string]int{"a": 1}, "a: 1\n"},
		{"short", testElements{"x", "y"}, "x\ny\n"},
		{"short", shortString("single"), "single\n"},
	}
	for _, test := range tests {
		t.Run(test.output, func(t *testing.T) {
			var buf bytes.Buffer
			enc, err := newEncoder(test.output, &buf)
			require.NoError(t, err)
			require.NoError(t, enc.Encode(test.value))
			assert.Equal(t, test.expected, buf.String())
		})
	}

	enc, err := newEncoder("", &bytes.Buffer{})
	assert.NoError(t, err)
	assert.Nil(t, enc)

	_, err = newEncoder("xml", &bytes.Buffer{})
	assert.ErrorContains(t, err, "'xml' was not recognized")

	enc, err = newEncoder("short", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Error(t, enc.Encode(42))
}

func Test_YAMLEncoderSeparatesDocuments(t *testing.T) {
	var buf bytes.Buffer
	enc, err := newEncoder("yaml", &buf)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(map[string]int{"iteration": 1}))
	require.NoError(t, enc.Encode(map[string]int{"iteration": 2}))
	assert.Equal(t, "iteration: 1\n---\niteration: 2\n", buf.String())
}

func Test_ByteValue(t *testing.T) {
	var b byte
	v := newByteValue(0x00, &b)
	assert.Equal(t, "0x00", v.String())
	assert.Equal(t, "hexbyte", v.Type())

	tests := []struct {
		in       string
		expected byte
		err      bool
	}{
		{in: "0x7e", expected: 0x7E},
		{in: "0X0A", expected: 0x0A},
		{in: "ff", expected: 0xFF},
		{in: "0", expected: 0x00},
		{in: "0x100", err: true},
		{in: "zz", err: true},
		{in: "", err: true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			b = 0x55
			err := v.Set(test.in)
			if test.err {
				assert.Error(t, err)
				assert.Equal(t, byte(0x55), b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, b)
		})
	}
}

func Test_FilterPaths(t *testing.T) {
	linux := []string{"/dev/ttyS0", "/dev/ttyACM1", "/dev/ttyACM3", "/dev/ttyUSB0", "/dev/console"}
	assert.Equal(t, []string{"/dev/ttyACM1", "/dev/ttyACM3", "/dev/ttyUSB0"}, linuxFilterPaths(linux))

	darwin := []string{
		"/dev/cu.usbmodem1101",
		"/dev/tty.usbmodem1101",
		"/dev/tty.usbserial-1",
		"/dev/cu.Bluetooth-Incoming-Port",
	}
	assert.Equal(t, []string{"/dev/cu.usbmodem1101", "/dev/tty.usbserial-1"}, darwinFilterPaths(darwin))
}

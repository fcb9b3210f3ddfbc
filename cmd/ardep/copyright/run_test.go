package copyright

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RunnerRewritesFiles(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	source := writeFile(t, dir, "main.c", "int main() {}\n")
	script := writeFile(t, dir, "run.py", "#!/usr/bin/env python3\nprint('hi')\n")
	require.NoError(t, os.Chmod(script, 0755))
	notes := writeFile(t, dir, "notes.txt", "hello\n")

	var out bytes.Buffer
	r := &Runner{Options: testOptions(), Verbose: true, Out: &out}
	summary, err := r.Run(context.Background(), []string{source, script, notes})
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, Changed: 2, Skipped: 1}, summary)

	content, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env python3\n"+
		"#\n"+
		"# SPDX-FileCopyrightText: Copyright (C) 2025 Frickly Systems GmbH\n"+
		"#\n"+
		"# SPDX-License-Identifier: Apache-2.0\n"+
		"\n"+
		"print('hi')\n", string(content))

	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	assert.Contains(t, out.String(), "[UPDATED] "+source)
	assert.Contains(t, out.String(), "[UPDATED] "+script)

	out.Reset()
	summary, err = r.Run(context.Background(), []string{source, script})
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2}, summary)
	assert.Contains(t, out.String(), "[OK] "+source)
}

func Test_RunnerDryRun(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	source := writeFile(t, dir, "uds.h", "#pragma once\n")

	var out bytes.Buffer
	r := &Runner{Options: testOptions(), DryRun: true, Out: &out}
	changed, handled, err := r.ProcessFile(source)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, handled)
	assert.Equal(t, "[DRY-RUN] Would update "+source+"\n", out.String())

	content, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, "#pragma once\n", string(content))
}

func Test_RunnerMissingFile(t *testing.T) {
	r := &Runner{Options: testOptions(), Out: &bytes.Buffer{}}
	_, err := r.Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.c")})
	assert.Error(t, err)
}

func Test_RunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Options: testOptions(), Out: &bytes.Buffer{}}
	_, err := r.Run(ctx, []string{"a.c"})
	assert.ErrorIs(t, err, context.Canceled)
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package copyright

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

var (
	okTag      = color.New(color.FgGreen).SprintFunc()
	updatedTag = color.New(color.FgYellow).SprintFunc()
	dryRunTag  = color.New(color.FgCyan).SprintFunc()
)

// Runner applies the processors to a set of files.
type Runner struct {
	Options Options
	DryRun  bool
	Verbose bool
	Out     io.Writer
	Logger  *zap.Logger
}

// Summary counts the outcome of a run.
type Summary struct {
	Checked int
	Changed int
	Skipped int
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run processes every file, stopping early if ctx is cancelled.
func (r *Runner) Run(ctx context.Context, files []string) (Summary, error) {
	var summary Summary
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		changed, handled, err := r.ProcessFile(path)
		if err != nil {
			return summary, err
		}
		if !handled {
			summary.Skipped++
			continue
		}
		summary.Checked++
		if changed {
			summary.Changed++
		}
	}
	return summary, nil
}

// ProcessFile rewrites a single file. It reports whether the header changed
// (or would change in dry-run mode) and whether the file type is handled.
func (r *Runner) ProcessFile(path string) (changed bool, handled bool, err error) {
	p := ProcessorFor(path, r.Options)
	if p == nil {
		r.logger().Debug("skipping unsupported file", zap.String("path", path))
		return false, false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, true, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return false, true, err
	}

	lines, changed := p.Process(SplitLines(string(content)))
	if !changed {
		if r.Verbose {
			fmt.Fprintf(r.out(), "%s %s\n", okTag("[OK]"), path)
		}
		return false, true, nil
	}

	if r.DryRun {
		fmt.Fprintf(r.out(), "%s Would update %s\n", dryRunTag("[DRY-RUN]"), path)
		return true, true, nil
	}

	if err := os.WriteFile(path, []byte(JoinLines(lines)), info.Mode().Perm()); err != nil {
		return true, true, fmt.Errorf("failed to write '%s': %w", path, err)
	}
	r.logger().Debug("rewrote header", zap.String("path", path))
	if r.Verbose {
		fmt.Fprintf(r.out(), "%s %s\n", updatedTag("[UPDATED]"), path)
	}
	return true, true, nil
}

// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"os"

	"github.com/toitlang/ardep-tools/cmd/ardep/commands"
)

var (
	version   = "development"
	buildDate = "unknown"
)

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
	}
	ctx := commands.SetInfo(context.Background(), info)
	cmd := commands.ArdepCmd(info)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

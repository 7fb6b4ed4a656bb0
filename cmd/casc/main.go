// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command casc reads assets out of a local game installation, falling
// back to the CDN for anything the installation does not hold.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/casc/cmd/casc/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own result (fetch --check) return
		// an error carrying the exit code; no "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root(os.Stdout).Execute(ctx, os.Args[1:])
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/version"
)

func versionCommand(stdout io.Writer) *cli.Command {
	var format string
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "casc version [--format json|yaml|cbor]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.StringVar(&format, "format", "", "structured output format: json, yaml, or cbor")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if format == "" {
				_, err := fmt.Fprintln(stdout, "casc "+version.Full())
				return err
			}
			return emit(stdout, format, "", version.Current())
		},
	}
}

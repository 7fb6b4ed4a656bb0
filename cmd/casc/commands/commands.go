// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the casc command tree.
package commands

import (
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/dump"
)

// Root returns the top-level command. Command output goes to stdout;
// logs go to stderr through the configured logger.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "casc",
		Description: "Read-only client for content-addressed game asset storage.",
		Subcommands: []*cli.Command{
			infoCommand(stdout),
			fetchCommand(stdout),
			keysCommand(stdout),
			db2Command(stdout),
			versionCommand(stdout),
		},
		Examples: []cli.Example{
			{
				Description: "Describe the installed build",
				Command:     "casc info --root ~/Games/World\\ of\\ Warcraft",
			},
			{
				Description: "Extract a file by data id",
				Command:     "casc fetch 1349477 -o Map.db2",
			},
			{
				Description: "Decode a table with its definition",
				Command:     "casc db2 Map.db2 --dbd definitions/Map.dbd --format yaml",
			},
		},
	}
}

// formatFlag registers --format and returns where its value lands.
func formatFlag(flagSet *pflag.FlagSet, value *string) {
	flagSet.StringVar(value, "format", "json", "output format: json, yaml, or cbor")
}

// emit encodes value to path when set, otherwise to stdout.
func emit(stdout io.Writer, formatName, path string, value any) error {
	format, err := dump.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if path != "" {
		return dump.WriteFile(path, format, value)
	}
	return dump.Write(stdout, format, value)
}

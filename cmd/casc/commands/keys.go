// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/dump"
	"github.com/bureau-foundation/casc/lib/tactkey"
)

func keysCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Summary: "Inspect decryption keys",
		Description: `Inspect the decryption keys known to the client: the builtin keys,
configured key files, and keys resolved from the build's own key
tables.`,
		Subcommands: []*cli.Command{
			keysListCommand(stdout),
			keysSeedCommand(stdout),
			keysMissingCommand(stdout),
		},
	}
}

func keysListCommand(stdout io.Writer) *cli.Command {
	var (
		session  session
		showKeys bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List known key names",
		Description: `List the names of the builtin keys and those loaded from key files.
The installation is not opened.`,
		Usage: "casc keys list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			session.addFlags(flagSet)
			flagSet.BoolVar(&showKeys, "show-keys", false, "print each key beside its name")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := session.config()
			if err != nil {
				return err
			}
			logger, err := session.logger(cfg)
			if err != nil {
				return err
			}
			service := session.keys(cfg, logger)
			for _, name := range service.Names() {
				if !showKeys {
					fmt.Fprintf(stdout, "%016X\n", name)
					continue
				}
				key, _ := service.Key(name)
				fmt.Fprintf(stdout, "%016X %X\n", name, key[:])
			}
			return nil
		},
	}
}

func keysSeedCommand(stdout io.Writer) *cli.Command {
	var (
		session session
		output  string
	)
	return &cli.Command{
		Name:    "seed",
		Summary: "Resolve keys from the build's key tables",
		Description: `Read the TactKey and TactKeyLookup tables from the installation, join
them, and write the resolved keys as NAME:KEY:ID lines. The output can
be passed back with --keys.`,
		Usage: "casc keys seed [flags]",
		Examples: []cli.Example{
			{Description: "Save the resolved keys", Command: "casc keys seed -o keyring.txt"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
			session.addFlags(flagSet)
			flagSet.StringVarP(&output, "output", "o", "", "write the keyring to this path instead of stdout")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			session.seedKeys = false
			store, err := session.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.SeedKeys(ctx)
			if err != nil {
				return err
			}
			if output != "" {
				return dump.WriteFileFunc(output, func(w io.Writer) error {
					return tactkey.WriteKeyring(w, result.Resolved)
				})
			}
			return tactkey.WriteKeyring(stdout, result.Resolved)
		},
	}
}

func keysMissingCommand(stdout io.Writer) *cli.Command {
	var session session
	return &cli.Command{
		Name:    "missing",
		Summary: "List key names the build needs but nobody supplied",
		Description: `List every key name referenced by the encoding table's encryption
specs for which no key is known, after seeding from the key tables.
Assets encrypted under these names decode as zeros.`,
		Usage: "casc keys missing [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("missing", pflag.ContinueOnError)
			session.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			store, err := session.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, name := range store.Encoding().KeyNames() {
				if _, ok := store.Keys().Key(name); !ok {
					fmt.Fprintf(stdout, "%016X\n", name)
				}
			}
			return nil
		},
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/storage"
)

// buildSummary is the output of "casc info".
type buildSummary struct {
	Product   string `json:"product" yaml:"product" cbor:"product"`
	Version   string `json:"version" yaml:"version" cbor:"version"`
	BuildName string `json:"build_name" yaml:"build_name" cbor:"build_name"`
	BuildKey  string `json:"build_key" yaml:"build_key" cbor:"build_key"`
	CDNKey    string `json:"cdn_key,omitempty" yaml:"cdn_key,omitempty" cbor:"cdn_key,omitempty"`
	DataDir   string `json:"data_dir" yaml:"data_dir" cbor:"data_dir"`
	Archives  int    `json:"archives" yaml:"archives" cbor:"archives"`

	LocalEntries     int `json:"local_entries" yaml:"local_entries" cbor:"local_entries"`
	EncodingEntries  int `json:"encoding_entries" yaml:"encoding_entries" cbor:"encoding_entries"`
	EncryptedEntries int `json:"encrypted_entries" yaml:"encrypted_entries" cbor:"encrypted_entries"`
	RootEntries      int `json:"root_entries" yaml:"root_entries" cbor:"root_entries"`
	KnownKeys        int `json:"known_keys" yaml:"known_keys" cbor:"known_keys"`
	ListfileNames    int `json:"listfile_names,omitempty" yaml:"listfile_names,omitempty" cbor:"listfile_names,omitempty"`
}

func summarize(store *storage.Storage) buildSummary {
	build := store.Build()
	summary := buildSummary{
		Product:          build.Product,
		Version:          build.Version,
		BuildName:        build.BuildName,
		BuildKey:         build.BuildKey,
		CDNKey:           build.CDNKey,
		DataDir:          build.DataDir,
		Archives:         len(build.Archives),
		LocalEntries:     store.LocalIndex().Len(),
		EncodingEntries:  store.Encoding().Len(),
		EncryptedEntries: store.Encoding().EncryptedLen(),
		RootEntries:      store.Root().Len(),
		KnownKeys:        store.Keys().Len(),
	}
	if names := store.Listfile(); names != nil {
		summary.ListfileNames = names.Len()
	}
	return summary
}

func infoCommand(stdout io.Writer) *cli.Command {
	var (
		session session
		format  string
	)
	return &cli.Command{
		Name:    "info",
		Summary: "Describe the installed build",
		Description: `Open the installation and print what was loaded: the selected build,
the number of local index, encoding, and root manifest entries, and
how many decryption keys are known.`,
		Usage: "casc info [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
			session.addFlags(flagSet)
			formatFlag(flagSet, &format)
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
			return emit(stdout, format, "", summarize(store))
		},
	}
}

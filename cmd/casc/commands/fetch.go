// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/dump"
	"github.com/bureau-foundation/casc/lib/hashkey"
	"github.com/bureau-foundation/casc/lib/storage"
)

// target names one asset the way the user typed it.
type target struct {
	id          uint32
	name        string
	contentKey  hashkey.ContentKey
	encodingKey hashkey.EncodingKey
	kind        targetKind
}

type targetKind int

const (
	targetID targetKind = iota
	targetName
	targetContentKey
	targetEncodingKey
)

// parseTarget reads a decimal file data id, or a listfile name. With
// asContent or asEncoding the argument is a 32-digit hex key instead.
func parseTarget(argument string, asContent, asEncoding bool) (target, error) {
	switch {
	case asContent && asEncoding:
		return target{}, errors.New("--ckey and --ekey are mutually exclusive")
	case asContent:
		key, err := hashkey.ParseContentKey(argument)
		return target{contentKey: key, kind: targetContentKey}, err
	case asEncoding:
		key, err := hashkey.ParseEncodingKey(argument)
		return target{encodingKey: key, kind: targetEncodingKey}, err
	}
	if id, err := strconv.ParseUint(argument, 10, 32); err == nil {
		return target{id: uint32(id), kind: targetID}, nil
	}
	return target{name: argument, kind: targetName}, nil
}

func (t target) fetch(ctx context.Context, store *storage.Storage) ([]byte, error) {
	switch t.kind {
	case targetContentKey:
		return store.FetchContent(ctx, t.contentKey)
	case targetEncodingKey:
		return store.FetchEncoded(ctx, t.encodingKey)
	case targetName:
		return store.FetchByName(ctx, t.name)
	}
	return store.Fetch(ctx, t.id)
}

// isAbsent reports whether err means the asset is not in the build.
func isAbsent(err error) bool {
	return errors.Is(err, cascerr.ErrFileNotFound) || errors.Is(err, cascerr.ErrMissingEncoding)
}

func fetchCommand(stdout io.Writer) *cli.Command {
	var (
		session    session
		output     string
		asContent  bool
		asEncoding bool
		check      bool
	)
	return &cli.Command{
		Name:    "fetch",
		Summary: "Extract one file",
		Description: `Resolve a file by data id, listfile name, content key, or encoding
key, decode it, and write the bytes to stdout or --output. Assets
missing from the local archives are fetched from the CDN unless
--no-cdn is set.`,
		Usage: "casc fetch <id|name|key> [flags]",
		Examples: []cli.Example{
			{Description: "Extract by file data id", Command: "casc fetch 1349477 -o Map.db2"},
			{Description: "Extract by name", Command: "casc fetch dbfilesclient/map.db2 --listfile listfile.csv > Map.db2"},
			{Description: "Test for presence", Command: "casc fetch --check 1349477"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			session.addFlags(flagSet)
			flagSet.StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
			flagSet.BoolVar(&asContent, "ckey", false, "the argument is a content key")
			flagSet.BoolVar(&asEncoding, "ekey", false, "the argument is an encoding key")
			flagSet.BoolVar(&check, "check", false, "exit 1 if the file is absent, writing nothing")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file argument, got %d", len(args))
			}
			want, err := parseTarget(args[0], asContent, asEncoding)
			if err != nil {
				return err
			}

			store, err := session.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := want.fetch(ctx, store)
			if check {
				if isAbsent(err) {
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			if err != nil {
				return err
			}

			if output != "" {
				return dump.WriteFileFunc(output, func(w io.Writer) error {
					_, err := w.Write(data)
					return err
				})
			}
			_, err = stdout.Write(data)
			return err
		},
	}
}

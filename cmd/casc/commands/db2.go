// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/db2"
	"github.com/bureau-foundation/casc/lib/dbd"
)

// tableSummary is the output of "casc db2" without a definition.
type tableSummary struct {
	Magic       string           `json:"magic" yaml:"magic" cbor:"magic"`
	Records     uint32           `json:"records" yaml:"records" cbor:"records"`
	Fields      uint32           `json:"fields" yaml:"fields" cbor:"fields"`
	RecordSize  uint32           `json:"record_size" yaml:"record_size" cbor:"record_size"`
	Sparse      bool             `json:"sparse" yaml:"sparse" cbor:"sparse"`
	LayoutHash  string           `json:"layout_hash,omitempty" yaml:"layout_hash,omitempty" cbor:"layout_hash,omitempty"`
	DecodedRows int              `json:"decoded_rows,omitempty" yaml:"decoded_rows,omitempty" cbor:"decoded_rows,omitempty"`
	Sections    []sectionSummary `json:"sections" yaml:"sections" cbor:"sections"`
}

type sectionSummary struct {
	Records   int    `json:"records" yaml:"records" cbor:"records"`
	Offset    int    `json:"offset" yaml:"offset" cbor:"offset"`
	Size      int    `json:"size" yaml:"size" cbor:"size"`
	Strings   int    `json:"strings" yaml:"strings" cbor:"strings"`
	Encrypted bool   `json:"encrypted" yaml:"encrypted" cbor:"encrypted"`
	TactKey   string `json:"tact_key,omitempty" yaml:"tact_key,omitempty" cbor:"tact_key,omitempty"`
}

func summarizeTable(file *db2.File) tableSummary {
	summary := tableSummary{
		Magic:      file.Magic,
		Records:    file.RecordCount,
		Fields:     file.FieldCount,
		RecordSize: file.RecordSize,
		Sparse:     file.Sparse(),
		Sections:   make([]sectionSummary, 0, len(file.Sections)),
	}
	for _, section := range file.Sections {
		entry := sectionSummary{
			Records:   int(section.RecordCount),
			Offset:    section.DataOffset,
			Size:      section.DataSize,
			Strings:   section.StringSize,
			Encrypted: section.Encrypted(),
		}
		if entry.Encrypted {
			entry.TactKey = fmt.Sprintf("%016X", section.TactKeyHash)
		}
		summary.Sections = append(summary.Sections, entry)
	}
	return summary
}

// readTable returns the table bytes from a file on disk, or from the
// installation when no such file exists.
func readTable(ctx context.Context, session *session, argument string) ([]byte, error) {
	data, err := os.ReadFile(argument)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	want, err := parseTarget(argument, false, false)
	if err != nil {
		return nil, err
	}
	store, err := session.open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return want.fetch(ctx, store)
}

func db2Command(stdout io.Writer) *cli.Command {
	var (
		session    session
		definition string
		format     string
		output     string
		summary    bool
		typed      bool
	)
	return &cli.Command{
		Name:    "db2",
		Summary: "Describe or decode a client database table",
		Description: `Parse a DB2 table (WDB5 through WDC5) from a file, or from the
installation by data id or listfile name when no such file exists.

Without --dbd the header and section layout are printed. With a
database definition the rows of a WDC5 table are decoded into named
columns and written in the chosen format.`,
		Usage: "casc db2 <file|id|name> [flags]",
		Examples: []cli.Example{
			{Description: "Show the section layout", Command: "casc db2 Map.db2"},
			{Description: "Decode rows from the installation", Command: "casc db2 1349477 --dbd Map.dbd --format yaml -o map.yaml"},
			{Description: "Decode map records into typed rows", Command: "casc db2 Map.db2 --dbd Map.dbd --typed"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("db2", pflag.ContinueOnError)
			session.addFlags(flagSet)
			flagSet.StringVar(&definition, "dbd", "", "database definition used to name and type columns")
			flagSet.BoolVar(&summary, "summary", false, "with --dbd, print the layout and decoded row count instead of rows")
			flagSet.BoolVar(&typed, "typed", false, "with --dbd, convert rows of a known table (Map, AreaTable, Spell) to typed records")
			flagSet.StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
			formatFlag(flagSet, &format)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one table argument, got %d", len(args))
			}
			data, err := readTable(ctx, &session, args[0])
			if err != nil {
				return err
			}
			file, err := db2.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			layout := summarizeTable(file)

			if definition == "" {
				if file.Magic == db2.MagicWDC5 {
					table, err := db2.ParseWDC5(data)
					if err != nil {
						return fmt.Errorf("%s: %w", args[0], err)
					}
					layout.LayoutHash = fmt.Sprintf("%08X", table.Header.LayoutHash)
					layout.DecodedRows = table.Len()
				}
				return emit(stdout, format, output, layout)
			}

			if file.Magic != db2.MagicWDC5 {
				return fmt.Errorf("%s: decoding %s tables is not supported, only %s", args[0], file.Magic, db2.MagicWDC5)
			}
			schema, err := dbd.Load(definition)
			if err != nil {
				return err
			}
			table, err := db2.ParseWDC5(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			records, err := db2.Decode(table, schema)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if summary {
				layout.LayoutHash = fmt.Sprintf("%08X", table.Header.LayoutHash)
				layout.DecodedRows = len(records)
				return emit(stdout, format, output, layout)
			}
			if typed {
				view, ok := db2.ViewFor(schema.Name)
				if !ok {
					return fmt.Errorf("%s: no typed view for table %q", args[0], schema.Name)
				}
				rows, err := view(records)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return emit(stdout, format, output, rows)
			}
			return emit(stdout, format, output, records)
		},
	}
}

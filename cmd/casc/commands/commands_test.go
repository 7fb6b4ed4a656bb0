// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/casc/cmd/casc/cli"
	"github.com/bureau-foundation/casc/lib/config"
	"github.com/bureau-foundation/casc/lib/db2"
)

const zoneDefinition = `COLUMNS
int ID
int Level
string Name

LAYOUT 00001234
$noninline,id$ID<32>
Level<u16>
Name
`

// zoneTable builds a two-row WDC5 table: a 16-bit level and a string.
func zoneTable() []byte {
	fixture := db2.BuildTable{
		LayoutHash: 0x00001234,
		RecordSize: 8,
		Columns: []db2.BuildColumn{
			{Column: db2.Column{OffsetBits: 0, SizeBits: 16, Compression: db2.CompressionImmediate, Val2: 16}, FieldSize: 16},
			{Column: db2.Column{OffsetBits: 32, SizeBits: 32, Compression: db2.CompressionNone}},
		},
		Sections: []db2.BuildSection{{
			Strings: []byte("\x00Azeroth\x00Outland\x00"),
			IDs:     []uint32{100, 101},
		}},
	}
	levels := []uint64{60, 70}
	names := []int{1, 9}
	for row := range levels {
		record := db2.NewBitWriter(8).
			Put(0, 16, levels[row]).
			Put(32, 32, uint64(fixture.StringRef(row, 4, names[row]))).
			Bytes()
		fixture.Sections[0].Records = append(fixture.Sections[0].Records, record)
	}
	return db2.Build(fixture)
}

// execute runs the command tree with a clean environment and returns
// what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	var stdout, help bytes.Buffer
	root := Root(&stdout)
	root.HelpOutput = &help
	err := root.Execute(context.Background(), args)
	return stdout.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestDB2_Summary(t *testing.T) {
	path := writeFile(t, "Zone.db2", zoneTable())
	output, err := execute(t, "db2", path)
	if err != nil {
		t.Fatalf("db2: %v", err)
	}

	var summary tableSummary
	if err := json.Unmarshal([]byte(output), &summary); err != nil {
		t.Fatalf("decoding summary: %v\n%s", err, output)
	}
	if summary.Magic != db2.MagicWDC5 || summary.Records != 2 || summary.LayoutHash != "00001234" || summary.DecodedRows != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Sections) != 1 || summary.Sections[0].Encrypted {
		t.Errorf("sections = %+v", summary.Sections)
	}
}

func TestDB2_Decode(t *testing.T) {
	path := writeFile(t, "Zone.db2", zoneTable())
	definition := writeFile(t, "Zone.dbd", []byte(zoneDefinition))

	output, err := execute(t, "db2", path, "--dbd", definition)
	if err != nil {
		t.Fatalf("db2: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		t.Fatalf("decoding rows: %v\n%s", err, output)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["ID"] != float64(100) || rows[0]["Level"] != float64(60) || rows[0]["Name"] != "Azeroth" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1]["Name"] != "Outland" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestDB2_Typed(t *testing.T) {
	path := writeFile(t, "Map.db2", zoneTable())
	definition := writeFile(t, "Map.dbd", []byte(strings.Replace(zoneDefinition, "Name", "Directory", 2)))

	output, err := execute(t, "db2", path, "--dbd", definition, "--typed")
	if err != nil {
		t.Fatalf("db2 --typed: %v", err)
	}
	var rows []db2.MapRow
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		t.Fatalf("decoding rows: %v\n%s", err, output)
	}
	if len(rows) != 2 || rows[0].ID != 100 || rows[1].Directory != "Outland" {
		t.Errorf("rows = %+v", rows)
	}

	zone := writeFile(t, "Zone.dbd", []byte(zoneDefinition))
	if _, err := execute(t, "db2", path, "--dbd", zone, "--typed"); err == nil || !strings.Contains(err.Error(), "no typed view") {
		t.Errorf("unknown table: error = %v", err)
	}
}

func TestDB2_DecodeToFile(t *testing.T) {
	path := writeFile(t, "Zone.db2", zoneTable())
	definition := writeFile(t, "Zone.dbd", []byte(zoneDefinition))
	destination := filepath.Join(t.TempDir(), "out", "zone.yaml")

	output, err := execute(t, "db2", path, "--dbd", definition, "--format", "yaml", "-o", destination)
	if err != nil {
		t.Fatalf("db2: %v", err)
	}
	if output != "" {
		t.Errorf("stdout = %q, want nothing", output)
	}
	data, err := os.ReadFile(destination)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), "Name: Outland") {
		t.Errorf("output = %s", data)
	}
}

func TestDB2_Errors(t *testing.T) {
	legacy := []byte(db2.MagicWDC1)
	for range 4 {
		legacy = binary.LittleEndian.AppendUint32(legacy, 0)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no argument", []string{"db2"}, "exactly one"},
		{"legacy decode", []string{"db2", writeFile(t, "Old.db2", legacy), "--dbd", "unused.dbd"}, "not supported"},
		{"garbage", []string{"db2", writeFile(t, "Bad.db2", []byte("nonsense"))}, "Bad.db2"},
		{"bad format", []string{"db2", writeFile(t, "Zone.db2", zoneTable()), "--format", "xml"}, "unknown dump format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestKeysList(t *testing.T) {
	keyFile := writeFile(t, "keys.txt", []byte("0000000000000042;00112233445566778899AABBCCDDEEFF\n"))

	output, err := execute(t, "keys", "list", "--keys", keyFile, "--show-keys")
	if err != nil {
		t.Fatalf("keys list: %v", err)
	}
	if !strings.Contains(output, "0000000000000042 00112233445566778899AABBCCDDEEFF\n") {
		t.Errorf("output missing loaded key:\n%s", output)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		t.Errorf("output lists %d keys, want builtin keys too", len(lines))
	}
}

func TestFetch_MissingInstallation(t *testing.T) {
	_, err := execute(t, "fetch", "1349477", "--root", t.TempDir(), "--no-cdn")
	if err == nil {
		t.Fatal("fetch from an empty directory succeeded")
	}
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		t.Errorf("error = %v, want a reported failure rather than an exit code", err)
	}
}

func TestParseTarget(t *testing.T) {
	const hexKey = "00112233445566778899aabbccddeeff"
	tests := []struct {
		argument   string
		asContent  bool
		asEncoding bool
		want       targetKind
	}{
		{"1349477", false, false, targetID},
		{"dbfilesclient/map.db2", false, false, targetName},
		{"99999999999", false, false, targetName},
		{hexKey, true, false, targetContentKey},
		{hexKey, false, true, targetEncodingKey},
	}
	for _, tt := range tests {
		got, err := parseTarget(tt.argument, tt.asContent, tt.asEncoding)
		if err != nil {
			t.Errorf("parseTarget(%q): %v", tt.argument, err)
			continue
		}
		if got.kind != tt.want {
			t.Errorf("parseTarget(%q) kind = %d, want %d", tt.argument, got.kind, tt.want)
		}
	}

	if _, err := parseTarget(hexKey, true, true); err == nil {
		t.Error("--ckey with --ekey accepted")
	}
	if _, err := parseTarget("not-hex", true, false); err == nil {
		t.Error("malformed content key accepted")
	}
	if got, _ := parseTarget("1349477", false, false); got.id != 1349477 {
		t.Errorf("id = %d, want 1349477", got.id)
	}
}

func TestVersion(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(output, "casc ") || !strings.Contains(output, "Go: ") {
		t.Errorf("output = %q", output)
	}

	output, err = execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version --format json: %v", err)
	}
	var build map[string]any
	if err := json.Unmarshal([]byte(output), &build); err != nil {
		t.Fatalf("decoding version: %v", err)
	}
	if build["version"] == "" || build["platform"] == "" {
		t.Errorf("build = %v", build)
	}
}

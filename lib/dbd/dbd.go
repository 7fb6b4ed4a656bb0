// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbd parses database definition (.dbd) files, the community
// schema format naming the columns of client database tables.
//
// A file opens with a COLUMNS block declaring each column once:
//
//	COLUMNS
//	int ID
//	locstring MapName_lang
//	int<AreaTable::ID> AreaTableID // zone the map belongs to
//	float MinimapIconScale?
//
// A trailing "?" marks an unverified name. Blank-line separated
// definition blocks follow, each listing the layout hashes and builds
// it covers and the physical field order for them:
//
//	LAYOUT 1A2B3C4D, 5E6F7A8B
//	BUILD 10.2.0.52607
//	$noninline,id$ID<32>
//	MapName_lang
//	AreaTableID<u16>
//	Flags<32>[2]
//
// Annotations between dollar signs mark the id field, fields stored
// outside the record ("noninline"), and the relation field.
package dbd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// Type is a column's declared value type.
type Type string

const (
	TypeInt       Type = "int"
	TypeUint      Type = "uint"
	TypeShort     Type = "short"
	TypeUshort    Type = "ushort"
	TypeByte      Type = "byte"
	TypeUbyte     Type = "ubyte"
	TypeLong      Type = "long"
	TypeUlong     Type = "ulong"
	TypeFloat     Type = "float"
	TypeString    Type = "string"
	TypeLocString Type = "locstring"
)

var knownTypes = []Type{
	TypeInt, TypeUint, TypeShort, TypeUshort, TypeByte, TypeUbyte,
	TypeLong, TypeUlong, TypeFloat, TypeString, TypeLocString,
}

// IsString reports whether values of t are string table references.
func (t Type) IsString() bool { return t == TypeString || t == TypeLocString }

// Unsigned reports whether t names an unsigned integer type.
func (t Type) Unsigned() bool {
	switch t {
	case TypeUint, TypeUshort, TypeUbyte, TypeUlong:
		return true
	}
	return false
}

// Column is one COLUMNS entry.
type Column struct {
	Type Type
	Name string

	// Foreign is "Table::Column" when the column references another
	// table.
	Foreign string

	Verified bool
	Comment  string
}

// Field is one field of a definition block.
type Field struct {
	Name string

	// Size is the integer width in bits; zero for floats and strings.
	Size     int
	Unsigned bool

	// Array is the element count of an array field, zero for scalars.
	Array int

	ID        bool
	NonInline bool
	Relation  bool
	Comment   string
}

// Definition is one block of layouts and builds sharing a field order.
type Definition struct {
	Layouts []uint32
	Builds  []string
	Comment string
	Fields  []Field
}

// Inline returns the fields stored in the record, in column order.
func (d *Definition) Inline() []Field {
	var fields []Field
	for _, field := range d.Fields {
		if !field.NonInline {
			fields = append(fields, field)
		}
	}
	return fields
}

// Schema is a parsed definition file.
type Schema struct {
	// Name is the table name, from the file name for [Load].
	Name        string
	Columns     []Column
	Definitions []Definition

	columns map[string]int
}

// Column returns the declared column for a field name.
func (s *Schema) Column(name string) (Column, bool) {
	index, ok := s.columns[name]
	if !ok {
		return Column{}, false
	}
	return s.Columns[index], true
}

// ForLayout returns the definition covering a table's layout hash.
func (s *Schema) ForLayout(hash uint32) (*Definition, bool) {
	for i := range s.Definitions {
		if slices.Contains(s.Definitions[i].Layouts, hash) {
			return &s.Definitions[i], true
		}
	}
	return nil, false
}

// ForBuild returns the definition listing build, either exactly or
// inside a "first-last" range.
func (s *Schema) ForBuild(build string) (*Definition, bool) {
	version, err := parseBuild(build)
	if err != nil {
		return nil, false
	}
	for i := range s.Definitions {
		for _, entry := range s.Definitions[i].Builds {
			first, last, isRange := strings.Cut(entry, "-")
			if !isRange {
				last = first
			}
			low, lowErr := parseBuild(strings.TrimSpace(first))
			high, highErr := parseBuild(strings.TrimSpace(last))
			if lowErr != nil || highErr != nil {
				continue
			}
			if slices.Compare(low[:], version[:]) <= 0 && slices.Compare(version[:], high[:]) <= 0 {
				return &s.Definitions[i], true
			}
		}
	}
	return nil, false
}

func parseBuild(build string) ([4]int, error) {
	var version [4]int
	parts := strings.Split(build, ".")
	if len(parts) != 4 {
		return version, fmt.Errorf("build %q: %w", build, cascerr.ErrInvalidConfig)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return version, fmt.Errorf("build %q: %w", build, cascerr.ErrInvalidConfig)
		}
		version[i] = n
	}
	return version, nil
}

// Load reads a definition file. The schema is named after the file.
func Load(path string) (*Schema, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening definition %s: %w", path, err)
	}
	defer file.Close()
	schema, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	schema.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return schema, nil
}

// Parse reads a definition file. Every field must name a declared
// column.
func Parse(r io.Reader) (*Schema, error) {
	schema := &Schema{columns: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	const (
		preamble = iota
		columns
		definitions
	)
	state := preamble
	var current *Definition
	lineNumber := 0

	flush := func() {
		if current != nil && (len(current.Fields) > 0 || len(current.Layouts) > 0 || len(current.Builds) > 0) {
			schema.Definitions = append(schema.Definitions, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		switch {
		case line == "COLUMNS":
			state = columns
			continue
		case state == preamble:
			if line != "" && schema.Name == "" && !strings.HasPrefix(line, "//") {
				schema.Name = line
			}
			continue
		case line == "":
			if state == columns {
				state = definitions
			}
			flush()
			continue
		}

		if state == columns {
			column, err := parseColumn(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			if _, dup := schema.columns[column.Name]; dup {
				return nil, fmt.Errorf("line %d: column %s declared twice: %w", lineNumber, column.Name, cascerr.ErrInvalidConfig)
			}
			schema.columns[column.Name] = len(schema.Columns)
			schema.Columns = append(schema.Columns, column)
			continue
		}

		if current == nil {
			current = &Definition{}
		}
		if err := current.parseLine(line, schema); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading definition: %w", err)
	}
	flush()

	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("no COLUMNS block: %w", cascerr.ErrInvalidConfig)
	}
	return schema, nil
}

// splitComment separates a trailing "// comment".
func splitComment(line string) (string, string) {
	body, comment, _ := strings.Cut(line, "//")
	return strings.TrimSpace(body), strings.TrimSpace(comment)
}

func parseColumn(line string) (Column, error) {
	body, comment := splitComment(line)
	typeName, name, ok := strings.Cut(body, " ")
	if !ok {
		return Column{}, fmt.Errorf("column %q has no name: %w", line, cascerr.ErrInvalidConfig)
	}
	column := Column{Name: strings.TrimSpace(name), Comment: comment, Verified: true}
	if open := strings.IndexByte(typeName, '<'); open >= 0 {
		if !strings.HasSuffix(typeName, ">") {
			return Column{}, fmt.Errorf("column %q: unterminated reference: %w", line, cascerr.ErrInvalidConfig)
		}
		column.Foreign = typeName[open+1 : len(typeName)-1]
		typeName = typeName[:open]
	}
	column.Type = Type(typeName)
	if !slices.Contains(knownTypes, column.Type) {
		return Column{}, fmt.Errorf("column %q: unknown type %s: %w", line, typeName, cascerr.ErrInvalidConfig)
	}
	if trimmed, unverified := strings.CutSuffix(column.Name, "?"); unverified {
		column.Name, column.Verified = trimmed, false
	}
	if column.Name == "" {
		return Column{}, fmt.Errorf("column %q has no name: %w", line, cascerr.ErrInvalidConfig)
	}
	return column, nil
}

func (d *Definition) parseLine(line string, schema *Schema) error {
	if rest, ok := strings.CutPrefix(line, "LAYOUT "); ok {
		for _, hash := range strings.Split(rest, ",") {
			value, err := strconv.ParseUint(strings.TrimSpace(hash), 16, 32)
			if err != nil {
				return fmt.Errorf("layout hash %q: %w", hash, cascerr.ErrInvalidHex)
			}
			d.Layouts = append(d.Layouts, uint32(value))
		}
		return nil
	}
	if rest, ok := strings.CutPrefix(line, "BUILD "); ok {
		for _, build := range strings.Split(rest, ",") {
			d.Builds = append(d.Builds, strings.TrimSpace(build))
		}
		return nil
	}
	if rest, ok := strings.CutPrefix(line, "COMMENT "); ok {
		d.Comment = strings.TrimSpace(rest)
		return nil
	}

	field, err := parseField(line)
	if err != nil {
		return err
	}
	if _, ok := schema.columns[field.Name]; !ok {
		return fmt.Errorf("field %s has no column: %w", field.Name, cascerr.ErrInvalidConfig)
	}
	d.Fields = append(d.Fields, field)
	return nil
}

func parseField(line string) (Field, error) {
	body, comment := splitComment(line)
	field := Field{Comment: comment}

	if strings.HasPrefix(body, "$") {
		end := strings.IndexByte(body[1:], '$')
		if end < 0 {
			return Field{}, fmt.Errorf("field %q: unterminated annotation: %w", line, cascerr.ErrInvalidConfig)
		}
		for _, annotation := range strings.Split(body[1:end+1], ",") {
			switch strings.TrimSpace(annotation) {
			case "id":
				field.ID = true
			case "noninline":
				field.NonInline = true
			case "relation":
				field.Relation = true
			}
		}
		body = body[end+2:]
	}

	if open := strings.IndexByte(body, '['); open >= 0 {
		if !strings.HasSuffix(body, "]") {
			return Field{}, fmt.Errorf("field %q: unterminated array: %w", line, cascerr.ErrInvalidConfig)
		}
		count, err := strconv.Atoi(body[open+1 : len(body)-1])
		if err != nil || count <= 0 {
			return Field{}, fmt.Errorf("field %q: array length: %w", line, cascerr.ErrInvalidConfig)
		}
		field.Array = count
		body = body[:open]
	}

	if open := strings.IndexByte(body, '<'); open >= 0 {
		if !strings.HasSuffix(body, ">") {
			return Field{}, fmt.Errorf("field %q: unterminated size: %w", line, cascerr.ErrInvalidConfig)
		}
		size := body[open+1 : len(body)-1]
		size, field.Unsigned = strings.CutPrefix(size, "u")
		bits, err := strconv.Atoi(size)
		if err != nil || bits <= 0 || bits > 64 {
			return Field{}, fmt.Errorf("field %q: size %q: %w", line, size, cascerr.ErrInvalidConfig)
		}
		field.Size = bits
		body = body[:open]
	}

	field.Name = body
	if field.Name == "" {
		return Field{}, fmt.Errorf("field %q has no name: %w", line, cascerr.ErrInvalidConfig)
	}
	return field, nil
}

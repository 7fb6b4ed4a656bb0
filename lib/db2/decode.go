// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"fmt"
	"math"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/dbd"
)

// Record is one decoded row keyed by field name.
type Record map[string]any

// Decode names every row of table using the schema definition that
// covers the table's layout hash. Inline fields map to columns in
// order; non-inline id and relation fields come from the section's
// index data and parent lookup.
func Decode(table *Table, schema *dbd.Schema) ([]Record, error) {
	definition, ok := schema.ForLayout(table.Header.LayoutHash)
	if !ok {
		return nil, fmt.Errorf("%s has no definition for layout %08X: %w", schema.Name, table.Header.LayoutHash, cascerr.ErrInvalidConfig)
	}
	return DecodeDefinition(table, schema, definition)
}

// DecodeDefinition is Decode with an explicit definition, for tables
// whose layout hash is not listed.
func DecodeDefinition(table *Table, schema *dbd.Schema, definition *dbd.Definition) ([]Record, error) {
	if inline := len(definition.Inline()); inline != len(table.Columns) {
		return nil, fmt.Errorf("definition has %d inline fields, table has %d columns: %w", inline, len(table.Columns), cascerr.ErrInvalidConfig)
	}

	records := make([]Record, 0, table.Len())
	for _, row := range table.Rows() {
		record := make(Record, len(definition.Fields))
		col := 0
		for _, field := range definition.Fields {
			if field.NonInline {
				switch {
				case field.ID:
					record[field.Name] = row.ID()
				case field.Relation:
					parent, _ := row.Parent()
					record[field.Name] = parent
				}
				continue
			}
			column, _ := schema.Column(field.Name)
			value, err := decodeField(row, col, column.Type, field)
			if err != nil {
				return nil, fmt.Errorf("row %d field %s: %w", row.ID(), field.Name, err)
			}
			record[field.Name] = value
			col++
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeField(row Row, col int, kind dbd.Type, field dbd.Field) (any, error) {
	switch {
	case kind.IsString():
		if field.Array == 0 {
			return row.String(col)
		}
		values := make([]string, field.Array)
		for i := range values {
			value, err := row.StringAt(col, i)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return values, nil

	case kind == dbd.TypeFloat:
		if field.Array == 0 {
			return row.Float(col)
		}
		raw, err := row.Array(col)
		if err != nil {
			return nil, err
		}
		values := make([]float32, len(raw))
		for i, v := range raw {
			values[i] = math.Float32frombits(uint32(v))
		}
		return values, nil
	}

	unsigned := field.Unsigned || kind.Unsigned()
	if field.Array == 0 {
		if unsigned {
			return row.Uint(col)
		}
		return row.Int(col)
	}
	raw, err := row.Array(col)
	if err != nil {
		return nil, err
	}
	if unsigned {
		return raw, nil
	}
	width := field.Size
	if width == 0 {
		width = 32
	}
	values := make([]int64, len(raw))
	for i, v := range raw {
		values[i] = signExtend(v, width)
	}
	return values, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package db2

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// MapRow is a Map.db2 record. Fields missing from a build's
// definition are left zero.
type MapRow struct {
	ID          uint32  `json:"id" yaml:"id" cbor:"id"`
	Directory   string  `json:"directory" yaml:"directory" cbor:"directory"`
	Name        string  `json:"name" yaml:"name" cbor:"name"`
	ParentMapID int64   `json:"parent_map_id" yaml:"parent_map_id" cbor:"parent_map_id"`
	Flags       []int64 `json:"flags" yaml:"flags" cbor:"flags"`
}

// AreaRow is an AreaTable.db2 record.
type AreaRow struct {
	ID           uint32  `json:"id" yaml:"id" cbor:"id"`
	ZoneName     string  `json:"zone_name" yaml:"zone_name" cbor:"zone_name"`
	Name         string  `json:"name" yaml:"name" cbor:"name"`
	ContinentID  int64   `json:"continent_id" yaml:"continent_id" cbor:"continent_id"`
	ParentAreaID int64   `json:"parent_area_id" yaml:"parent_area_id" cbor:"parent_area_id"`
	Flags        []int64 `json:"flags" yaml:"flags" cbor:"flags"`
}

// SpellRow is a Spell.db2 record: the text attached to a spell id.
type SpellRow struct {
	ID              uint32 `json:"id" yaml:"id" cbor:"id"`
	Subtext         string `json:"subtext" yaml:"subtext" cbor:"subtext"`
	Description     string `json:"description" yaml:"description" cbor:"description"`
	AuraDescription string `json:"aura_description" yaml:"aura_description" cbor:"aura_description"`
}

// View converts decoded records into typed rows.
type View func(records []Record) (any, error)

var views = map[string]View{
	"map":       func(records []Record) (any, error) { return Maps(records) },
	"areatable": func(records []Record) (any, error) { return Areas(records) },
	"spell":     func(records []Record) (any, error) { return Spells(records) },
}

// ViewFor returns the typed view for a table name (case-insensitive),
// as named by its definition file.
func ViewFor(table string) (View, bool) {
	view, ok := views[strings.ToLower(table)]
	return view, ok
}

// Maps converts decoded Map records.
func Maps(records []Record) ([]MapRow, error) {
	rows := make([]MapRow, 0, len(records))
	for _, record := range records {
		var row MapRow
		var err error
		row.ID, err = record.idField()
		if err == nil {
			row.Directory, err = record.textField("Directory")
		}
		if err == nil {
			row.Name, err = record.textField("MapName_lang")
		}
		if err == nil {
			row.ParentMapID, err = record.intField("ParentMapID")
		}
		if err == nil {
			row.Flags, err = record.intsField("Flags")
		}
		if err != nil {
			return nil, fmt.Errorf("map %d: %w", row.ID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Areas converts decoded AreaTable records.
func Areas(records []Record) ([]AreaRow, error) {
	rows := make([]AreaRow, 0, len(records))
	for _, record := range records {
		var row AreaRow
		var err error
		row.ID, err = record.idField()
		if err == nil {
			row.ZoneName, err = record.textField("ZoneName")
		}
		if err == nil {
			row.Name, err = record.textField("AreaName_lang")
		}
		if err == nil {
			row.ContinentID, err = record.intField("ContinentID")
		}
		if err == nil {
			row.ParentAreaID, err = record.intField("ParentAreaID")
		}
		if err == nil {
			row.Flags, err = record.intsField("Flags")
		}
		if err != nil {
			return nil, fmt.Errorf("area %d: %w", row.ID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Spells converts decoded Spell records.
func Spells(records []Record) ([]SpellRow, error) {
	rows := make([]SpellRow, 0, len(records))
	for _, record := range records {
		var row SpellRow
		var err error
		row.ID, err = record.idField()
		if err == nil {
			row.Subtext, err = record.textField("NameSubtext_lang")
		}
		if err == nil {
			row.Description, err = record.textField("Description_lang")
		}
		if err == nil {
			row.AuraDescription, err = record.textField("AuraDescription_lang")
		}
		if err != nil {
			return nil, fmt.Errorf("spell %d: %w", row.ID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r Record) idField() (uint32, error) {
	value, err := r.intField("ID")
	if value < 0 || value > 1<<32-1 {
		return 0, fmt.Errorf("field ID: %d out of range: %w", value, cascerr.ErrInvalidConfig)
	}
	return uint32(value), err
}

func (r Record) textField(name string) (string, error) {
	value, ok := r[name]
	if !ok {
		return "", nil
	}
	text, ok := value.(string)
	if !ok {
		return "", fieldType(name, value)
	}
	return text, nil
}

func (r Record) intField(name string) (int64, error) {
	value, ok := r[name]
	if !ok {
		return 0, nil
	}
	switch v := value.(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	}
	return 0, fieldType(name, value)
}

func (r Record) intsField(name string) ([]int64, error) {
	value, ok := r[name]
	if !ok {
		return nil, nil
	}
	switch v := value.(type) {
	case []int64:
		return v, nil
	case []uint64:
		out := make([]int64, len(v))
		for i, element := range v {
			out[i] = int64(element)
		}
		return out, nil
	case int64, uint64, uint32:
		single, err := r.intField(name)
		return []int64{single}, err
	}
	return nil, fieldType(name, value)
}

func fieldType(name string, value any) error {
	return fmt.Errorf("field %s holds %T: %w", name, value, cascerr.ErrInvalidConfig)
}

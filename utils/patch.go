package utils

import (
	"reflect"
	"strconv"
	"strings"

	"gorm.io/gorm/schema"
)

var columnNamer = schema.NamingStrategy{}

// ColumnUpdates builds a gorm Updates map from the non-nil pointer fields of a DTO.
// Keys are storage columns: an explicit `gorm:"column:..."` tag wins, otherwise
// gorm's default naming of the Go field name (Notes -> notes, CompletedAt -> completed_at).
// Fields tagged `json:"-"` are skipped.
func ColumnUpdates(dto any) map[string]any {
	res := make(map[string]any)
	s, ok := structOf(dto)
	if !ok {
		return res
	}
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := s.Field(i)
		if !sf.IsExported() || fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		if sf.Tag.Get("json") == "-" {
			continue
		}
		res[columnOf(sf)] = fv.Elem().Interface()
	}
	return res
}

func columnOf(sf reflect.StructField) string {
	for _, part := range strings.Split(sf.Tag.Get("gorm"), ";") {
		if k, v, ok := strings.Cut(part, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "column") {
			return strings.TrimSpace(v)
		}
	}
	return columnNamer.ColumnName("", sf.Name)
}

// ParseIntDefault reads the leading integer of a form value the way browsers'
// parseInt does ("3.5" -> 3, "12abc" -> 12). Values with no leading digits give def.
func ParseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return def
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return def
	}
	return v
}

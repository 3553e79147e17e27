package duckdb

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckgrid/duckgrid/internal/reader"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

var uuidArrayType = reflect.TypeOf([16]byte{})

// scan drains rows and rewrites UUID columns, which the driver may hand back
// as raw bytes, into their canonical text form. TIME values arrive as a
// time.Time on day one and are reduced to their clock part.
func scan(rows *sql.Rows) (tabular.RawResult, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return tabular.RawResult{}, fmt.Errorf("query column types: %w", err)
	}
	raw, err := reader.ScanAll(rows)
	if err != nil {
		return tabular.RawResult{}, err
	}

	raw.NativeTypes = make([]string, len(columnTypes))
	var uuidColumns, timeColumns []int
	for i, columnType := range columnTypes {
		raw.NativeTypes[i] = columnType.DatabaseTypeName()
		switch strings.ToUpper(raw.NativeTypes[i]) {
		case "UUID":
			uuidColumns = append(uuidColumns, i)
		case "TIME", "TIMETZ", "TIME WITH TIME ZONE":
			timeColumns = append(timeColumns, i)
		}
	}
	for _, values := range raw.Rows {
		for _, i := range uuidColumns {
			if b, ok := values[i].([]byte); ok && len(b) == 16 {
				values[i] = uuid.UUID(b).String()
			}
		}
		for _, i := range timeColumns {
			if t, ok := values[i].(time.Time); ok {
				values[i] = tabular.FormatTimeOfDay(t)
			}
		}
	}
	return raw, nil
}

// coerceValue extends tabular.Materialize with the driver's own value types.
func coerceValue(value any) any {
	switch typed := value.(type) {
	case duckdb.Decimal:
		return tabular.Materialize(typed.Float64())
	case duckdb.Interval:
		return typed
	case duckdb.Map:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = coerceValue(item)
		}
		return out
	case uuid.UUID:
		return typed.String()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = coerceValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = coerceValue(item)
		}
		return out
	}
	if id, ok := asUUID(value); ok {
		return id
	}
	return tabular.Materialize(value)
}

// asUUID recognizes named 16-byte arrays such as the driver's UUID type.
func asUUID(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Array || !v.Type().ConvertibleTo(uuidArrayType) {
		return "", false
	}
	return uuid.UUID(v.Convert(uuidArrayType).Interface().([16]byte)).String(), true
}
